package fragment

import (
	"log/slog"
	"net/http"

	"github.com/ardnew/tmplfrag/lang"
)

// Middleware returns HTTP middleware that registers the plugin of c in the
// extension registry of each request context, creating the registry if the
// context has none. Compiles given the request context then understand
// fragment syntax, whichever entry point they use.
//
// A request whose registry holds a conflicting extension fails with 500 and
// is not passed on.
func Middleware(c *Compiler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			exts := lang.ExtensionsFrom(ctx)
			if exts == nil {
				exts, _ = lang.NewExtensions()
				ctx = lang.WithExtensions(ctx, exts)
			}

			if err := exts.Add(c.plugin); err != nil {
				c.logger.ErrorContext(ctx, "registering fragment extension",
					slog.Any("error", err),
					slog.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)

				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
