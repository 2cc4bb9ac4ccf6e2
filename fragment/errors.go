package fragment

import "github.com/ardnew/tmplfrag/lang"

// Predefined errors (sentinel values).
//
// Every error returned for a fragment problem is derived from one of these,
// so [errors.Is] identifies it while the error itself carries the position
// and a "fragment" attribute.
var (
	ErrDuplicateFragment = lang.NewError("duplicate fragment")
	ErrUnknownFragment   = lang.NewError("unknown fragment")
	ErrMissingBody       = lang.NewError("fragment declared without body")
	ErrNestedFragment    = lang.NewError("fragment declared inside a mixin or fragment")
	ErrInvalidParams     = lang.NewError("invalid fragment parameters")
	ErrNoCompileContext  = lang.NewError("fragment syntax used outside a fragment compiler")

	// ErrExtensionPointConflict is returned when the extension registry of
	// a request already holds an extension claiming the fragment syntax.
	ErrExtensionPointConflict = lang.ErrExtensionConflict
)
