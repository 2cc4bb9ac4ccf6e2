package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/tmplfrag/log"
)

// Configuration file formats.
const (
	formatYAML = "yaml"
	formatTOML = "toml"

	extYAML = "." + formatYAML
	extTOML = "." + formatTOML
)

// resolve returns a [kong.ConfigurationLoader] for configuration files in
// the given format.
//
// A configuration file maps flag names to values, either at the top level or
// in a table named "config":
//
//	config:
//	  log-level: debug
//	  include: [templates, partials]
//	  namespace: views
//
// Flag names may use underscores in place of hyphens. Flags given on the
// command line override configuration values. A file that fails to parse is
// ignored with a warning.
func resolve(format string) kong.ConfigurationLoader {
	return func(r io.Reader) (kong.Resolver, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}

		var m map[string]any

		switch format {
		case formatYAML:
			err = yaml.Unmarshal(data, &m)
		case formatTOML:
			_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&m)
		default:
			err = fmt.Errorf("unknown configuration format %q", format)
		}

		if err != nil {
			log.Warn("ignoring configuration file",
				slog.String("format", format),
				slog.Any("error", err))

			return config{}, nil
		}

		if sub, ok := m[baseConfig].(map[string]any); ok {
			m = sub
		}

		out := make(config, len(m))
		for k, v := range m {
			if v = flagValue(v); v != nil {
				out[k] = v
			}
		}

		return out, nil
	}
}

// config implements [kong.Resolver] over a flat map of flag values.
type config map[string]any

// Validate implements [kong.Resolver].
func (config) Validate(*kong.Application) error { return nil }

// Resolve implements [kong.Resolver].
func (c config) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	if v, ok := c[flag.Name]; ok {
		return v, nil
	}

	if v, ok := c[strings.ReplaceAll(flag.Name, "-", "_")]; ok {
		return v, nil
	}

	return nil, nil
}

// flagValue converts a decoded configuration value into a form kong
// accepts: numbers become strings and lists keep their converted scalars.
// Tables other than the config table have no flag form and yield nil.
func flagValue(v any) any {
	switch v := v.(type) {
	case string, bool:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		out := make([]any, 0, len(v))

		for _, e := range v {
			if e = flagValue(e); e != nil {
				out = append(out, e)
			}
		}

		return out
	default:
		return nil
	}
}
