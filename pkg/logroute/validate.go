package logroute

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Validate checks a routing document without constructing anything: the
// version marker, that every referenced filter and handler name is declared,
// that all kinds are known, and whatever static checks the kinds themselves
// provide. All violations are reported together, each prefixed with its
// document path.
func Validate(c Config) error {
	var result *multierror.Error

	if c.Version != 1 {
		result = multierror.Append(result, errors.Errorf("version: must be 1, got %d", c.Version))
	}

	for _, name := range sortedKeys(c.Filters) {
		fc := c.Filters[name]
		path := "filters." + name

		if fc.Kind == "" {
			result = multierror.Append(result, errors.Errorf("%s.kind: missing", path))
			continue
		}

		fk, ok := lookupFilterKind(fc.Kind)
		if !ok {
			result = multierror.Append(result, errors.Errorf("%s.kind: unknown filter kind %q", path, fc.Kind))
			continue
		}

		if fk.Validate != nil {
			if err := fk.Validate(name, fc); err != nil {
				result = multierror.Append(result, errors.Wrap(err, path))
			}
		}
	}

	for _, name := range sortedKeys(c.Handlers) {
		hc := c.Handlers[name]
		path := "handlers." + name

		if !hc.Level.valid() {
			result = multierror.Append(result, errors.Errorf("%s.level: unknown severity", path))
		}

		for _, ref := range hc.Filters {
			if _, ok := c.Filters[ref]; !ok {
				result = multierror.Append(result, errors.Errorf("%s.filters: unknown filter %q", path, ref))
			}
		}

		if hc.Kind == "" {
			result = multierror.Append(result, errors.Errorf("%s.kind: missing", path))
			continue
		}

		sk, ok := lookupSinkKind(hc.Kind)
		if !ok {
			result = multierror.Append(result, errors.Errorf("%s.kind: unknown handler kind %q", path, hc.Kind))
			continue
		}

		if sk.Validate != nil {
			if err := sk.Validate(name, hc); err != nil {
				result = multierror.Append(result, errors.Wrap(err, path))
			}
		}
	}

	for _, name := range sortedKeys(c.Loggers) {
		lc := c.Loggers[name]
		path := "loggers." + name

		if !validLoggerName(name) {
			result = multierror.Append(result, errors.Errorf("loggers: malformed logger name %q", name))
		}

		if !lc.Level.valid() {
			result = multierror.Append(result, errors.Errorf("%s.level: unknown severity", path))
		}

		for _, ref := range lc.Handlers {
			if _, ok := c.Handlers[ref]; !ok {
				result = multierror.Append(result, errors.Errorf("%s.handlers: unknown handler %q", path, ref))
			}
		}
	}

	if !c.Root.Level.valid() {
		result = multierror.Append(result, errors.Errorf("root.level: unknown severity"))
	}
	for _, ref := range c.Root.Handlers {
		if _, ok := c.Handlers[ref]; !ok {
			result = multierror.Append(result, errors.Errorf("root.handlers: unknown handler %q", ref))
		}
	}

	return result.ErrorOrNil()
}

func (l Level) valid() bool {
	if l == LevelUnset {
		return true
	}

	_, ok := levelNames[l]

	return ok
}

// validLoggerName accepts dot-separated names with non-empty segments. The
// root is addressed through the root section, not an empty name.
func validLoggerName(name string) bool {
	if name == "" {
		return false
	}

	for _, segment := range strings.Split(name, ".") {
		if segment == "" {
			return false
		}
	}

	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)

	return keys
}
