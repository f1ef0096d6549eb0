package logroute

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/logwirehq/logwire/pkg/ratelimit"

	"github.com/pkg/errors"
)

// Entry is one record on its way through the routing table.
type Entry struct {
	// Logger is the name of the front-end the record was logged on.
	Logger string
	Level  Level
	Record slog.Record

	// Probe marks a routing lookup (Resolve) rather than a real delivery.
	// Stateful filters must not consume anything for probes.
	Probe bool
}

// Filter is one gating predicate in a handler's chain. All filters of a
// handler must allow an entry for the handler to receive it.
type Filter interface {
	Allow(e Entry) bool
}

// FilterEnv carries the process state filters may consult.
type FilterEnv struct {
	Debug *DebugFlag
	Diag  *slog.Logger
}

// FilterKind builds filters of one kind from their document declarations.
// Validate, when set, lets `logwire check` report kind-specific problems
// without constructing anything.
type FilterKind struct {
	New      func(name string, c FilterConfig, env FilterEnv) (Filter, error)
	Validate func(name string, c FilterConfig) error
}

// Builtin filter kinds.
const (
	FilterKindRequireDebugFalse = "require_debug_false"
	FilterKindRequireDebugTrue  = "require_debug_true"
	FilterKindNamePrefix        = "name_prefix"
	FilterKindThrottle          = "throttle"
)

var (
	filterKindsMu sync.RWMutex
	filterKinds   = map[string]FilterKind{}
)

// RegisterFilterKind makes a filter kind available to routing documents.
// Call it from an init function. Registering a kind twice panics.
func RegisterFilterKind(kind string, fk FilterKind) {
	filterKindsMu.Lock()
	defer filterKindsMu.Unlock()

	if fk.New == nil {
		panic(fmt.Sprintf("logroute: filter kind %q registered without a constructor", kind))
	}
	if _, ok := filterKinds[kind]; ok {
		panic(fmt.Sprintf("logroute: filter kind %q already registered", kind))
	}

	filterKinds[kind] = fk
}

func lookupFilterKind(kind string) (FilterKind, bool) {
	filterKindsMu.RLock()
	defer filterKindsMu.RUnlock()

	fk, ok := filterKinds[kind]

	return fk, ok
}

func init() {
	RegisterFilterKind(FilterKindRequireDebugFalse, FilterKind{
		New: func(name string, c FilterConfig, env FilterEnv) (Filter, error) {
			return debugModeFilter{debug: env.Debug, want: false}, nil
		},
	})
	RegisterFilterKind(FilterKindRequireDebugTrue, FilterKind{
		New: func(name string, c FilterConfig, env FilterEnv) (Filter, error) {
			return debugModeFilter{debug: env.Debug, want: true}, nil
		},
	})
	RegisterFilterKind(FilterKindNamePrefix, FilterKind{
		New:      newNamePrefixFilter,
		Validate: validateNamePrefixFilter,
	})
	RegisterFilterKind(FilterKindThrottle, FilterKind{
		New:      newThrottleFilter,
		Validate: validateThrottleFilter,
	})
}

// debugModeFilter passes records only while the process debug mode matches
// the wanted state.
type debugModeFilter struct {
	debug *DebugFlag
	want  bool
}

func (f debugModeFilter) Allow(e Entry) bool {
	return f.debug.Enabled() == f.want
}

type namePrefixOptions struct {
	Prefix string `json:"prefix" yaml:"prefix"`
}

type namePrefixFilter struct {
	prefix string
}

func newNamePrefixFilter(name string, c FilterConfig, env FilterEnv) (Filter, error) {
	var o namePrefixOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return nil, err
	}
	if o.Prefix == "" {
		return nil, errors.New("name_prefix filter needs a non-empty prefix")
	}

	return namePrefixFilter{prefix: o.Prefix}, nil
}

func validateNamePrefixFilter(name string, c FilterConfig) error {
	var o namePrefixOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return err
	}
	if o.Prefix == "" {
		return errors.New("name_prefix filter needs a non-empty prefix")
	}

	return nil
}

func (f namePrefixFilter) Allow(e Entry) bool {
	return strings.HasPrefix(e.Logger, f.prefix)
}

type throttleOptions struct {
	Rate RateSpec `json:"rate" yaml:"rate"`
}

// throttleFilter passes at most the configured amount of records per window,
// dropping the rest.
type throttleFilter struct {
	limiter *ratelimit.Limiter
}

func newThrottleFilter(name string, c FilterConfig, env FilterEnv) (Filter, error) {
	var o throttleOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return nil, err
	}
	if err := validateRate(o.Rate); err != nil {
		return nil, err
	}

	return throttleFilter{limiter: ratelimit.New(o.Rate.Limit(), ratelimit.WithLogger(env.Diag))}, nil
}

func validateThrottleFilter(name string, c FilterConfig) error {
	var o throttleOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return err
	}

	return validateRate(o.Rate)
}

func validateRate(r RateSpec) error {
	if r.Times == 0 {
		return errors.New("rate needs times > 0")
	}
	if r.Per.AsDuration() <= 0 {
		return errors.New("rate needs a positive window")
	}

	return nil
}

func (f throttleFilter) Allow(e Entry) bool {
	if e.Probe {
		return f.limiter.Reserve() == 0
	}

	return f.limiter.TryAcquire()
}
