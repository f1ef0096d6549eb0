package logroute

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/logwirehq/logwire/pkg/common/logctx"

	"github.com/go-slog/otelslog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ErrClosed is returned by operations on a registry after Close.
var ErrClosed = errors.New("registry is closed")

// DebugFlag is the process debug mode, shared between the registry and the
// require_debug filters. It is process state, not part of the document.
type DebugFlag struct {
	v atomic.Bool
}

func (d *DebugFlag) Set(on bool) {
	d.v.Store(on)
}

func (d *DebugFlag) Enabled() bool {
	return d.v.Load()
}

// Registry owns the applied routing table and hands out *slog.Logger
// front-ends. A fresh registry serves the default table (warning and above
// to stderr), so logging works before any document is applied.
type Registry struct {
	diag  *slog.Logger
	debug DebugFlag

	table atomic.Pointer[routingTable]

	mu     sync.Mutex
	fronts map[string]*slog.Logger
	closed bool
}

type registryOptions struct {
	diag  *slog.Logger
	debug bool
}

type RegistryOption interface {
	apply(*registryOptions)
}

type registryOptionFunc func(*registryOptions)

func (f registryOptionFunc) apply(o *registryOptions) {
	f(o)
}

// WithLogger sets the registry's own diagnostic logger. Diagnostics never
// travel through the routing table.
func WithLogger(l *slog.Logger) RegistryOption {
	return registryOptionFunc(func(o *registryOptions) {
		o.diag = l
	})
}

// WithDebugMode sets the initial debug mode.
func WithDebugMode(on bool) RegistryOption {
	return registryOptionFunc(func(o *registryOptions) {
		o.debug = on
	})
}

func New(opts ...RegistryOption) *Registry {
	var o registryOptions
	for _, opt := range opts {
		opt.apply(&o)
	}

	diag := o.diag
	if diag == nil {
		diag = logctx.NopLogger()
	}
	diag = diag.With(slog.String("component", "logroute"))

	r := &Registry{
		diag:   diag,
		fronts: make(map[string]*slog.Logger),
	}
	r.debug.Set(o.debug)

	t, err := r.buildTable(DefaultConfig())
	if err != nil {
		panic("logroute: cannot build default table: " + err.Error())
	}
	r.table.Store(t)

	return r
}

// Apply validates the document, constructs its filters and sinks, swaps the
// routing table and closes the replaced sinks. Loggers issued earlier pick
// the new table up immediately. The document is read here once and never
// mutated.
func (r *Registry) Apply(ctx context.Context, c Config) error {
	if err := Validate(c); err != nil {
		return errors.Wrap(err, "invalid routing document")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	t, err := r.buildTable(c)
	if err != nil {
		return err
	}

	if c.DisableExistingLoggers {
		for name := range r.fronts {
			if name == "" {
				continue
			}
			if _, ok := c.Loggers[name]; ok {
				continue
			}
			if hasConfiguredAncestor(c, name) {
				continue
			}

			t.disabled[name] = struct{}{}
		}
	}

	old := r.table.Swap(t)
	if err := closeTable(old); err != nil {
		r.diag.Warn("cannot close replaced sinks", logctx.Error(err))
	}

	r.diag.Info(
		"routing document applied",
		slog.Int("handlers", len(c.Handlers)),
		slog.Int("loggers", len(c.Loggers)),
		slog.Bool("disable_existing_loggers", c.DisableExistingLoggers),
	)

	return nil
}

// hasConfiguredAncestor reports whether some configured logger sits above
// name in the hierarchy. Descendants of configured loggers are never
// silenced by disable_existing_loggers.
func hasConfiguredAncestor(c Config, name string) bool {
	for n := parentLogger(name); n != ""; n = parentLogger(n) {
		if _, ok := c.Loggers[n]; ok {
			return true
		}
	}

	return false
}

func (r *Registry) buildTable(c Config) (*routingTable, error) {
	fenv := FilterEnv{Debug: &r.debug, Diag: r.diag}

	filters := make(map[string]Filter, len(c.Filters))
	for _, name := range sortedKeys(c.Filters) {
		fc := c.Filters[name]

		fk, ok := lookupFilterKind(fc.Kind)
		if !ok {
			return nil, errors.Errorf("filters.%s: unknown filter kind %q", name, fc.Kind)
		}

		f, err := fk.New(name, fc, fenv)
		if err != nil {
			return nil, errors.Wrapf(err, "filters.%s", name)
		}

		filters[name] = f
	}

	senv := SinkEnv{Diag: r.diag, Debug: &r.debug}

	t := &routingTable{
		cfg:        c,
		handlers:   make(map[string]*boundHandler, len(c.Handlers)),
		loggers:    c.Loggers,
		root:       c.Root,
		disabled:   make(map[string]struct{}),
		routeCache: make(map[string][]*boundHandler),
	}

	for _, name := range sortedKeys(c.Handlers) {
		hc := c.Handlers[name]

		sk, ok := lookupSinkKind(hc.Kind)
		if !ok {
			_ = closeTable(t)
			return nil, errors.Errorf("handlers.%s: unknown handler kind %q", name, hc.Kind)
		}

		sink, err := sk.New(name, hc, senv)
		if err != nil {
			_ = closeTable(t)
			return nil, errors.Wrapf(err, "handlers.%s", name)
		}

		chain := make([]Filter, 0, len(hc.Filters))
		for _, ref := range hc.Filters {
			f, ok := filters[ref]
			if !ok {
				_ = sink.Close()
				_ = closeTable(t)
				return nil, errors.Errorf("handlers.%s.filters: unknown filter %q", name, ref)
			}
			chain = append(chain, f)
		}

		t.handlers[name] = &boundHandler{
			name:    name,
			kind:    hc.Kind,
			level:   hc.Level,
			filters: chain,
			sink:    sink,
		}
	}

	return t, nil
}

func closeTable(t *routingTable) error {
	if t == nil {
		return nil
	}

	var result *multierror.Error
	for _, name := range sortedKeys(t.handlers) {
		if err := t.handlers[name].sink.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "handlers.%s", name))
		}
	}

	return result.ErrorOrNil()
}

// Get returns the named logger front-end, creating and memoizing it on
// first use. The same name always yields the same *slog.Logger.
func (r *Registry) Get(name string) *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if front, ok := r.fronts[name]; ok {
		return front
	}

	front := slog.New(otelslog.NewHandler(&router{reg: r, name: name}))
	r.fronts[name] = front

	return front
}

// Root returns the front-end of the hierarchy root.
func (r *Registry) Root() *slog.Logger {
	return r.Get("")
}

// Resolve reports which handlers would receive a record logged on name at
// the given severity, in delivery order. Stateful filters are probed without
// consuming anything.
func (r *Registry) Resolve(name string, lvl Level) []string {
	t := r.table.Load()
	if t == nil {
		return nil
	}

	if _, off := t.disabled[name]; off {
		return nil
	}
	if lvl < t.effectiveLevel(name) {
		return nil
	}

	e := Entry{Logger: name, Level: lvl, Probe: true}

	var out []string
	for _, h := range t.route(name) {
		if h.accepts(e) {
			out = append(out, h.name)
		}
	}

	return out
}

func (r *Registry) SetDebugMode(on bool) {
	r.debug.Set(on)
	r.diag.Info("debug mode switched", slog.Bool("debug", on))
}

func (r *Registry) DebugMode() bool {
	return r.debug.Enabled()
}

// RoutingSnapshot is the introspection view served by /debug/routing.
type RoutingSnapshot struct {
	Debug    bool                     `json:"debug"`
	Document Config                   `json:"document"`
	Loggers  map[string]LoggerRouting `json:"loggers"`
}

type LoggerRouting struct {
	EffectiveLevel string   `json:"effective_level"`
	Disabled       bool     `json:"disabled,omitempty"`
	Handlers       []string `json:"handlers"`
}

// Routing describes the current table and how every issued logger resolves
// against it.
func (r *Registry) Routing() RoutingSnapshot {
	snapshot := RoutingSnapshot{
		Debug:   r.DebugMode(),
		Loggers: make(map[string]LoggerRouting),
	}

	t := r.table.Load()
	if t == nil {
		return snapshot
	}
	snapshot.Document = t.cfg

	r.mu.Lock()
	names := lo.Keys(r.fronts)
	r.mu.Unlock()

	for _, name := range names {
		_, off := t.disabled[name]

		var handlers []string
		for _, h := range t.route(name) {
			handlers = append(handlers, h.name)
		}

		snapshot.Loggers[name] = LoggerRouting{
			EffectiveLevel: t.effectiveLevel(name).String(),
			Disabled:       off,
			Handlers:       handlers,
		}
	}

	return snapshot
}

// Close swaps the table out and closes every sink, draining what they
// buffered. Loggers keep working afterwards but deliver nowhere.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	old := r.table.Swap(nil)

	return closeTable(old)
}
