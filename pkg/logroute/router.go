package logroute

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/logwirehq/logwire/pkg/common/logctx"

	"github.com/hashicorp/go-multierror"
)

// boundHandler is one constructed handler: the sink plus the gates in front
// of it.
type boundHandler struct {
	name    string
	kind    string
	level   Level
	filters []Filter
	sink    Sink
}

func (h *boundHandler) accepts(e Entry) bool {
	if h.level != LevelUnset && e.Level < h.level {
		return false
	}

	for _, f := range h.filters {
		if !f.Allow(e) {
			return false
		}
	}

	return true
}

// routingTable is an immutable snapshot of one applied document.
type routingTable struct {
	cfg      Config
	handlers map[string]*boundHandler
	loggers  map[string]LoggerConfig
	root     RootConfig
	disabled map[string]struct{}

	routeMu    sync.RWMutex
	routeCache map[string][]*boundHandler
}

// effectiveLevel is the threshold for records logged on name: the logger's
// own level if set, otherwise the nearest configured ancestor's, otherwise
// the root's. An entirely unset chain defaults to warning.
func (t *routingTable) effectiveLevel(name string) Level {
	for n := name; n != ""; n = parentLogger(n) {
		if lc, ok := t.loggers[n]; ok && lc.Level != LevelUnset {
			return lc.Level
		}
	}

	if t.root.Level != LevelUnset {
		return t.root.Level
	}

	return LevelWarning
}

// route lists the handlers attached along the name's ancestor chain, origin
// first, stopping at the first propagate cutoff. A handler attached at two
// levels of the chain appears twice and receives the record twice.
func (t *routingTable) route(name string) []*boundHandler {
	if _, off := t.disabled[name]; off {
		return nil
	}

	t.routeMu.RLock()
	cached, ok := t.routeCache[name]
	t.routeMu.RUnlock()
	if ok {
		return cached
	}

	t.routeMu.Lock()
	defer t.routeMu.Unlock()

	if cached, ok := t.routeCache[name]; ok {
		return cached
	}

	var out []*boundHandler
	propagating := true

	for n := name; n != ""; n = parentLogger(n) {
		lc, ok := t.loggers[n]
		if !ok {
			continue
		}

		for _, ref := range lc.Handlers {
			if h, ok := t.handlers[ref]; ok {
				out = append(out, h)
			}
		}

		if !lc.Propagates() {
			propagating = false
			break
		}
	}

	if propagating {
		for _, ref := range t.root.Handlers {
			if h, ok := t.handlers[ref]; ok {
				out = append(out, h)
			}
		}
	}

	t.routeCache[name] = out

	return out
}

func parentLogger(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}

	return name[:i]
}

// router is the slog.Handler behind every front-end the registry hands out.
// It reads the current table on every record, so an Apply is picked up by
// all existing loggers at once.
type router struct {
	reg    *Registry
	name   string
	attrs  []slog.Attr
	groups []string
}

func (r *router) Enabled(ctx context.Context, lvl slog.Level) bool {
	t := r.reg.table.Load()
	if t == nil {
		return false
	}

	if _, off := t.disabled[r.name]; off {
		return false
	}

	return LevelFromSlog(lvl) >= t.effectiveLevel(r.name)
}

func (r *router) Handle(ctx context.Context, rec slog.Record) error {
	t := r.reg.table.Load()
	if t == nil {
		return nil
	}

	level := LevelFromSlog(rec.Level)
	if _, off := t.disabled[r.name]; off {
		return nil
	}
	if level < t.effectiveLevel(r.name) {
		return nil
	}

	e := Entry{Logger: r.name, Level: level, Record: r.materialize(ctx, rec)}

	var result *multierror.Error
	for _, h := range t.route(r.name) {
		if !h.accepts(e) {
			continue
		}

		if err := h.sink.Emit(ctx, e); err != nil {
			countDropped(h.name, dropReasonEmitError)
			result = multierror.Append(result, err)
			continue
		}

		countDelivered(h.name)
	}

	return result.ErrorOrNil()
}

// materialize rebuilds the record so sinks see finished attrs: handler
// attrs first, then the call-site attrs qualified by the open group chain,
// then the context attrs.
func (r *router) materialize(ctx context.Context, rec slog.Record) slog.Record {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	out.AddAttrs(r.attrs...)

	if len(r.groups) == 0 {
		rec.Attrs(func(a slog.Attr) bool {
			out.AddAttrs(a)
			return true
		})
	} else {
		var callAttrs []slog.Attr
		rec.Attrs(func(a slog.Attr) bool {
			callAttrs = append(callAttrs, a)
			return true
		})
		if len(callAttrs) > 0 {
			out.AddAttrs(nestAttrs(r.groups, callAttrs))
		}
	}

	out.AddAttrs(logctx.Attrs(ctx)...)

	return out
}

func (r *router) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return r
	}

	if len(r.groups) > 0 {
		attrs = []slog.Attr{nestAttrs(r.groups, attrs)}
	}

	r2 := r.clone()
	r2.attrs = append(r2.attrs, attrs...)

	return r2
}

func (r *router) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}

	r2 := r.clone()
	r2.groups = append(r2.groups, name)

	return r2
}

func (r *router) clone() *router {
	return &router{
		reg:    r.reg,
		name:   r.name,
		attrs:  append([]slog.Attr(nil), r.attrs...),
		groups: append([]string(nil), r.groups...),
	}
}

// nestAttrs wraps attrs into the open group chain, outermost group first.
func nestAttrs(groups []string, attrs []slog.Attr) slog.Attr {
	out := slog.Attr{Key: groups[len(groups)-1], Value: slog.GroupValue(attrs...)}
	for i := len(groups) - 2; i >= 0; i-- {
		out = slog.Attr{Key: groups[i], Value: slog.GroupValue(out)}
	}

	return out
}
