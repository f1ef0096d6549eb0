package logroute_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/logroute"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryEntry struct {
	logger string
	level  logroute.Level
	msg    string
	attrs  map[string]string
}

// memorySink records everything routed to it. It registers under the
// "memory" kind, so test documents wire it like any other handler.
type memorySink struct {
	mu      sync.Mutex
	entries []memoryEntry
	closed  bool
}

var (
	memMu    sync.Mutex
	memSinks = map[string]*memorySink{}
)

func init() {
	logroute.RegisterSinkKind("memory", logroute.SinkKind{
		New: func(name string, c logroute.HandlerConfig, env logroute.SinkEnv) (logroute.Sink, error) {
			var o struct {
				ID string `yaml:"id"`
			}
			if err := logroute.DecodeOptions(c.Options, &o); err != nil {
				return nil, err
			}

			ms := &memorySink{}
			memMu.Lock()
			memSinks[o.ID] = ms
			memMu.Unlock()

			return ms, nil
		},
	})
}

func (m *memorySink) Emit(_ context.Context, e logroute.Entry) error {
	attrs := map[string]string{}
	e.Record.Attrs(func(a slog.Attr) bool {
		collectAttr("", a, attrs)
		return true
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, memoryEntry{
		logger: e.Logger,
		level:  e.Level,
		msg:    e.Record.Message,
		attrs:  attrs,
	})

	return nil
}

func collectAttr(prefix string, a slog.Attr, out map[string]string) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, member := range v.Group() {
			collectAttr(key, member, out)
		}
		return
	}

	out[key] = v.String()
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

func (m *memorySink) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, e := range m.entries {
		out = append(out, e.msg)
	}

	return out
}

func (m *memorySink) snapshot() []memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]memoryEntry(nil), m.entries...)
}

func (m *memorySink) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func sinkByID(t *testing.T, id string) *memorySink {
	t.Helper()

	memMu.Lock()
	defer memMu.Unlock()

	ms, ok := memSinks[id]
	require.True(t, ok, "no memory sink constructed under id %q", id)

	return ms
}

func mustParse(t *testing.T, doc string) logroute.Config {
	t.Helper()

	c, err := logroute.Parse([]byte(doc))
	require.NoError(t, err)

	return c
}

func TestDeliveryMatrixFollowsDebugMode(t *testing.T) {
	cfg := mustParse(t, `
version: 1
filters:
  debug_only:
    kind: require_debug_true
  production_only:
    kind: require_debug_false
handlers:
  console:
    kind: memory
    id: matrix-console
    level: debug
    filters: [debug_only]
  syslog:
    kind: memory
    id: matrix-syslog
    level: warning
  mail:
    kind: memory
    id: matrix-mail
    level: warning
    filters: [production_only]
loggers:
  app:
    level: debug
    handlers: [console, syslog, mail]
    propagate: false
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	console := sinkByID(t, "matrix-console")
	syslogRec := sinkByID(t, "matrix-syslog")
	mailRec := sinkByID(t, "matrix-mail")

	l := reg.Get("app")

	l.Info("info event")
	l.Warn("warn event")
	l.Error("error event")

	require.Empty(t, console.messages())
	require.Equal(t, []string{"warn event", "error event"}, syslogRec.messages())
	require.Equal(t, []string{"warn event", "error event"}, mailRec.messages())

	require.Equal(t, []string{"syslog", "mail"}, reg.Resolve("app", logroute.LevelWarning))

	reg.SetDebugMode(true)

	l.Debug("debug event")
	l.Warn("second warn")

	require.Equal(t, []string{"debug event", "second warn"}, console.messages())
	require.Equal(t, []string{"warn event", "error event", "second warn"}, syslogRec.messages())
	require.Equal(t, []string{"warn event", "error event"}, mailRec.messages())

	require.Equal(t, []string{"console", "syslog"}, reg.Resolve("app", logroute.LevelWarning))
}

func TestHierarchyDeliversAlongAncestorChain(t *testing.T) {
	cfg := mustParse(t, `
version: 1
handlers:
  app_h: {kind: memory, id: chain-app}
  db_h: {kind: memory, id: chain-db}
  root_h: {kind: memory, id: chain-root}
loggers:
  app:
    level: info
    handlers: [app_h]
  app.db:
    handlers: [db_h]
root:
  level: warning
  handlers: [root_h]
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	l := reg.Get("app.db")

	l.Debug("below effective level")
	l.Info("reaches everyone")

	for _, id := range []string{"chain-db", "chain-app", "chain-root"} {
		entries := sinkByID(t, id).snapshot()
		require.Len(t, entries, 1, "handler %s", id)
		require.Equal(t, "reaches everyone", entries[0].msg)
		require.Equal(t, "app.db", entries[0].logger)
		require.Equal(t, logroute.LevelInfo, entries[0].level)
	}

	require.Equal(t, []string{"db_h", "app_h", "root_h"}, reg.Resolve("app.db", logroute.LevelInfo))

	other := reg.Get("other")
	other.Info("below root level")
	other.Warn("root only")

	require.Equal(t, []string{"root only"}, sinkByID(t, "chain-root").messages()[1:])
}

func TestPropagateFalseCutsOffAncestors(t *testing.T) {
	cfg := mustParse(t, `
version: 1
handlers:
  local_h: {kind: memory, id: cut-local}
  root_h: {kind: memory, id: cut-root}
loggers:
  worker:
    level: debug
    handlers: [local_h]
    propagate: false
root:
  level: debug
  handlers: [root_h]
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	reg.Get("worker").Warn("stays local")

	require.Equal(t, []string{"stays local"}, sinkByID(t, "cut-local").messages())
	require.Empty(t, sinkByID(t, "cut-root").messages())
	require.Equal(t, []string{"local_h"}, reg.Resolve("worker", logroute.LevelWarning))
}

func TestDisableExistingLoggersSilencesUnconfiguredNames(t *testing.T) {
	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()

	legacy := reg.Get("legacy.worker")
	child := reg.Get("app.sub")

	cfg := mustParse(t, `
version: 1
disable_existing_loggers: true
handlers:
  h: {kind: memory, id: disable-h}
loggers:
  app:
    level: info
    handlers: [h]
`)
	require.NoError(t, reg.Apply(context.Background(), cfg))

	rec := sinkByID(t, "disable-h")

	legacy.Error("must be silenced")
	require.Nil(t, reg.Resolve("legacy.worker", logroute.LevelError))

	child.Info("descendant of a configured logger")
	require.Equal(t, []string{"descendant of a configured logger"}, rec.messages())

	fresh := reg.Get("app.fresh")
	fresh.Info("issued after apply")
	require.Equal(t,
		[]string{"descendant of a configured logger", "issued after apply"},
		rec.messages(),
	)
}

func TestThrottleFilterLimitsDeliveries(t *testing.T) {
	cfg := mustParse(t, `
version: 1
filters:
  once:
    kind: throttle
    rate: {times: 1, per: 1h}
handlers:
  h:
    kind: memory
    id: throttle-h
    filters: [once]
root:
  level: debug
  handlers: [h]
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	require.Equal(t, []string{"h"}, reg.Resolve("burst", logroute.LevelWarning))
	require.Equal(t, []string{"h"}, reg.Resolve("burst", logroute.LevelWarning),
		"resolve must not consume the allowance")

	l := reg.Get("burst")
	l.Warn("first")
	l.Warn("second")
	l.Warn("third")

	require.Equal(t, []string{"first"}, sinkByID(t, "throttle-h").messages())
	require.Empty(t, reg.Resolve("burst", logroute.LevelWarning))
}

func TestSerializedDocumentRoutesIdentically(t *testing.T) {
	doc := `
version: 1
filters:
  debug_only:
    kind: require_debug_true
  app_records:
    kind: name_prefix
    prefix: app.
handlers:
  console:
    kind: memory
    id: rt-console
    level: debug
    filters: [debug_only]
  ops:
    kind: memory
    id: rt-ops
    level: warning
  audit:
    kind: memory
    id: rt-audit
    level: error
    filters: [app_records]
loggers:
  app:
    level: debug
    handlers: [console, ops]
  app.db:
    level: info
    handlers: [audit]
  jobs:
    level: warning
    handlers: [ops]
    propagate: false
root:
  level: warning
  handlers: [ops]
`

	first := mustParse(t, doc)

	serialized, err := yaml.Marshal(first)
	require.NoError(t, err)

	second, err := logroute.Parse(serialized)
	require.NoError(t, err)

	regA := logroute.New()
	defer func() { require.NoError(t, regA.Close()) }()
	require.NoError(t, regA.Apply(context.Background(), first))

	regB := logroute.New()
	defer func() { require.NoError(t, regB.Close()) }()
	require.NoError(t, regB.Apply(context.Background(), second))

	names := []string{"app", "app.db", "app.db.tx", "jobs", "jobs.cleanup", "unrelated", ""}
	levels := []logroute.Level{
		logroute.LevelDebug,
		logroute.LevelInfo,
		logroute.LevelWarning,
		logroute.LevelError,
		logroute.LevelCritical,
	}

	for _, debug := range []bool{false, true} {
		regA.SetDebugMode(debug)
		regB.SetDebugMode(debug)

		for _, name := range names {
			for _, lvl := range levels {
				require.Equal(t,
					regA.Resolve(name, lvl), regB.Resolve(name, lvl),
					"resolution diverged for %q at %s (debug=%v)", name, lvl, debug,
				)
			}
		}
	}
}

func TestApplyInvalidDocumentKeepsCurrentTable(t *testing.T) {
	cfg := mustParse(t, `
version: 1
handlers:
  h: {kind: memory, id: keep-h}
root:
  level: info
  handlers: [h]
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	bad := mustParse(t, `
version: 2
root:
  level: info
  handlers: [missing]
`)
	err := reg.Apply(context.Background(), bad)
	require.Error(t, err)
	require.ErrorContains(t, err, "version")
	require.ErrorContains(t, err, "unknown handler")

	require.Equal(t, []string{"h"}, reg.Resolve("anything", logroute.LevelInfo))
}

func TestReapplyClosesReplacedSinks(t *testing.T) {
	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()

	first := mustParse(t, `
version: 1
handlers:
  h: {kind: memory, id: swap-old}
root:
  level: info
  handlers: [h]
`)
	require.NoError(t, reg.Apply(context.Background(), first))
	old := sinkByID(t, "swap-old")

	second := mustParse(t, `
version: 1
handlers:
  h: {kind: memory, id: swap-new}
root:
  level: info
  handlers: [h]
`)
	require.NoError(t, reg.Apply(context.Background(), second))

	require.True(t, old.isClosed())

	reg.Get("svc").Info("after swap")
	require.Empty(t, old.messages())
	require.Equal(t, []string{"after swap"}, sinkByID(t, "swap-new").messages())
}

func TestContextAttrsReachSinks(t *testing.T) {
	cfg := mustParse(t, `
version: 1
handlers:
  h: {kind: memory, id: ctx-h}
root:
  level: debug
  handlers: [h]
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	ctx := logctx.ContextWith(context.Background(),
		slog.String("request_id", "req-42"),
	)
	reg.Get("web").WarnContext(ctx, "handled")

	entries := sinkByID(t, "ctx-h").snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "req-42", entries[0].attrs["request_id"])
}

func TestWithAttrsAndGroups(t *testing.T) {
	cfg := mustParse(t, `
version: 1
handlers:
  h: {kind: memory, id: attrs-h}
root:
  level: debug
  handlers: [h]
`)

	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	l := reg.Get("svc").With(slog.String("instance", "a1"))
	l.WithGroup("req").With(slog.String("id", "7")).Warn("with groups")

	entries := sinkByID(t, "attrs-h").snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "a1", entries[0].attrs["instance"])
	require.Equal(t, "7", entries[0].attrs["req.id"])
}

func TestFrontEndsAreMemoized(t *testing.T) {
	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()

	require.Same(t, reg.Get("app.db"), reg.Get("app.db"))
	require.NotSame(t, reg.Get("app.db"), reg.Get("app"))
	require.Same(t, reg.Root(), reg.Get(""))
}

func TestDefaultTableRoutesWarningsBeforeApply(t *testing.T) {
	reg := logroute.New()
	defer func() { require.NoError(t, reg.Close()) }()

	require.Equal(t, []string{"default"}, reg.Resolve("anything", logroute.LevelWarning))
	require.Equal(t, []string{"default"}, reg.Resolve("anything", logroute.LevelCritical))
	require.Nil(t, reg.Resolve("anything", logroute.LevelInfo))
}

func TestCloseSilencesRouting(t *testing.T) {
	cfg := mustParse(t, `
version: 1
handlers:
  h: {kind: memory, id: close-h}
root:
  level: debug
  handlers: [h]
`)

	reg := logroute.New()
	require.NoError(t, reg.Apply(context.Background(), cfg))

	l := reg.Get("svc")
	l.Info("before close")

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())

	l.Info("after close")

	rec := sinkByID(t, "close-h")
	require.True(t, rec.isClosed())
	require.Equal(t, []string{"before close"}, rec.messages())
	require.Nil(t, reg.Resolve("svc", logroute.LevelError))

	err := reg.Apply(context.Background(), cfg)
	require.ErrorIs(t, err, logroute.ErrClosed)
}
