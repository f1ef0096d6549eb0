package logroute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sink is one record destination. Emit is called only for entries that
// passed the handler's level and filter gates.
type Sink interface {
	Emit(ctx context.Context, e Entry) error
	Close() error
}

// SinkEnv carries what sink constructors may need besides their declaration.
// Diag is the registry's own diagnostic logger, never routed through the
// table.
type SinkEnv struct {
	Diag  *slog.Logger
	Debug *DebugFlag
}

// SinkKind builds sinks of one kind from their document declarations.
// Validate, when set, lets `logwire check` report kind-specific problems
// without opening files or sockets.
type SinkKind struct {
	New      func(name string, c HandlerConfig, env SinkEnv) (Sink, error)
	Validate func(name string, c HandlerConfig) error
}

// Builtin sink kinds.
const (
	SinkKindConsole = "console"
	SinkKindFile    = "file"
	SinkKindSyslog  = "syslog"
	SinkKindMail    = "mail"
)

var (
	sinkKindsMu sync.RWMutex
	sinkKinds   = map[string]SinkKind{}
)

// RegisterSinkKind makes a sink kind available to routing documents. Call it
// from an init function. Registering a kind twice panics.
func RegisterSinkKind(kind string, sk SinkKind) {
	sinkKindsMu.Lock()
	defer sinkKindsMu.Unlock()

	if sk.New == nil {
		panic(fmt.Sprintf("logroute: sink kind %q registered without a constructor", kind))
	}
	if _, ok := sinkKinds[kind]; ok {
		panic(fmt.Sprintf("logroute: sink kind %q already registered", kind))
	}

	sinkKinds[kind] = sk
}

func lookupSinkKind(kind string) (SinkKind, bool) {
	sinkKindsMu.RLock()
	defer sinkKindsMu.RUnlock()

	sk, ok := sinkKinds[kind]

	return sk, ok
}

// handlerSink adapts an slog.Handler into a Sink.
type handlerSink struct {
	h       slog.Handler
	closeFn func() error
}

func (s *handlerSink) Emit(ctx context.Context, e Entry) error {
	rec := e.Record
	if e.Level == LevelCritical {
		rec = rec.Clone()
		rec.AddAttrs(slog.String("severity", "critical"))
	}
	// the zap bridge maps only the four canonical slog levels
	rec.Level = canonicalSlogLevel(e.Level)

	return s.h.Handle(ctx, rec)
}

func canonicalSlogLevel(l Level) slog.Level {
	if l == LevelCritical {
		return slog.LevelError
	}

	return l.Slog()
}

func (s *handlerSink) Close() error {
	if s.closeFn == nil {
		return nil
	}

	return s.closeFn()
}
