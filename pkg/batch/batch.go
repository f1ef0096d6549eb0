// Package batch runs a processor over a slice of items with per-item
// failure containment. A failing or panicking item is recorded and the
// run moves on to the next one; only context cancellation stops a run
// early.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/logroute"
)

// Processor handles a single item of a batch.
type Processor[T any] interface {
	Name() string
	Process(ctx context.Context, item T) error
}

// ItemResult pairs an item with the outcome of its Process call.
type ItemResult[T any] struct {
	Item T
	Err  error
}

// Report summarizes one Run. Succeeded+Failed can be less than Total
// when the run was interrupted by context cancellation.
type Report[T any] struct {
	Total     int
	Succeeded int
	Failed    int
	// Internal counts the subset of Failed caused by panics or errors
	// wrapped in InternalError.
	Internal int
	Results  []ItemResult[T]
	Err      *multierror.Error
}

func (r Report[T]) ErrorOrNil() error {
	return r.Err.ErrorOrNil()
}

type Runner[T any] struct {
	l    *slog.Logger
	proc Processor[T]
	o    options
}

func NewRunner[T any](proc Processor[T], opts ...Option) *Runner[T] {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}

	l := o.l
	if l == nil {
		l = logctx.NopLogger()
	}

	return &Runner[T]{
		l:    l.With(slog.String("component", "batch_runner"), slog.String("processor", proc.Name())),
		proc: proc,
		o:    o,
	}
}

// Run feeds items to the processor one by one. Every item failure is
// logged and collected in the report; the loop keeps going regardless.
// Cancelling ctx is the only way to stop a run before the last item.
func (r *Runner[T]) Run(ctx context.Context, items []T) Report[T] {
	report := Report[T]{
		Total:   len(items),
		Results: make([]ItemResult[T], 0, len(items)),
	}

	r.l.DebugContext(ctx, "batch run started", slog.Int("items", len(items)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			report.Err = multierror.Append(report.Err, errors.Wrap(err, "batch run interrupted"))
			break
		}

		if r.o.pacer != nil {
			if err := r.o.pacer.Acquire(ctx); err != nil {
				report.Err = multierror.Append(report.Err, errors.Wrap(err, "batch run interrupted"))
				break
			}
		}

		err := r.processOne(ctx, item)
		report.Results = append(report.Results, ItemResult[T]{Item: item, Err: err})
		if err == nil {
			report.Succeeded++
			r.l.DebugContext(ctx, "item processed", slog.String("item", itemLabel(item, i)))
			continue
		}

		report.Failed++
		report.Err = multierror.Append(report.Err, errors.Wrapf(err, "item %s", itemLabel(item, i)))
		r.logFailure(ctx, &report, item, i, err)
	}

	r.l.DebugContext(ctx, "batch run finished",
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
	)

	return report
}

func (r *Runner[T]) logFailure(ctx context.Context, report *Report[T], item T, i int, err error) {
	itemAttr := slog.String("item", itemLabel(item, i))

	var internal *InternalError
	if !errors.As(err, &internal) {
		r.l.ErrorContext(ctx, "item processing failed", itemAttr, logctx.Error(err), logctx.Stack(err))
		return
	}

	report.Internal++
	if internal.Stack != nil {
		r.l.Log(ctx, logroute.SlogLevelCritical, "item processing paniced",
			itemAttr, logctx.Error(internal.Internal), slog.String(logctx.StackKey, string(internal.Stack)))
		return
	}
	r.l.ErrorContext(ctx, "internal error while processing item",
		itemAttr, logctx.Error(internal.Internal), logctx.Stack(internal.Internal))
}

func (r *Runner[T]) processOne(ctx context.Context, item T) (procErr error) {
	if r.o.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.o.itemTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			procErr = &InternalError{
				Internal: errors.Errorf("processing paniced with message: %+v", rec),
				Stack:    debug.Stack(),
			}
		}
	}()

	if err := r.proc.Process(ctx, item); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func itemLabel[T any](item T, i int) string {
	if s, ok := any(item).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("#%d", i)
}
