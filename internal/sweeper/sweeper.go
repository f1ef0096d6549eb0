// Package sweeper is the periodic batch controller of the daemon. Every
// sweep it drains the pending work queue, groups the items by job name and
// feeds them to the registered jobs with per-item failure containment:
// a failing or panicking item is recorded and retried on a later sweep,
// the sweep and the daemon keep going.
package sweeper

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/logwirehq/logwire/internal/workqueue"
	"github.com/logwirehq/logwire/pkg/batch"
	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/logroute"
)

// loggerNamespace is the root of the logger names sweeps report on. Job
// failures land on loggerNamespace + "." + job name, so the routing
// document decides where they go.
const loggerNamespace = "logwire.sweeper"

type Config struct {
	SweepInterval logroute.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	ItemTimeout   logroute.Duration `json:"item_timeout" yaml:"item_timeout"`
}

type Sweeper struct {
	l     *slog.Logger
	reg   *logroute.Registry
	queue *workqueue.Queue
	jobs  map[string]Job
	conf  Config

	runCtx     context.Context
	runCancel  context.CancelFunc
	runErrChan chan error

	jobMetrics   map[string]*jobMetrics
	jobMetricsMu sync.RWMutex
}

type In struct {
	fx.In

	Registry *logroute.Registry
	Queue    *workqueue.Queue
	Jobs     []Job `group:"jobs"`
	Config   Config
}

func New(in In) (*Sweeper, error) {
	s := &Sweeper{
		l:          in.Registry.Get(loggerNamespace).With(slog.String("component", "sweeper")),
		reg:        in.Registry,
		queue:      in.Queue,
		jobs:       make(map[string]Job, len(in.Jobs)),
		conf:       in.Config,
		runErrChan: make(chan error, 1),
		jobMetrics: make(map[string]*jobMetrics, len(in.Jobs)),
	}

	for _, job := range in.Jobs {
		if _, exists := s.jobs[job.Name()]; exists {
			return nil, errors.Errorf("job %q is registered twice", job.Name())
		}
		s.jobs[job.Name()] = job
	}

	return s, nil
}

func NewFX(in In, lc fx.Lifecycle) (*Sweeper, error) {
	s, err := New(in)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create sweeper")
	}

	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})

	return s, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(s.runCtx)
	eg.Go(func() error { return s.run(ctx) })

	go func() {
		err := eg.Wait()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}

		s.runErrChan <- err
	}()

	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.runCancel()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "cannot wait for stop of sweeper")
	case err := <-s.runErrChan:
		return err
	}
}

func (s *Sweeper) run(ctx context.Context) error {
	s.l.Info("sweeper started", slog.String("interval", s.conf.SweepInterval.String()))
	defer s.l.Info("sweeper stopped")

	for {
		if err := s.waitFor(ctx, s.conf.SweepInterval.AsDuration()); err != nil {
			return err
		}

		if _, err := s.Sweep(ctx, ""); err != nil {
			s.l.Warn("sweep failed", logctx.Error(err))
		}
	}
}

func (s *Sweeper) waitFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats summarizes one sweep.
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sweep drains the pending queue once. A non-empty onlyJob narrows the
// sweep to that job's items. Item failures are contained, recorded on the
// queue and reported through the routing table; only infrastructure
// errors propagate.
func (s *Sweeper) Sweep(ctx context.Context, onlyJob string) (Stats, error) {
	ctx = logctx.WithNewRunID(ctx)

	items, err := s.queue.Pending(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "cannot list pending work items")
	}

	if onlyJob != "" {
		items = lo.Filter(items, func(it workqueue.Item, _ int) bool {
			return it.Job == onlyJob
		})
	}

	if len(items) == 0 {
		s.l.DebugContext(ctx, "nothing to sweep")
		return Stats{}, nil
	}

	stats := Stats{Total: len(items)}

	byJob := lo.GroupBy(items, func(it workqueue.Item) string { return it.Job })
	names := lo.Keys(byJob)
	sort.Strings(names)

	for _, name := range names {
		jobItems := byJob[name]

		job, exists := s.jobs[name]
		if !exists {
			stats.Skipped += len(jobItems)
			s.l.WarnContext(ctx, "no job registered for queued items",
				slog.String("job", name), slog.Int("items", len(jobItems)))
			continue
		}

		report := s.runJob(ctx, job, jobItems)
		stats.Succeeded += report.Succeeded
		stats.Failed += report.Failed

		if err := s.recordResults(ctx, name, report); err != nil {
			s.l.WarnContext(ctx, "cannot record sweep results",
				slog.String("job", name), logctx.Error(err))
		}

		if ctx.Err() != nil {
			break
		}
	}

	s.l.InfoContext(ctx, "sweep finished",
		slog.Int("total", stats.Total),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("skipped", stats.Skipped),
	)

	return stats, nil
}

func (s *Sweeper) runJob(ctx context.Context, job Job, items []workqueue.Item) batch.Report[workqueue.Item] {
	runner := batch.NewRunner[workqueue.Item](
		s.instrument(job),
		batch.WithLogger(s.reg.Get(loggerNamespace+"."+job.Name())),
		batch.WithItemTimeout(s.conf.ItemTimeout.AsDuration()),
	)

	return runner.Run(ctx, items)
}

func (s *Sweeper) recordResults(ctx context.Context, job string, report batch.Report[workqueue.Item]) error {
	var merr *multierror.Error

	for _, res := range report.Results {
		if res.Err == nil {
			if err := s.queue.MarkDone(ctx, res.Item.ID); err != nil {
				merr = multierror.Append(merr, err)
			}
			continue
		}

		var internal *batch.InternalError
		if errors.As(res.Err, &internal) && internal.Stack != nil {
			s.jobMetricsFor(job).PanicCounter.Inc()
		}

		if err := s.queue.MarkFailed(ctx, res.Item.ID, res.Err); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	return merr.ErrorOrNil()
}

// instrumentedJob wraps a job with a per-item span, the item's log context
// and the outcome metrics. Panics unwind through it, the batch runner
// recovers above.
type instrumentedJob struct {
	job    Job
	tracer trace.Tracer
	m      *jobMetrics
}

func (s *Sweeper) instrument(job Job) instrumentedJob {
	return instrumentedJob{
		job:    job,
		tracer: otel.Tracer("logwire/sweeper"),
		m:      s.jobMetricsFor(job.Name()),
	}
}

func (p instrumentedJob) Name() string { return p.job.Name() }

func (p instrumentedJob) Process(ctx context.Context, item workqueue.Item) error {
	ctx, span := p.tracer.Start(ctx, "sweeper.ProcessItem")
	defer span.End()

	span.SetAttributes(
		attribute.String("job", item.Job),
		attribute.String("item_id", item.ID),
	)

	ctx = logctx.ContextWith(ctx, slog.String("item_id", item.ID))

	start := time.Now()
	if err := p.job.Process(ctx, item); err != nil {
		p.m.FailCounter.Inc()
		p.m.FailDuration.UpdateDuration(start)
		return err
	}

	p.m.SuccessCounter.Inc()
	p.m.SuccessDuration.UpdateDuration(start)

	return nil
}
