package sweeper_test

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/logwirehq/logwire/internal/sweeper"
	"github.com/logwirehq/logwire/internal/workqueue"
	"github.com/logwirehq/logwire/pkg/common/statestore"
	"github.com/logwirehq/logwire/pkg/logroute"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memorySink struct {
	id string
}

var (
	sinkMu      sync.Mutex
	sinkRecords = map[string][]logroute.Entry{}
)

func init() {
	logroute.RegisterSinkKind("memory", logroute.SinkKind{
		New: func(_ string, c logroute.HandlerConfig, _ logroute.SinkEnv) (logroute.Sink, error) {
			var o struct {
				ID string `yaml:"id"`
			}
			if err := logroute.DecodeOptions(c.Options, &o); err != nil {
				return nil, err
			}
			return &memorySink{id: o.ID}, nil
		},
	})
}

func (m *memorySink) Emit(_ context.Context, e logroute.Entry) error {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sinkRecords[m.id] = append(sinkRecords[m.id], e)
	return nil
}

func (m *memorySink) Close() error { return nil }

func recordsFor(id string) []logroute.Entry {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	return append([]logroute.Entry(nil), sinkRecords[id]...)
}

func newRegistry(t *testing.T) *logroute.Registry {
	t.Helper()

	doc := fmt.Sprintf(`
version: 1
handlers:
  sweep_log:
    kind: memory
    id: %q
    level: debug
loggers:
  logwire.sweeper:
    level: debug
root:
  level: warning
  handlers: [sweep_log]
`, t.Name())

	c, err := logroute.Parse([]byte(doc))
	require.NoError(t, err)

	reg := logroute.New()
	require.NoError(t, reg.Apply(context.Background(), c))
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	return reg
}

type testJob struct {
	name      string
	fn        func(ctx context.Context, it workqueue.Item) error
	processed []string
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Process(ctx context.Context, it workqueue.Item) error {
	j.processed = append(j.processed, it.Payload)
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx, it)
}

func newSweeper(t *testing.T, reg *logroute.Registry, jobs ...sweeper.Job) (*sweeper.Sweeper, *workqueue.Queue) {
	t.Helper()

	store := statestore.NewJSONFile[workqueue.Snapshot](
		statestore.JSONFileConfig{Path: filepath.Join(t.TempDir(), "queue.json")},
		workqueue.InitialSnapshot,
	)
	q := workqueue.New(store)

	s, err := sweeper.New(sweeper.In{
		Registry: reg,
		Queue:    q,
		Jobs:     jobs,
		Config: sweeper.Config{
			SweepInterval: logroute.Duration(20 * time.Millisecond),
			ItemTimeout:   logroute.Duration(5 * time.Second),
		},
	})
	require.NoError(t, err)

	return s, q
}

func TestSweepProcessesPendingItems(t *testing.T) {
	ctx := context.Background()
	job := &testJob{name: "probe"}
	s, q := newSweeper(t, newRegistry(t), job)

	_, err := q.Enqueue(ctx, "probe", "https://a.example")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "probe", "https://b.example")
	require.NoError(t, err)

	stats, err := s.Sweep(ctx, "")
	require.NoError(t, err)
	require.Equal(t, sweeper.Stats{Total: 2, Succeeded: 2}, stats)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, job.processed)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSweepFailingItemStaysQueued(t *testing.T) {
	ctx := context.Background()
	job := &testJob{
		name: "probe",
		fn: func(_ context.Context, it workqueue.Item) error {
			if it.Payload == "https://down.example" {
				return errors.New("connect refused")
			}
			return nil
		},
	}
	s, q := newSweeper(t, newRegistry(t), job)

	_, err := q.Enqueue(ctx, "probe", "https://down.example")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "probe", "https://up.example")
	require.NoError(t, err)

	stats, err := s.Sweep(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Succeeded)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, workqueue.StateFailed, pending[0].State)
	require.Equal(t, 1, pending[0].Attempts)
	require.Contains(t, pending[0].LastError, "connect refused")

	// the next sweep retries the failed item
	_, err = s.Sweep(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, len(job.processed))
}

func TestSweepPanicIsContained(t *testing.T) {
	ctx := context.Background()
	job := &testJob{
		name: "probe",
		fn: func(_ context.Context, it workqueue.Item) error {
			if it.Payload == "bad" {
				panic("index out of range")
			}
			return nil
		},
	}
	s, q := newSweeper(t, newRegistry(t), job)

	_, err := q.Enqueue(ctx, "probe", "bad")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "probe", "good")
	require.NoError(t, err)

	stats, err := s.Sweep(ctx, "")
	require.NoError(t, err, "a panicking item must not fail the sweep")
	require.Equal(t, 1, stats.Succeeded)
	require.Equal(t, 1, stats.Failed)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Contains(t, pending[0].LastError, "paniced")
	require.Contains(t, pending[0].LastError, "index out of range")

	// the sweeper survives and keeps sweeping
	_, err = s.Sweep(ctx, "")
	require.NoError(t, err)
}

func TestSweepFailureRoutedPerDocument(t *testing.T) {
	ctx := context.Background()
	job := &testJob{
		name: "probe",
		fn: func(context.Context, workqueue.Item) error {
			return errors.New("gateway timeout")
		},
	}
	s, q := newSweeper(t, newRegistry(t), job)

	_, err := q.Enqueue(ctx, "probe", "https://slow.example")
	require.NoError(t, err)

	_, err = s.Sweep(ctx, "")
	require.NoError(t, err)

	var failure *logroute.Entry
	records := recordsFor(t.Name())
	for i := range records {
		if records[i].Record.Message == "item processing failed" {
			failure = &records[i]
			break
		}
	}
	require.NotNil(t, failure, "the failure must reach the document's handler")
	require.Equal(t, "logwire.sweeper.probe", failure.Logger)
	require.Equal(t, logroute.LevelError, failure.Level)

	attrs := map[string]string{}
	failure.Record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	require.Contains(t, attrs["error"], "gateway timeout")
	require.NotEmpty(t, attrs["run_id"])
	require.NotEmpty(t, attrs["item"])
	require.NotEmpty(t, attrs["stack"])
}

func TestJobRecordsCarryItemContext(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	job := &testJob{
		name: "probe",
		fn: func(ctx context.Context, _ workqueue.Item) error {
			reg.Get("logwire.sweeper.probe").InfoContext(ctx, "probing endpoint")
			return nil
		},
	}
	s, q := newSweeper(t, reg, job)

	_, err := q.Enqueue(ctx, "probe", "https://a.example")
	require.NoError(t, err)

	_, err = s.Sweep(ctx, "")
	require.NoError(t, err)

	var probed *logroute.Entry
	records := recordsFor(t.Name())
	for i := range records {
		if records[i].Record.Message == "probing endpoint" {
			probed = &records[i]
			break
		}
	}
	require.NotNil(t, probed)

	attrs := map[string]string{}
	probed.Record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	require.NotEmpty(t, attrs["run_id"])
	require.NotEmpty(t, attrs["item_id"])
}

func TestSweepOnlyJobFilter(t *testing.T) {
	ctx := context.Background()
	probe := &testJob{name: "probe"}
	report := &testJob{name: "report"}
	s, q := newSweeper(t, newRegistry(t), probe, report)

	_, err := q.Enqueue(ctx, "probe", "https://a.example")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "report", "weekly")
	require.NoError(t, err)

	stats, err := s.Sweep(ctx, "probe")
	require.NoError(t, err)
	require.Equal(t, sweeper.Stats{Total: 1, Succeeded: 1}, stats)
	require.Empty(t, report.processed)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "report", pending[0].Job)
}

func TestSweepSkipsItemsWithoutJob(t *testing.T) {
	ctx := context.Background()
	probe := &testJob{name: "probe"}
	s, q := newSweeper(t, newRegistry(t), probe)

	_, err := q.Enqueue(ctx, "ghost", "whatever")
	require.NoError(t, err)

	stats, err := s.Sweep(ctx, "")
	require.NoError(t, err)
	require.Equal(t, sweeper.Stats{Total: 1, Skipped: 1}, stats)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "orphaned items stay queued")
}

func TestStartStopSweepsPeriodically(t *testing.T) {
	ctx := context.Background()
	job := &testJob{name: "probe"}
	s, q := newSweeper(t, newRegistry(t), job)

	_, err := q.Enqueue(ctx, "probe", "https://a.example")
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		pending, err := q.Pending(ctx)
		return err == nil && len(pending) == 0
	}, 5*time.Second, 25*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}

func TestDuplicateJobRejected(t *testing.T) {
	reg := newRegistry(t)
	store := statestore.NewJSONFile[workqueue.Snapshot](
		statestore.JSONFileConfig{Path: filepath.Join(t.TempDir(), "queue.json")},
		workqueue.InitialSnapshot,
	)

	_, err := sweeper.New(sweeper.In{
		Registry: reg,
		Queue:    workqueue.New(store),
		Jobs:     []sweeper.Job{&testJob{name: "probe"}, &testJob{name: "probe"}},
		Config:   sweeper.Config{SweepInterval: logroute.Duration(time.Second)},
	})
	require.ErrorContains(t, err, "registered twice")
}
