// Package workqueue keeps the file-backed queue of batch work items. Items
// survive restarts: a failed item stays recorded, with its attempt count and
// last error, until some later sweep succeeds on it.
package workqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/common/statestore"
	"github.com/logwirehq/logwire/pkg/logroute"
)

var ErrItemNotFound = errors.New("work item not found")

type State string

const (
	StatePending State = "pending"
	StateFailed  State = "failed"
	StateDone    State = "done"
)

type Item struct {
	ID        string    `json:"id"`
	Job       string    `json:"job"`
	Payload   string    `json:"payload"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i Item) String() string {
	return i.Job + "/" + i.ID
}

// Snapshot is the persisted shape of the queue.
type Snapshot struct {
	Items []Item `json:"items"`
}

func InitialSnapshot() Snapshot {
	return Snapshot{}
}

type Config struct {
	Path         string            `json:"path" yaml:"path"`
	SyncInterval logroute.Duration `json:"sync_interval" yaml:"sync_interval"`
}

type Queue struct {
	l     *slog.Logger
	store statestore.Store[Snapshot]
}

func New(store statestore.Store[Snapshot], opts ...Option) *Queue {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}

	l := o.l
	if l == nil {
		l = logctx.NopLogger()
	}

	return &Queue{
		l:     l.With(slog.String("component", "workqueue")),
		store: store,
	}
}

func (q *Queue) Enqueue(ctx context.Context, job, payload string) (Item, error) {
	item := Item{
		ID:        uuid.NewString(),
		Job:       job,
		Payload:   payload,
		State:     StatePending,
		UpdatedAt: time.Now().UTC(),
	}

	err := q.store.Update(ctx, func(s *Snapshot) error {
		s.Items = append(s.Items, item)
		return nil
	})
	if err != nil {
		return Item{}, errors.Wrap(err, "cannot enqueue work item")
	}

	q.l.DebugContext(ctx, "work item enqueued", slog.String("item", item.String()))
	return item, nil
}

// Pending returns the items still awaiting a successful run. Failed items
// are included: they get retried on the next sweep.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	s, err := q.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load work queue")
	}

	return lo.Filter(s.Items, func(it Item, _ int) bool {
		return it.State != StateDone
	}), nil
}

// All returns every queued item, done ones included.
func (q *Queue) All(ctx context.Context) ([]Item, error) {
	s, err := q.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load work queue")
	}
	return s.Items, nil
}

func (q *Queue) MarkDone(ctx context.Context, id string) error {
	return q.mark(ctx, id, func(it *Item) {
		it.State = StateDone
		it.LastError = ""
	})
}

// MarkFailed records one more failed attempt. The item keeps its place in
// the queue and shows up in Pending again.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	return q.mark(ctx, id, func(it *Item) {
		it.State = StateFailed
		it.Attempts++
		it.LastError = msg
	})
}

func (q *Queue) mark(ctx context.Context, id string, change func(it *Item)) error {
	err := q.store.Update(ctx, func(s *Snapshot) error {
		for i := range s.Items {
			if s.Items[i].ID != id {
				continue
			}

			change(&s.Items[i])
			s.Items[i].UpdatedAt = time.Now().UTC()
			return nil
		}

		return errors.Wrapf(ErrItemNotFound, "id %s", id)
	})

	return errors.Wrap(err, "cannot update work item")
}
