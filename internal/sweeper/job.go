package sweeper

import (
	"context"

	"go.uber.org/fx"

	"github.com/logwirehq/logwire/internal/registrar"
	"github.com/logwirehq/logwire/internal/workqueue"
)

// Job processes queued work items of one kind. Implementations register
// their constructors with RegisterJob from an init function; dependencies
// arrive through the application graph.
//
// Process is called once per pending item. Returning an error marks the
// item failed and keeps it queued for the next sweep; it never stops the
// sweep itself.
type Job interface {
	// Name ties the job to queue items carrying the same Job field. It also
	// names the logger the job's failures are reported on:
	// logwire.sweeper.<name>.
	Name() string
	Process(ctx context.Context, item workqueue.Item) error
}

// RegisterJob registers the constructor of the job with needed annotations.
// If you need to register a job, use THIS function.
// If you need to register some dependencies for your job, use registrar.Register.
func RegisterJob(constructor interface{}) {
	registrar.Register(
		fx.Annotate(
			constructor,
			fx.As(new(Job)),
			fx.ResultTags(`group:"jobs"`),
		),
	)
}
