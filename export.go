package logwire

import (
	"github.com/logwirehq/logwire/cmd/logwire/cmd"
	"github.com/logwirehq/logwire/internal/sweeper"
	"github.com/logwirehq/logwire/internal/workqueue"
	"github.com/logwirehq/logwire/pkg/batch"
	"github.com/logwirehq/logwire/pkg/logroute"
)

type (
	Config   = logroute.Config
	Level    = logroute.Level
	Registry = logroute.Registry

	Job  = sweeper.Job
	Item = workqueue.Item

	Processor[T any] = batch.Processor[T]
	Runner[T any]    = batch.Runner[T]
	Report[T any]    = batch.Report[T]
)

var (
	Execute = cmd.Execute

	NewRegistry = logroute.New
	Load        = logroute.Load
	Parse       = logroute.Parse
	Validate    = logroute.Validate
	ParseLevel  = logroute.ParseLevel

	RegisterJob = sweeper.RegisterJob
)

// NewRunner builds a batch runner for proc. See pkg/batch for options.
func NewRunner[T any](proc Processor[T], opts ...batch.Option) *Runner[T] {
	return batch.NewRunner(proc, opts...)
}
