// Package logroute turns a declarative document of filters, handlers and
// hierarchical named loggers into live log routing. A Registry hands out
// *slog.Logger front-ends; records logged on them are matched against the
// applied document (nearest-ancestor severity, propagation cutoffs, handler
// levels, filter chains) and fanned out to the configured sinks: console,
// rotating file, syslog, admin mail, or any kind registered by the caller.
//
// The document can be re-applied at runtime (or watched on disk); loggers
// obtained before the swap keep working and pick up the new routing.
package logroute
