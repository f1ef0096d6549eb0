//go:build !unix

package logroute

import "github.com/pkg/errors"

func newSyslogSink(name string, c HandlerConfig, env SinkEnv) (Sink, error) {
	return nil, errors.New("syslog sink is not supported on this platform")
}

func init() {
	RegisterSinkKind(SinkKindSyslog, SinkKind{
		New:      newSyslogSink,
		Validate: validateSyslogSink,
	})
}
