//go:build unix

package logroute

import (
	"context"
	"log/syslog"

	"github.com/pkg/errors"
)

var syslogFacilities = map[string]syslog.Priority{
	"kern":     syslog.LOG_KERN,
	"user":     syslog.LOG_USER,
	"mail":     syslog.LOG_MAIL,
	"daemon":   syslog.LOG_DAEMON,
	"auth":     syslog.LOG_AUTH,
	"syslog":   syslog.LOG_SYSLOG,
	"lpr":      syslog.LOG_LPR,
	"news":     syslog.LOG_NEWS,
	"uucp":     syslog.LOG_UUCP,
	"cron":     syslog.LOG_CRON,
	"authpriv": syslog.LOG_AUTHPRIV,
	"ftp":      syslog.LOG_FTP,
	"local0":   syslog.LOG_LOCAL0,
	"local1":   syslog.LOG_LOCAL1,
	"local2":   syslog.LOG_LOCAL2,
	"local3":   syslog.LOG_LOCAL3,
	"local4":   syslog.LOG_LOCAL4,
	"local5":   syslog.LOG_LOCAL5,
	"local6":   syslog.LOG_LOCAL6,
	"local7":   syslog.LOG_LOCAL7,
}

// syslogSink forwards entries to the system log, mapping severities onto
// syslog priorities. The facility comes from the document, the severity from
// each record.
type syslogSink struct {
	w *syslog.Writer
}

func newSyslogSink(name string, c HandlerConfig, env SinkEnv) (Sink, error) {
	var o syslogOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return nil, err
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	facility, ok := syslogFacilities[o.Facility]
	if !ok {
		facility = syslog.LOG_USER
	}

	w, err := syslog.Dial(o.Network, o.Address, facility|syslog.LOG_INFO, o.Tag)
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to syslog")
	}

	return &syslogSink{w: w}, nil
}

func (s *syslogSink) Emit(ctx context.Context, e Entry) error {
	line := renderLine(e)

	switch e.Level {
	case LevelDebug:
		return s.w.Debug(line)
	case LevelInfo:
		return s.w.Info(line)
	case LevelWarning:
		return s.w.Warning(line)
	case LevelError:
		return s.w.Err(line)
	case LevelCritical:
		return s.w.Crit(line)
	default:
		return s.w.Info(line)
	}
}

func (s *syslogSink) Close() error {
	return s.w.Close()
}

func init() {
	RegisterSinkKind(SinkKindSyslog, SinkKind{
		New:      newSyslogSink,
		Validate: validateSyslogSink,
	})
}
