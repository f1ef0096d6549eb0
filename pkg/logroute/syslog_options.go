package logroute

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type syslogOptions struct {
	// Network and Address name a remote syslog daemon ("udp", "tcp"); both
	// empty means the local system log socket.
	Network string `json:"network" yaml:"network"`
	Address string `json:"address" yaml:"address"`
	// Facility defaults to "user".
	Facility string `json:"facility" yaml:"facility"`
	// Tag defaults to the process name.
	Tag string `json:"tag" yaml:"tag"`
}

var syslogFacilityNames = []string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

func (o syslogOptions) validate() error {
	if o.Facility != "" && !lo.Contains(syslogFacilityNames, o.Facility) {
		return errors.Errorf(
			"unknown syslog facility %q, allowed options are only [%s]",
			o.Facility, strings.Join(syslogFacilityNames, ", "),
		)
	}

	if o.Network != "" && o.Address == "" {
		return errors.New("syslog sink with a network needs an address")
	}

	return nil
}

func validateSyslogSink(name string, c HandlerConfig) error {
	var o syslogOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return err
	}

	return o.validate()
}
