package logroute

import (
	"encoding/json"
	"time"

	"github.com/logwirehq/logwire/pkg/ratelimit"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration parses from "500ms" / "1m30s" style strings in YAML and JSON, and
// from bare numbers taken as nanoseconds.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	return d.set(raw)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	return d.set(raw)
}

func (d *Duration) set(raw interface{}) error {
	switch value := raw.(type) {
	case int:
		*d = Duration(time.Duration(value))
	case int64:
		*d = Duration(time.Duration(value))
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(err, "cannot parse duration %q", value)
		}
		*d = Duration(parsed)
	default:
		return errors.Errorf("invalid duration value %v", raw)
	}

	return nil
}

// RateSpec is the document form of a windowed allowance: at most Times
// records per Per window.
type RateSpec struct {
	Times uint64   `json:"times" yaml:"times"`
	Per   Duration `json:"per" yaml:"per"`
}

func (r RateSpec) Limit() ratelimit.Spec {
	return ratelimit.Spec{Times: r.Times, Per: r.Per.AsDuration()}
}
