package logroute

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the routing document. It is read when applied and never mutated
// by the registry.
type Config struct {
	Version                int                      `json:"version" yaml:"version"`
	DisableExistingLoggers bool                     `json:"disable_existing_loggers,omitempty" yaml:"disable_existing_loggers,omitempty"`
	Filters                map[string]FilterConfig  `json:"filters,omitempty" yaml:"filters,omitempty"`
	Handlers               map[string]HandlerConfig `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Loggers                map[string]LoggerConfig  `json:"loggers,omitempty" yaml:"loggers,omitempty"`
	Root                   RootConfig               `json:"root,omitempty" yaml:"root,omitempty"`
}

// FilterConfig declares one named filter: its kind plus whatever extra fields
// that kind understands, kept flat in the document.
type FilterConfig struct {
	Kind    string
	Options map[string]interface{}
}

// HandlerConfig declares one named handler: the sink kind, the minimum
// severity it accepts, the ordered filter chain gating it, and the
// kind-specific fields, kept flat in the document.
type HandlerConfig struct {
	Kind    string
	Level   Level
	Filters []string
	Options map[string]interface{}
}

type LoggerConfig struct {
	Level     Level    `json:"level,omitempty" yaml:"level,omitempty"`
	Handlers  []string `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Propagate *bool    `json:"propagate,omitempty" yaml:"propagate,omitempty"`
}

// Propagates reports whether records continue to ancestor handlers. Loggers
// propagate unless the document says otherwise.
func (c LoggerConfig) Propagates() bool {
	return c.Propagate == nil || *c.Propagate
}

type RootConfig struct {
	Level    Level    `json:"level,omitempty" yaml:"level,omitempty"`
	Handlers []string `json:"handlers,omitempty" yaml:"handlers,omitempty"`
}

// DefaultConfig routes warning and above to a console sink on stderr. It is
// the table a fresh registry starts with, so loggers work before any
// document is applied.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Handlers: map[string]HandlerConfig{
			"default": {
				Kind:    SinkKindConsole,
				Options: map[string]interface{}{"stream": "stderr"},
			},
		},
		Root: RootConfig{
			Level:    LevelWarning,
			Handlers: []string{"default"},
		},
	}
}

// Load reads a YAML or JSON routing document from disk. Environment
// references ($VAR, ${VAR}) are expanded before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "cannot read routing document %q", path)
	}

	expanded := os.ExpandEnv(string(data))

	c, err := Parse([]byte(expanded))
	if err != nil {
		return Config{}, errors.Wrapf(err, "cannot parse routing document %q", path)
	}

	return c, nil
}

// Parse decodes a routing document. JSON documents parse as well, YAML being
// a superset.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "cannot decode routing document")
	}

	return c, nil
}

// DecodeOptions maps the flat kind-specific fields of a filter or handler
// declaration onto a typed config struct. Sink and filter constructors use it
// to pick up their own fields.
func DecodeOptions(options map[string]interface{}, dst interface{}) error {
	if len(options) == 0 {
		return nil
	}

	raw, err := yaml.Marshal(options)
	if err != nil {
		return errors.Wrap(err, "cannot re-encode options")
	}

	if err := yaml.Unmarshal(raw, dst); err != nil {
		return errors.Wrap(err, "cannot decode options")
	}

	return nil
}

func (f FilterConfig) MarshalYAML() (interface{}, error) {
	return flatten(map[string]interface{}{"kind": f.Kind}, f.Options), nil
}

func (f *FilterConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]interface{}
	if err := value.Decode(&raw); err != nil {
		return errors.Wrap(err, "filter declaration must be a mapping")
	}

	return f.fromRaw(raw)
}

func (f FilterConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(flatten(map[string]interface{}{"kind": f.Kind}, f.Options))
}

func (f *FilterConfig) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "filter declaration must be an object")
	}

	return f.fromRaw(raw)
}

func (f *FilterConfig) fromRaw(raw map[string]interface{}) error {
	kind, _ := raw["kind"].(string)
	delete(raw, "kind")

	f.Kind = kind
	f.Options = raw

	return nil
}

func (h HandlerConfig) MarshalYAML() (interface{}, error) {
	return h.toRaw(), nil
}

func (h *HandlerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]interface{}
	if err := value.Decode(&raw); err != nil {
		return errors.Wrap(err, "handler declaration must be a mapping")
	}

	return h.fromRaw(raw)
}

func (h HandlerConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.toRaw())
}

func (h *HandlerConfig) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "handler declaration must be an object")
	}

	return h.fromRaw(raw)
}

func (h HandlerConfig) toRaw() map[string]interface{} {
	known := map[string]interface{}{"kind": h.Kind}
	if h.Level != LevelUnset {
		known["level"] = h.Level.String()
	}
	if len(h.Filters) > 0 {
		known["filters"] = h.Filters
	}

	return flatten(known, h.Options)
}

func (h *HandlerConfig) fromRaw(raw map[string]interface{}) error {
	kind, _ := raw["kind"].(string)
	delete(raw, "kind")

	var level Level
	if rawLevel, ok := raw["level"]; ok {
		s, ok := rawLevel.(string)
		if !ok {
			return errors.Errorf("handler level %v must be a severity name", rawLevel)
		}
		parsed, err := ParseLevel(s)
		if err != nil {
			return err
		}
		level = parsed
		delete(raw, "level")
	}

	var filters []string
	if rawFilters, ok := raw["filters"]; ok {
		list, ok := rawFilters.([]interface{})
		if !ok {
			return errors.New("handler filters must be a list of names")
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return errors.Errorf("handler filter reference %v must be a name", item)
			}
			filters = append(filters, name)
		}
		delete(raw, "filters")
	}

	h.Kind = kind
	h.Level = level
	h.Filters = filters
	h.Options = raw

	return nil
}

func flatten(known, options map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(known)+len(options))
	for k, v := range options {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}

	return out
}
