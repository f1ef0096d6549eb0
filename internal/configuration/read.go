package configuration

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/logwirehq/logwire/internal/cmd/globflags"
	"github.com/logwirehq/logwire/internal/opsserver"
	"github.com/logwirehq/logwire/internal/sweeper"
	"github.com/logwirehq/logwire/internal/workqueue"
	"github.com/logwirehq/logwire/pkg/logroute"
)

// Runtime holds the process-level switches: Debug feeds the
// require_debug_* filters of the routing document, Watch keeps the daemon
// re-applying the document on file changes.
type Runtime struct {
	Debug bool `json:"debug" yaml:"debug"`
	Watch bool `json:"watch" yaml:"watch"`
}

type Config struct {
	fx.Out

	Logging logroute.Config  `json:"logging" yaml:"logging"`
	Runtime Runtime          `json:"runtime" yaml:",inline"`
	Ops     opsserver.Config `json:"ops" yaml:"ops"`
	Sweeper sweeper.Config   `json:"sweeper" yaml:"sweeper"`
	Queue   workqueue.Config `json:"queue" yaml:"queue"`
}

// envOverrides beat the config file: LOGWIRE_CONFIG supplies the path when
// the -c flag is absent, LOGWIRE_DEBUG flips debug mode regardless of the
// file contents.
type envOverrides struct {
	Debug      *bool  `env:"LOGWIRE_DEBUG"`
	ConfigPath string `env:"LOGWIRE_CONFIG"`
}

func defaultConfig() *Config {
	return &Config{
		Logging: logroute.DefaultConfig(),
		Runtime: Runtime{
			Watch: true,
		},
		Ops: opsserver.Config{
			Port: 14448,
		},
		Sweeper: sweeper.Config{
			SweepInterval: logroute.Duration(30 * time.Second),
			ItemTimeout:   logroute.Duration(time.Minute),
		},
		Queue: workqueue.Config{
			Path:         "/var/lib/logwire/queue.json",
			SyncInterval: logroute.Duration(5 * time.Second),
		},
	}
}

// ResolvePath picks the config file location: the -c flag when given, the
// LOGWIRE_CONFIG variable otherwise. Empty means run on defaults.
func ResolvePath() (string, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return "", errors.Wrap(err, "cannot parse environment overrides")
	}

	if globflags.ConfigPath != "" {
		return globflags.ConfigPath, nil
	}
	return overrides.ConfigPath, nil
}

func Read() (Config, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return Config{}, errors.Wrap(err, "cannot parse environment overrides")
	}

	confPath := globflags.ConfigPath
	if confPath == "" {
		confPath = overrides.ConfigPath
	}

	c := defaultConfig()
	if confPath != "" {
		loaded, err := ReadFile(confPath)
		if err != nil {
			return Config{}, err
		}
		c = &loaded
	}

	if overrides.Debug != nil {
		c.Runtime.Debug = *overrides.Debug
	}

	if err := Validate(c); err != nil {
		return Config{}, errors.Wrap(err, "invalid config provided")
	}

	return *c, nil
}

// ReadFile loads the config from an explicit path, on top of the defaults.
// Used by Read and by the reload path, which must not consult flags or the
// environment again.
func ReadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "cannot read config at %s", path)
	}

	data = []byte(os.ExpandEnv(string(data)))

	c := defaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return Config{}, errors.Wrap(err, "cannot parse config as yaml")
	}

	return *c, nil
}

func Validate(c *Config) error {
	if c.Ops.Port == 0 {
		return errors.Errorf("config.ops.port must be provided")
	}
	if c.Sweeper.SweepInterval <= 0 {
		return errors.Errorf("config.sweeper.sweep_interval must be provided")
	}
	if c.Queue.Path == "" {
		return errors.Errorf("config.queue.path must be provided")
	}

	if err := logroute.Validate(c.Logging); err != nil {
		return errors.Wrap(err, "invalid logging section")
	}

	return nil
}
