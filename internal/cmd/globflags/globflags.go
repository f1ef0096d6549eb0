// Package globflags holds flag values shared between commands. They are
// bound in the commands' init functions and read wherever the config is
// loaded.
package globflags

var (
	ConfigPath string
	Debug      bool
	LoggerName string
	LevelName  string
	JobName    string
)
