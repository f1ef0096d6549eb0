package logroute

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Level is an ordered record severity. The zero value means "not configured":
// loggers inherit the nearest configured ancestor level, handlers pass
// everything through.
type Level int

const (
	LevelUnset Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// SlogLevelCritical is the slog representation of LevelCritical, one step
// above slog.LevelError the same way error sits above warning.
const SlogLevelCritical = slog.LevelError + 4

var levelNames = map[Level]string{
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelCritical: "critical",
}

// ParseLevel parses a severity name case-insensitively. "warn" is accepted as
// an alias of "warning".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LevelUnset, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelUnset, errors.Errorf("unknown severity %q, want one of debug, info, warning, error, critical", s)
	}
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return ""
}

// Slog maps the severity onto the slog level scale.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelCritical:
		return SlogLevelCritical
	default:
		return slog.LevelDebug
	}
}

// LevelFromSlog buckets an slog level into the severity scale. Levels between
// two severities round down, anything at or above error+4 is critical.
func LevelFromSlog(sl slog.Level) Level {
	switch {
	case sl < slog.LevelInfo:
		return LevelDebug
	case sl < slog.LevelWarn:
		return LevelInfo
	case sl < slog.LevelError:
		return LevelWarning
	case sl < SlogLevelCritical:
		return LevelError
	default:
		return LevelCritical
	}
}

func (l Level) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errors.Wrap(err, "severity must be a string")
	}

	parsed, err := ParseLevel(raw)
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}

func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

func (l *Level) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)

	parsed, err := ParseLevel(raw)
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}
