package logroute_test

import (
	"log/slog"
	"testing"

	"github.com/logwirehq/logwire/pkg/logroute"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want logroute.Level
	}{
		{"debug", logroute.LevelDebug},
		{"info", logroute.LevelInfo},
		{"warning", logroute.LevelWarning},
		{"warn", logroute.LevelWarning},
		{"WARN", logroute.LevelWarning},
		{"Error", logroute.LevelError},
		{"critical", logroute.LevelCritical},
		{" critical ", logroute.LevelCritical},
		{"", logroute.LevelUnset},
	}

	for _, tc := range cases {
		got, err := logroute.ParseLevel(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := logroute.ParseLevel("fatal")
	require.Error(t, err)
	require.ErrorContains(t, err, "fatal")
}

func TestLevelOrdering(t *testing.T) {
	require.Less(t, logroute.LevelDebug, logroute.LevelInfo)
	require.Less(t, logroute.LevelInfo, logroute.LevelWarning)
	require.Less(t, logroute.LevelWarning, logroute.LevelError)
	require.Less(t, logroute.LevelError, logroute.LevelCritical)
}

func TestLevelSlogMapping(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logroute.LevelDebug.Slog())
	require.Equal(t, slog.LevelInfo, logroute.LevelInfo.Slog())
	require.Equal(t, slog.LevelWarn, logroute.LevelWarning.Slog())
	require.Equal(t, slog.LevelError, logroute.LevelError.Slog())
	require.Equal(t, slog.LevelError+4, logroute.LevelCritical.Slog())

	require.Equal(t, logroute.LevelCritical, logroute.LevelFromSlog(slog.LevelError+4))
	require.Equal(t, logroute.LevelError, logroute.LevelFromSlog(slog.LevelError+2))
	require.Equal(t, logroute.LevelInfo, logroute.LevelFromSlog(slog.LevelInfo+1))
	require.Equal(t, logroute.LevelDebug, logroute.LevelFromSlog(slog.LevelDebug-4))
}

func TestLevelYAMLRoundTrip(t *testing.T) {
	type holder struct {
		Level logroute.Level `yaml:"level,omitempty"`
	}

	var h holder
	require.NoError(t, yaml.Unmarshal([]byte(`level: warn`), &h))
	require.Equal(t, logroute.LevelWarning, h.Level)

	out, err := yaml.Marshal(holder{Level: logroute.LevelCritical})
	require.NoError(t, err)
	require.Equal(t, "level: critical\n", string(out))

	require.Error(t, yaml.Unmarshal([]byte(`level: loud`), &h))
}
