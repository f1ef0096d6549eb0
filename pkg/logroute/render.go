package logroute

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/logwirehq/logwire/pkg/common/logctx"
)

// flattenAttrs resolves the record attrs into a flat list, joining group
// names into dotted keys.
func flattenAttrs(rec slog.Record) []slog.Attr {
	var out []slog.Attr

	rec.Attrs(func(a slog.Attr) bool {
		out = append(out, expandAttr("", a)...)
		return true
	})

	return out
}

func expandAttr(prefix string, a slog.Attr) []slog.Attr {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	value := a.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return []slog.Attr{{Key: key, Value: value}}
	}

	var out []slog.Attr
	for _, member := range value.Group() {
		out = append(out, expandAttr(key, member)...)
	}

	return out
}

// renderLine flattens an entry into a single log line for line-oriented
// destinations. Multi-line values (stack traces) are left out.
func renderLine(e Entry) string {
	var b strings.Builder

	b.WriteString(e.Record.Message)
	fmt.Fprintf(&b, " | logger=%s level=%s", e.Logger, e.Level)

	for _, a := range flattenAttrs(e.Record) {
		if a.Key == logctx.StackKey {
			continue
		}

		value := a.Value.String()
		if strings.ContainsRune(value, '\n') {
			continue
		}

		fmt.Fprintf(&b, " %s=%q", a.Key, value)
	}

	return b.String()
}

// renderBody lays an entry out as a plain-text report: headline, attrs one
// per line, stack trace at the end.
func renderBody(e Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", e.Record.Message)
	fmt.Fprintf(&b, "logger: %s\n", e.Logger)
	fmt.Fprintf(&b, "level: %s\n", e.Level)
	fmt.Fprintf(&b, "time: %s\n", e.Record.Time.Format("2006-01-02T15:04:05.999999999Z07:00"))

	var stack string
	for _, a := range flattenAttrs(e.Record) {
		if a.Key == logctx.StackKey {
			stack = a.Value.String()
			continue
		}

		fmt.Fprintf(&b, "%s: %s\n", a.Key, a.Value)
	}

	if stack != "" {
		fmt.Fprintf(&b, "\nstack trace:\n%s\n", stack)
	}

	return b.String()
}
