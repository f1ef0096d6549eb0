package logctx

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

const (
	// ErrorKey is the attribute key under which Error stores the error message.
	ErrorKey = "error"
	// StackKey is the attribute key under which Stack stores a formatted stack trace.
	StackKey = "stack"
)

// Error returns the attr used across the codebase to attach an error to a record.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	return slog.String(ErrorKey, err.Error())
}

// Stack returns an attr with the deepest stack trace recorded in err's chain,
// or the zero attr if no stack was recorded. Errors created or wrapped with
// github.com/pkg/errors carry such traces.
func Stack(err error) slog.Attr {
	trace, ok := StackOf(err)
	if !ok {
		return slog.Attr{}
	}

	return slog.String(StackKey, trace)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// StackOf walks err's wrap chain and formats the stack trace closest to the
// original failure site.
func StackOf(err error) (string, bool) {
	var deepest stackTracer
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			deepest = st
		}
		err = errors.Unwrap(err)
	}

	if deepest == nil {
		return "", false
	}

	return fmt.Sprintf("%+v", deepest.StackTrace()), true
}
