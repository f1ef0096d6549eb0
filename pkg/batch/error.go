package batch

// InternalError marks a failure of the processing machinery itself, as
// opposed to an item legitimately failing. Panics surface as internal
// errors with the goroutine stack captured at the recovery point.
type InternalError struct {
	Internal error
	Stack    []byte
}

func NewInternalError(err error) error {
	return &InternalError{Internal: err}
}

func (e *InternalError) Error() string {
	return e.Internal.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Internal
}
