package mq

// TransportError wraps a broker failure (connection refused, publish
// failed, topic unavailable). Callers match it with errors.As to choose a
// retry policy: transport errors are transient and retriable, unlike
// rejections or timeouts.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return "mq: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying broker error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
