package ledger

import "fmt"

// DeserializationError reports a persisted ledger that exists but cannot be
// decoded. It is fatal at startup.
type DeserializationError struct {
	Path string
	Err  error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("ledger %s is malformed: %v", e.Path, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
