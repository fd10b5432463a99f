package main

// ExitCodeError carries a non-default process exit code. Most commands return
// plain errors and exit with 1; `ledger check` uses 2 so scripts can tell a
// bad ledger apart from a usage error.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
