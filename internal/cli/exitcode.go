package cli

import "errors"

// exitCodeError wraps an error with the explicit process exit code it should
// produce, per the documented exit code table (usage errors 2, missing
// .ralph directory 5, validation errors 4, resume decisions 65-67, agent
// failures 56-63, generic errors 1).
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// ExitCode returns the process exit code for err, defaulting to 1 for any
// error that doesn't carry an explicit code and 0 for a nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ece *exitCodeError
	if errors.As(err, &ece) {
		return ece.code
	}
	return 1
}

// noRalphDirError marks an error that should exit 5 ("no .ralph directory").
func noRalphDirError(err error) error {
	return &exitCodeError{code: 5, err: err}
}

// usageError marks an error that should exit 2 (bad CLI usage).
func usageError(err error) error {
	return &exitCodeError{code: 2, err: err}
}
