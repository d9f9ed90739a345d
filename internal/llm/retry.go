package llm

import "errors"

// retryableError marks errors worth retrying: network failures, 429s,
// and 5xx responses.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError reports whether an error is wrapped as retryable.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
