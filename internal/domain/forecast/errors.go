package forecast

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream failures by whether a retry may help.
type ErrorKind string

const (
	Transient ErrorKind = "transient" // 5xx, timeout, connection failure
	Permanent ErrorKind = "permanent" // 4xx, malformed response
)

// UpstreamError is returned by Fetcher implementations.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int // 0 when no response was received
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d, attempts %d): %v", e.Kind, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s upstream error (attempts %d): %v", e.Kind, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient UpstreamError.
func IsTransient(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Kind == Transient
}

// IsPermanent reports whether err is a permanent UpstreamError.
func IsPermanent(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Kind == Permanent
}
