package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers transport errors, timeouts and non-2xx responses.
	ErrNetwork = errors.New("network failure")
	// ErrDecode is returned when a response body cannot be decoded.
	ErrDecode = errors.New("decode failure")
)

// StatusError is a non-2xx response. It matches ErrNetwork.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNetwork
}
