// Package apperr defines the error taxonomy shared across the orchestration
// core. Callers classify failures with errors.Is against the sentinels below;
// transports map them onto status codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrWrongState means the operation is invalid for the current status.
	ErrWrongState = errors.New("wrong state")
	// ErrWrongAgent means a PENDING_ACK agent mismatch (hostile or delayed duplicate).
	ErrWrongAgent = errors.New("wrong agent")
	// ErrInvalidIdentity means caller-supplied agent identity violates the schema.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidRouting means caller-supplied task routing violates the schema.
	ErrInvalidRouting = errors.New("invalid routing")
	// ErrNoMatches means a broadcast targeted no agents.
	ErrNoMatches = errors.New("no matching agents")
)

// NotFoundf wraps ErrNotFound with a formatted description.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// WrongStatef wraps ErrWrongState with a formatted description.
func WrongStatef(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrWrongState)...)
}
