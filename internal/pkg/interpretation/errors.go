package interpretation

import "errors"

var (
	// ErrInterpretationTimeout means every attempt timed out or failed transiently.
	ErrInterpretationTimeout = errors.New("interpretation timed out")
	// ErrInterpretationRejected means the service refused the request; retrying will not help.
	ErrInterpretationRejected = errors.New("interpretation rejected")

	errTransient = errors.New("transient interpretation failure")
)
