package model

import "errors"

// Error classes. Concrete errors wrap one of these with context.
var (
	// ErrInvalidReading marks a payload that is not a finite decimal number.
	ErrInvalidReading = errors.New("invalid reading")
	// ErrTransport marks connect, publish, subscribe or connection-lost failures.
	ErrTransport = errors.New("transport error")
	// ErrValidation marks a station that cannot be polled.
	ErrValidation = errors.New("validation error")
	// ErrPersistence marks a failed reading write.
	ErrPersistence = errors.New("persistence error")
	// ErrDispatch marks a failed irrigation command publish.
	ErrDispatch = errors.New("dispatch error")
)
