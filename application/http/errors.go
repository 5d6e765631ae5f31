package http

import "github.com/pkg/errors"

var (
	// ErrIncompleteFrame is not a failure. It means more bytes are needed.
	ErrIncompleteFrame = errors.New("incomplete frame")

	ErrInvalidChunkSize = errors.New("invalid chunk size")
	ErrMalformedChunk   = errors.New("malformed chunk")
	ErrPayloadTooLarge  = errors.New("payload too large")

	ErrMalformedRequest = errors.New("malformed request")
	ErrHeaderTooLarge   = errors.New("header block exceeds limit")

	// ErrHandlerFault is raised when a middleware or a handler fails
	// to produce a response.
	ErrHandlerFault = errors.New("handler fault")
)
