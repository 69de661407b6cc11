package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the user lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired indicates the bearer token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the bearer token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates the AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrExtractionFailed indicates no text could be extracted from an upload
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrEmbeddingUnavailable indicates the embedding backend failed or is unreachable
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexWrite indicates the vector index rejected a write
	ErrIndexWrite = errors.New("index write failed")

	// ErrNoGroundingAvailable indicates a document question was asked with no completed documents
	ErrNoGroundingAvailable = errors.New("no documents available for grounding")

	// ErrInvalidTransition indicates a document status change out of a terminal state
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStreamFailed indicates the language model stream failed or ended without its sentinel
	ErrStreamFailed = errors.New("stream failed")

	// ErrStorage indicates stored file content could not be saved or read back intact
	ErrStorage = errors.New("storage error")
)
