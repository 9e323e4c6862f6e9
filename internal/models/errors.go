package models

import "errors"

// Sentinel errors the API layer maps to friendly HTTP responses. Internal
// detail is logged server-side and never returned to the client.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
)
