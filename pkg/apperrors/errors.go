package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrInvalidSelection    = errors.New("invalid selection")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrAuthFailed          = errors.New("upstream authentication failed")
)
