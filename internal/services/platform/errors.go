package platform

import "errors"

var (
	// ErrUnknownPlatform is returned for an unregistered platform tag.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrMissingOrderID is returned when a payload carries no usable
	// external order identifier.
	ErrMissingOrderID = errors.New("payload has no usable order identifier")
	// ErrMalformedPayload is returned when a payload cannot be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)
