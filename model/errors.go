package model

import "errors"

// Stable error kinds surfaced by the engine. Callers match with errors.Is;
// wrapped causes stay reachable through errors.Unwrap.
var (
	// ErrOutOfRange indicates an id or offset outside its valid range.
	ErrOutOfRange = errors.New("out of range")

	// ErrInsufficientResource indicates the resource budget could not cover a load.
	ErrInsufficientResource = errors.New("insufficient resource")

	// ErrDataTypeInvalid indicates a data type the operation does not recognize.
	ErrDataTypeInvalid = errors.New("invalid data type")

	// ErrOpTypeInvalid indicates an operator the operation does not recognize.
	ErrOpTypeInvalid = errors.New("invalid op type")

	// ErrUnsupported indicates an operation not supported for the given type.
	ErrUnsupported = errors.New("unsupported")

	// ErrFileReadFailed indicates the underlying storage read failed.
	ErrFileReadFailed = errors.New("file read failed")

	// ErrInvalidParameter indicates a degenerate or malformed argument.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknown is the fallback kind for unclassified failures.
	ErrUnknown = errors.New("unknown error")
)
