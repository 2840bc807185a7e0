package federation

import "errors"

// Registry errors
var (
	ErrDuplicateExposed = errors.New("exposed name already published")
	ErrInvalidName      = errors.New("invalid name")
	ErrNilFactory       = errors.New("factory is nil")
	ErrDuplicateShared  = errors.New("shared library already declared")
)

// Catalog errors
var (
	ErrDuplicateHandle = errors.New("implementation handle already registered")
	ErrUnknownHandle   = errors.New("implementation handle not registered")
)

// Manifest errors
var (
	ErrInvalidManifest = errors.New("invalid manifest")
)
