package odb

import "errors"

// Sentinel errors for observation definition loading.
var (
	// ErrNotFound indicates no definition file exists for the observation.
	ErrNotFound = errors.New("odb: observation not found")

	// ErrInvalidDefinition indicates a definition file failed validation.
	ErrInvalidDefinition = errors.New("odb: invalid observation definition")
)
