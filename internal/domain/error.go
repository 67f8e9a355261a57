package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrRunInProgress      = errors.New("generation run already in progress for this task")
	ErrInvalidExecContext = errors.New("invalid executor context passed to repository")
)
