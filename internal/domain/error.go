package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrPreconditionFailed = errors.New("stale version, precondition failed")
	ErrDuplicatePurchase  = errors.New("purchase identity already bound to an eligible subscription")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrOperationFailed    = errors.New("operation failed")
)
