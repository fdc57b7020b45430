package models

import "errors"

var (
	// ErrNotFound is returned when a user or plan does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidParameter is returned for malformed options, rules,
	// state transitions and requests
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUserAlreadyExists is returned when registering a subscribed user
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUserHasNotPaid is returned when an operation requires the user
	// to have settled all invoices
	ErrUserHasNotPaid = errors.New("user has not paid")

	// ErrInternal is returned when a synchronous billing step fails
	ErrInternal = errors.New("internal error")

	// ErrNotImplemented is returned by the orchestration service for
	// operations the underlying cloud does not support
	ErrNotImplemented = errors.New("operation not implemented")

	// ErrUnavailable is returned when a remote service cannot be reached
	// or answers with a non-success status
	ErrUnavailable = errors.New("service unavailable")

	// ErrUnauthorized is returned when a remote service rejects our token
	ErrUnauthorized = errors.New("unauthorized")
)
