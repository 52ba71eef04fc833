package domain

import "errors"

// Sentinel errors for the application. ErrUnavailable exists so a block
// relationship can hide a fez without leaking why; handlers render it exactly
// like ErrNotFound.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnavailable      = errors.New("resource unavailable")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("resource already exists")
	ErrAlreadyMember    = errors.New("user is already a member")
	ErrNotMember        = errors.New("user is not a member")
	ErrInvalidOperation = errors.New("operation not valid for this fez type")
	ErrLocked           = errors.New("fez is locked by moderation")
	ErrInvalidContent   = errors.New("content violates posting policy")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal server error")
)
