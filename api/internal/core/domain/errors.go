package domain

import "errors"

// Repository-level sentinel errors. Repositories translate SQL errors into
// these so handlers never match on driver error strings.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("resource already exists")
	ErrInUse         = errors.New("resource is referenced by active rules")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
)
