// internal/domain/errors.go
package domain

import "errors"

// ErrUnauthorized is returned when a session token is unknown or no longer valid.
// Callers can check for it using errors.Is to ask the user to log in again.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned by repositories when the requested row does not exist
// or does not belong to the requesting user.
var ErrNotFound = errors.New("not found")

// ErrNotLoggedIn is returned when no stored credential exists.
var ErrNotLoggedIn = errors.New("not logged in: run 'mercury login' to authenticate")
