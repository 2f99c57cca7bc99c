package acl

import (
	"errors"
	"fmt"
)

// Access-control failures are explicit error values rather than panics or
// HTTP statuses. The API layer maps them to 401/403 at the boundary; below
// it, callers branch with IsUnauthorized / IsForbidden.

// UnauthorizedError means no identity was established for the request.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "authentication required"
	}
	return e.Reason
}

// ForbiddenError means an identity exists but the ACL check failed.
// The message identifies the entity so operators can act on the log line.
type ForbiddenError struct {
	EntityKind  string
	EntityLabel string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("access denied to %s %q", e.EntityKind, e.EntityLabel)
}

// Unauthorized builds an UnauthorizedError.
func Unauthorized(reason string) error {
	return &UnauthorizedError{Reason: reason}
}

// Forbidden builds a ForbiddenError naming the entity.
func Forbidden(kind, label string) error {
	return &ForbiddenError{EntityKind: kind, EntityLabel: label}
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}
