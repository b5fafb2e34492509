package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not_found")
	ErrNoCurrentUser     = errors.New("no_current_user")
	ErrRemoteUnavailable = errors.New("remote_unavailable")
	ErrUsernameTaken     = errors.New("username_taken")
	ErrFriendshipExists  = errors.New("friendship_exists")
	ErrNoBooks           = errors.New("no_books")
	ErrRateLimited       = errors.New("rate_limited")
	ErrValidation        = errors.New("validation")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// RemoteError reports a failed call against the document store. It matches
// both ErrRemoteUnavailable and the underlying cause under errors.Is.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() []error { return []error{ErrRemoteUnavailable, e.Err} }

// Remote wraps err as a RemoteError unless it is already a domain-level
// outcome (not found, validation) that callers handle on their own.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrRemoteUnavailable) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}
