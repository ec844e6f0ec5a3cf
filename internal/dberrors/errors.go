// Package dberrors defines the error taxonomy shared across the engine.
package dberrors

import (
	"errors"
	"fmt"
)

// Sentinel errors identify the error kinds from the spec's error taxonomy.
// Callers should use errors.Is against these rather than comparing strings.
var (
	// ErrInvalidArgument covers malformed queries or updates: unknown
	// operators, bad regexes, non-numeric operands to $inc.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateKey is raised by a UNIQUE index violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is raised when an operation targets a missing document
	// where policy demands presence.
	ErrNotFound = errors.New("not found")

	// ErrConflictCancelled is raised when a cancellation is honored at a
	// suspension point.
	ErrConflictCancelled = errors.New("operation cancelled")

	// ErrBackend wraps an underlying persistence/transport failure.
	ErrBackend = errors.New("backend error")

	// ErrProtocol signals a malformed sync message or unknown type.
	ErrProtocol = errors.New("protocol error")
)

// DuplicateKeyError carries the index and key that collided.
type DuplicateKeyError struct {
	Index string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in index %q", e.Key, e.Index)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

// NewDuplicateKey builds a DuplicateKeyError.
func NewDuplicateKey(index, key string) error {
	return &DuplicateKeyError{Index: index, Key: key}
}

// InvalidArgumentError carries the offending operator or field.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string { return "invalid argument: " + e.Reason }

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// NewInvalidArgument builds an InvalidArgumentError.
func NewInvalidArgument(reason string) error {
	return &InvalidArgumentError{Reason: reason}
}

// BackendError wraps a failure from the persistence or transport
// collaborator, preserving the original error via Unwrap.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("backend error during %s: %v", e.Op, e.Err) }

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// WrapBackend wraps err as a BackendError tagged with the failing operation.
func WrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// ProtocolError wraps a malformed or unrecognized sync message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// NewProtocol builds a ProtocolError.
func NewProtocol(reason string) error {
	return &ProtocolError{Reason: reason}
}
