package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateID is returned when SaveTransaction is called twice with
	// the same ID.
	ErrDuplicateID = errors.New("entity already exists")
	// ErrTxUnsupported is returned when WithinTx semantics are requested
	// from a backend without transaction support.
	ErrTxUnsupported = errors.New("storage does not support transactions")
	// ErrUnknownStorage is returned by the registry for a name nothing was
	// registered under.
	ErrUnknownStorage = errors.New("unknown storage backend")
	// ErrStorageDisabled is returned by the registry when the configuration
	// excludes the requested backend.
	ErrStorageDisabled = errors.New("storage backend disabled by configuration")
)

// Error wraps an infrastructure failure with the backend type, the failed
// operation, and the entity involved. Domain lookup misses stay as
// ErrNotFound, Error is for the backend actually breaking.
type Error struct {
	StorageType string
	Operation   string
	EntityID    string
	Err         error
}

func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s storage: %s %s: %v", e.StorageType, e.Operation, e.EntityID, e.Err)
	}
	return fmt.Sprintf("%s storage: %s: %v", e.StorageType, e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a storage infrastructure failure. Returns nil when
// err is nil so call sites can wrap unconditionally.
func NewError(storageType, operation, entityID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{StorageType: storageType, Operation: operation, EntityID: entityID, Err: err}
}

// IsStorageError checks if the error is an infrastructure failure, as opposed
// to a domain miss like ErrNotFound.
func IsStorageError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
