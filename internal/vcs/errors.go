package vcs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown revision or object.
	ErrNotFound = errors.New("not found")

	// ErrMissingObjectData indicates a referenced object is not available
	// locally (shallow or partial clone).
	ErrMissingObjectData = errors.New("missing object data")

	// ErrBackendUnavailable indicates the repository cannot be opened.
	ErrBackendUnavailable = errors.New("repository unavailable")
)

// MissingObjectError reports which object is missing.
type MissingObjectError struct {
	ID  CommitID
	Err error
}

func (e *MissingObjectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMissingObjectData, e.ID.Short(), e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMissingObjectData, e.ID.Short())
}

// Is makes errors.Is(err, ErrMissingObjectData) hold.
func (e *MissingObjectError) Is(target error) bool {
	return target == ErrMissingObjectData
}

func (e *MissingObjectError) Unwrap() error { return e.Err }

// MissingID extracts the missing commit id from err.
func MissingID(err error) (CommitID, bool) {
	var missing *MissingObjectError
	if errors.As(err, &missing) {
		return missing.ID, true
	}
	return "", false
}
