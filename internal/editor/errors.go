package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated blocks an authoring action when no user is signed in.
	ErrUnauthenticated  = errors.New("you must be signed in to post")
	ErrSubmitInProgress = errors.New("a submit is already in progress")
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrNoDraftSelection = errors.New("no selection inside the editor")
	ErrClosed           = errors.New("editor session closed")
)

// ValidationError is a local, field-level rejection. Nothing was sent over
// the network and the document is unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NetworkError wraps a failed remote call. Inserted counts the embeds an
// upload batch placed before failing; they stay in the document.
type NetworkError struct {
	Op       string
	Status   int
	Err      error
	Inserted int
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed (%d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
