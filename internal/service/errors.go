package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMessage       = errors.New("invalid message")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrPairingNotAllowed    = errors.New("only a student can start a chat with a counselor")
)

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func invalidMessage(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, reason)
}
