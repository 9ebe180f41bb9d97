package statecache

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrEpochMismatch is returned for handles issued by another server process
	ErrEpochMismatch = errors.New("handle belongs to another server epoch")
	// ErrUnknownHandle is returned for handles of the current epoch that were never issued
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrForbidden is returned if a category is not on the trusted list
	ErrForbidden = errors.New("category is not trusted")
	// ErrIllegalStatement is returned if a statement is not on the trusted list
	ErrIllegalStatement = errors.New("statement is not trusted")
	// ErrUnknownCategory is returned if an aggregate view references an unregistered category
	ErrUnknownCategory = errors.New("unknown category")
	// ErrTooManyStatements is returned once the handle counter is exhausted
	ErrTooManyStatements = errors.New("too many prepared statements")
	// ErrTooManyCategories is returned once the category handle counter is exhausted
	ErrTooManyCategories = errors.New("too many registered categories")
)

// SharedStateId identifies cached server state from the client's point of view
type SharedStateId struct {
	ID          int32     `json:"id"`
	ServerToken uuid.UUID `json:"serverToken"`
}

// NewServerToken generates a fresh server epoch
func NewServerToken() uuid.UUID {
	return uuid.New()
}

func (s SharedStateId) String() string {
	return fmt.Sprintf("%d@%s", s.ID, s.ServerToken)
}

// ITrustList decides which categories and statements may reach the storage
type ITrustList interface {
	// IsTrustedCategory reports whether a category name may be registered
	IsTrustedCategory(name string) bool
	// IsTrustedStatement reports whether a statement text may be prepared
	IsTrustedStatement(text string) bool
}
