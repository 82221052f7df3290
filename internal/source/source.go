package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrStatus is wrapped by errors reporting a non-OK server response.
var ErrStatus = errors.New("server returned non-OK status")

// ErrNoMessage reports a message that is no longer in the selected
// mailbox, usually because another client expunged it. It wraps
// ErrStatus.
var ErrNoMessage = fmt.Errorf("%w: no such message", ErrStatus)

// AuthError indicates that the server rejected the login.
type AuthError struct {
	Server  string
	User    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s@%s): %s", e.User, e.Server, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// SelectError reports a mailbox that could not be selected. It is
// recoverable: the run moves on to the next mailbox.
type SelectError struct {
	Mailbox string
	Err     error
}

func (e *SelectError) Error() string {
	return fmt.Sprintf("selecting mailbox %q: %v", e.Mailbox, e.Err)
}

func (e *SelectError) Unwrap() error {
	return e.Err
}

// IsSelectError reports whether err (or any error in its chain) is a
// SelectError.
func IsSelectError(err error) bool {
	var selErr *SelectError
	return errors.As(err, &selErr)
}

// Transport is the mailbox access the transfer needs. Sequence numbers
// are only valid for the currently selected mailbox; UIDs are stable.
type Transport interface {
	// Select opens mailbox and returns its message count. readOnly
	// selects the mailbox without permission to change it.
	Select(ctx context.Context, mailbox string, readOnly bool) (uint32, error)

	// Search returns the sequence numbers of every message in the
	// selected mailbox.
	Search(ctx context.Context) ([]uint32, error)

	// FetchMessage returns the full message without setting \Seen.
	FetchMessage(ctx context.Context, seq uint32) ([]byte, error)

	// FetchUID returns the UID of the message with sequence number seq.
	FetchUID(ctx context.Context, seq uint32) (uint32, error)

	// MarkDeleted sets the \Deleted flag on the message with uid.
	MarkDeleted(ctx context.Context, uid uint32) error

	// Copy copies the message with uid into mailbox.
	Copy(ctx context.Context, uid uint32, mailbox string) error

	// Expunge removes every message flagged \Deleted from the selected
	// mailbox.
	Expunge(ctx context.Context) error

	// Close logs out and closes the connection.
	Close() error
}
