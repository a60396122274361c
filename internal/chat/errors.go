package chat

import "errors"

var (
	// ErrUnauthenticated is returned when an operation is attempted with no
	// resolvable user id. Writes short-circuit on it before touching the store.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied is returned when edit/delete is attempted by a user
	// who is not the message sender.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrEmptyMessage is returned by Send/Edit for empty or whitespace-only text.
	ErrEmptyMessage = errors.New("message text is empty")
)
