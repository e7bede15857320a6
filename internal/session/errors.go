package session

import "errors"

var (
	// ErrCapacityExceeded is returned by Init when the admission cap is
	// reached. Callers may retry once a conversation is closed.
	ErrCapacityExceeded = errors.New("cannot create new conversation: too many ongoing conversations")

	// ErrNoConversation is returned when an operation references a user
	// with no registered conversation.
	ErrNoConversation = errors.New("no active conversation for user")

	// ErrStoreInconsistent is returned when the backing store fails to
	// materialize a just-created session. Nothing is registered; the
	// caller may retry Init.
	ErrStoreInconsistent = errors.New("session store did not return the created session")
)
