package social

import "errors"

var (
	// ErrSelfFriend is returned when an identity befriends itself.
	ErrSelfFriend = errors.New("cannot friend yourself")
	// ErrAlreadyExists is returned when an edge already exists for the pair.
	ErrAlreadyExists = errors.New("friend edge already exists")
	// ErrNotFound is returned when no edge in the expected state exists, or
	// when the caller is not the recipient of the pending request.
	ErrNotFound = errors.New("friend request not found")
)
