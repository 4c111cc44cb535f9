package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Purpose is the reason an OTP challenge was issued.
type Purpose string

const (
	PurposeLogin    Purpose = "login"
	PurposeRegister Purpose = "register"
)

// Valid reports whether p is one of the closed set of purposes.
func (p Purpose) Valid() bool {
	return p == PurposeLogin || p == PurposeRegister
}

// FriendStatus is the state of a friend edge.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// OtpChallenge is a pending one-time-passcode bound to an identity and purpose.
// At most one unconsumed challenge exists per (identity, purpose).
type OtpChallenge struct {
	ID            uuid.UUID
	IdentityRef   uuid.UUID
	Purpose       Purpose
	CodeHash      []byte
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	CreatedAt     time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	RequestIP     *string
	UserAgent     *string
}

// RefreshSession is a server-tracked refresh token record. The token itself is
// never stored, only its SHA-256 hash.
type RefreshSession struct {
	ID          uuid.UUID
	IdentityRef uuid.UUID
	DeviceRef   *string
	TokenHash   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	ReplacedBy  *uuid.UUID
}

// FriendEdge is an undirected relation between two identities, stored once
// with the lower-ordered identifier first.
type FriendEdge struct {
	UserLo      uuid.UUID
	UserHi      uuid.UUID
	RequestedBy uuid.UUID
	Status      FriendStatus
	CreatedAt   time.Time
	AcceptedAt  *time.Time
}

// Other returns the endpoint of the edge that is not ref.
func (e FriendEdge) Other(ref uuid.UUID) uuid.UUID {
	if e.UserLo == ref {
		return e.UserHi
	}
	return e.UserLo
}

// CanonicalPair orders two identity refs so each unordered pair has a single
// storage key.
func CanonicalPair(a, b uuid.UUID) (lo, hi uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// EventInterest records that an identity expressed interest in an event.
// Unique per (identity, event); re-expressing is idempotent.
type EventInterest struct {
	IdentityRef uuid.UUID
	EventRef    string
	ExpressedAt time.Time
}

// MatchRecord is created once per event when enough identities have expressed
// interest. Membership is frozen at formation; ChannelRef is set once the
// group channel has been provisioned.
type MatchRecord struct {
	EventRef          string
	Members           []uuid.UUID
	FormedAt          time.Time
	ChannelRef        *string
	ProvisionAttempts int
	LastAttemptAt     *time.Time
}

// ChannelPending reports whether the match still awaits channel provisioning.
func (m MatchRecord) ChannelPending() bool {
	return m.ChannelRef == nil
}
