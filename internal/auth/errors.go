package auth

import "errors"

var (
	// ErrNotFound means no outstanding challenge or session matches.
	ErrNotFound = errors.New("not found")
	// ErrExpired means the challenge or token is past its expiry.
	ErrExpired = errors.New("expired")
	// ErrAttemptsExhausted means the challenge hit its verification cap.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrInvalidCode means the submitted code did not match.
	ErrInvalidCode = errors.New("invalid code")
	// ErrMalformed means the access token could not be parsed or its
	// signature did not verify.
	ErrMalformed = errors.New("malformed token")
	// ErrRevoked means the refresh session was revoked.
	ErrRevoked = errors.New("session revoked")
	// ErrSessionCompromised means a revoked refresh token was replayed; the
	// whole lineage has been revoked as a side effect.
	ErrSessionCompromised = errors.New("session compromised")
	// ErrRateLimited means too many OTP requests or attempts in the window.
	ErrRateLimited = errors.New("rate limited")
)
