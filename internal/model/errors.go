package model

import "errors"

var (
	// ErrRemoteUnavailable covers network or store failures on remote
	// fetches and writes. Reads degrade to cached state, writes leave the
	// entity stale until the next successful write or refresh.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrUnauthorizedIdentity is returned when a professor or admin email
	// is not on the corresponding allow-list.
	ErrUnauthorizedIdentity = errors.New("unauthorized identity")

	ErrValidation = errors.New("validation failed")

	// ErrMalformedCache marks a local cache entry that failed to
	// deserialize. Callers treat it as absent; the entry is purged.
	ErrMalformedCache = errors.New("malformed cache entry")
)
