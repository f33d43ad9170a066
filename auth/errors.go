package auth

import (
	"github.com/pkg/errors"

	"github.com/fyd-app/go-fyd-client/sessions"
)

var (
	// ErrAuthenticationFailed means the server explicitly rejected the
	// credentials; the server message is attached when present.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoServerResponse means the request was sent but no response came
	// back (network failure or timeout).
	ErrNoServerResponse = errors.New("no response from server")

	// ErrRequestConfiguration means the request could not even be built.
	ErrRequestConfiguration = errors.New("request configuration error")

	// ErrSessionExpired means refresh could not restore a valid session and
	// the caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrStorageUnavailable means device storage I/O failed. Aliased from the
	// sessions package so errors.Is matches across both.
	ErrStorageUnavailable = sessions.ErrStorageUnavailable
)
