package stalker

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when a call needs a token and portal the session does not have.
	ErrNoSession = errors.New("stalker: session has no token or portal")
	// ErrNoPortal means discovery found nothing usable on the host.
	ErrNoPortal = errors.New("stalker: portal not found")
	// ErrHandshake means no token could be obtained.
	ErrHandshake = errors.New("stalker: handshake failed")
	// ErrAccount means account_info failed after the basic-profile retry.
	ErrAccount = errors.New("stalker: account info unavailable")
	// ErrServer is the user-facing "Server error or invalid link." condition.
	ErrServer = errors.New("Server error or invalid link.") //nolint:staticcheck // shown to users verbatim
	// ErrAccessDenied means category lists stayed empty after reauthorization.
	ErrAccessDenied = errors.New("Access Denied") //nolint:staticcheck // shown to users verbatim
	// ErrNoLink means create_link produced no stream URL.
	ErrNoLink = errors.New("stalker: no playable link")
)

// ActionError attaches the portal action and endpoint to a sentinel.
type ActionError struct {
	Action string // handshake, get_profile, create_link, ...
	Portal string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Portal, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func actionErr(action, portal string, err error) error {
	return &ActionError{Action: action, Portal: portal, Err: err}
}
