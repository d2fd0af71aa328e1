package broker

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork       = errors.New("broker: network failure")
	ErrProtocol      = errors.New("broker: malformed frame")
	ErrAuth          = errors.New("broker: credentials rejected")
	ErrContextDenied = errors.New("broker: authorization context denied")
	ErrTimeout       = errors.New("broker: call timed out")
	ErrNotReady      = errors.New("broker: connection not ready")
	ErrBadTransition = errors.New("broker: invalid state transition")
)

// RemoteError is an error reply returned by the site itself.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("broker: remote error: %s", e.Message)
	}
	return fmt.Sprintf("broker: remote error %s: %s", e.Code, e.Message)
}
