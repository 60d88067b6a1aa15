package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable is returned by Execute when the provider client
	// cannot be initialized. No session is registered.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrSessionBusy is returned when a turn is started on a session whose
	// previous turn is still streaming.
	ErrSessionBusy = errors.New("session is busy")
)

type UnsupportedEngineError struct {
	Name string
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("unsupported engine: %q", e.Name)
}

type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// UnhandledEventError reports a native event variant a normalizer does not
// know. It is logged as a warning and the event is dropped.
type UnhandledEventError struct {
	Engine string
	Kind   string
}

func (e *UnhandledEventError) Error() string {
	return fmt.Sprintf("%s: unhandled event %q", e.Engine, e.Kind)
}
