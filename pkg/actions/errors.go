package actions

import (
	"errors"
	"fmt"
)

// Reason is the code of a local validation failure.
type Reason string

const (
	ReasonBelowMinimum   Reason = "BelowMinimum"
	ReasonAboveMaximum   Reason = "AboveMaximum"
	ReasonPlayerNotFound Reason = "PlayerNotFound"
	ReasonNoGameState    Reason = "NoGameState"
	ReasonNoLegalAction  Reason = "NoLegalAction"
)

var (
	ErrBelowMinimum   = errors.New("amount below minimum")
	ErrAboveMaximum   = errors.New("amount above maximum")
	ErrPlayerNotFound = errors.New("player not seated")
	ErrNoGameState    = errors.New("no game state")
	ErrNoLegalAction  = errors.New("action not legal")

	// ErrUnauthorized is returned when no session credential is attached or
	// the server refuses the credential. It is never retried.
	ErrUnauthorized = errors.New("unauthorized")
)

var reasonErrors = map[Reason]error{
	ReasonBelowMinimum:   ErrBelowMinimum,
	ReasonAboveMaximum:   ErrAboveMaximum,
	ReasonPlayerNotFound: ErrPlayerNotFound,
	ReasonNoGameState:    ErrNoGameState,
	ReasonNoLegalAction:  ErrNoLegalAction,
}

// ValidationError is a local validation failure. It is reported to the
// caller synchronously and never sent to the server.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Unwrap allows errors.Is against the Err* sentinels.
func (e *ValidationError) Unwrap() error { return reasonErrors[e.Reason] }

func validationErr(reason Reason, format string, args ...interface{}) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RejectedError is a server refusal of an action that passed local
// validation. Detail is the server message, verbatim.
type RejectedError struct {
	Code   string
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("action rejected by server: %s", e.Detail)
}

// TransientError wraps a transport failure of the action endpoint.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("action endpoint unavailable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
