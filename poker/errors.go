/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import "errors"

var (
	// ErrInvalidState is returned for events the current round state does
	// not allow, e.g. a vote while voting is closed.
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidVote  = errors.New("invalid vote")
	ErrNotHost      = errors.New("only the host may do that")
	ErrUnknownUser  = errors.New("unknown user")
	ErrNoSession    = errors.New("no active session")
)

// ValidationError reports bad user input. Message is safe to show as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
