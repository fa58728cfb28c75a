package match

import (
	"fmt"

	"github.com/wfunc/hatgame/state"
)

// InvalidRosterError reports malformed players or teams at match start.
type InvalidRosterError struct {
	Reason string
}

func (e *InvalidRosterError) Error() string {
	return "invalid roster: " + e.Reason
}

// EmptyWordPoolError reports that a round cannot start without words.
type EmptyWordPoolError struct {
	MatchID string
}

func (e *EmptyWordPoolError) Error() string {
	return fmt.Sprintf("match %s: empty word pool", e.MatchID)
}

// NoActiveMatchError reports an operation on a missing or completed match.
type NoActiveMatchError struct {
	MatchID string
}

func (e *NoActiveMatchError) Error() string {
	return fmt.Sprintf("no active match %q", e.MatchID)
}

// InvalidTransitionError reports an operation that is not valid in the
// current match state. The match is left unchanged.
type InvalidTransitionError struct {
	Op     string
	Phase  state.Phase
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s not allowed in phase %s: %s", e.Op, e.Phase, e.Reason)
}
