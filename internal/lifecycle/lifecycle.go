// Package lifecycle validates status changes against per-entity transition
// tables. Every status write in the system goes through Validate.
package lifecycle

import (
	"slices"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Table maps each status to the statuses reachable from it. A status present
// with no targets is terminal.
type Table[S ~string] map[S][]S

// Allows reports whether from -> to is an edge of the table.
func (t Table[S]) Allows(from, to S) bool {
	return slices.Contains(t[from], to)
}

// Targets lists the statuses reachable from from.
func (t Table[S]) Targets(from S) []S {
	return slices.Clone(t[from])
}

// Known reports whether s is a status of this table.
func (t Table[S]) Known(s S) bool {
	_, ok := t[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (t Table[S]) IsTerminal(s S) bool {
	targets, ok := t[s]
	return ok && len(targets) == 0
}

// Validate returns nil when current -> requested is permitted, otherwise a
// *shared.InvalidTransitionError carrying both states.
func Validate[S ~string](entity string, current, requested S, table Table[S]) error {
	if table.Allows(current, requested) {
		return nil
	}
	reason := ""
	switch {
	case !table.Known(requested):
		reason = "unknown status"
	case table.IsTerminal(current):
		reason = "current status is terminal"
	}
	return &shared.InvalidTransitionError{
		Entity: entity,
		From:   string(current),
		To:     string(requested),
		Reason: reason,
	}
}

// Reject builds an InvalidTransitionError for a transition that the table
// allows but a guard refused.
func Reject[S ~string](entity string, current, requested S, reason string) error {
	return &shared.InvalidTransitionError{
		Entity: entity,
		From:   string(current),
		To:     string(requested),
		Reason: reason,
	}
}
