package domain

import "fmt"

var allowedTransitions = map[TicketState][]TicketState{
	TicketStateOpen:      {TicketStateEscalated, TicketStateClosed},
	TicketStateEscalated: {TicketStateDerived, TicketStateOpen, TicketStateClosed},
	TicketStateDerived:   {TicketStateEscalated, TicketStateClosed},
	TicketStateClosed:    {},
}

// IsValidTransition answers from the fixed transition table. Self transitions
// and anything leaving CLOSED are never valid.
func IsValidTransition(current, target TicketState) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == target {
			return true
		}
	}
	return false
}

func CanEscalate(s TicketState) bool { return s == TicketStateOpen }

func CanDerive(s TicketState) bool { return s == TicketStateEscalated }

func CanReturn(s TicketState) bool {
	return s == TicketStateEscalated || s == TicketStateDerived
}

func CanClose(s TicketState) bool { return s.Valid() && s != TicketStateClosed }

// ReturnTarget is the state one level back down the escalation path.
func ReturnTarget(s TicketState) (TicketState, bool) {
	switch s {
	case TicketStateDerived:
		return TicketStateEscalated, true
	case TicketStateEscalated:
		return TicketStateOpen, true
	}
	return "", false
}

// TransitionErrorMessage describes why current -> target is rejected.
func TransitionErrorMessage(current, target TicketState) string {
	var rule string
	switch {
	case !current.Valid():
		rule = fmt.Sprintf("unknown current state %q", current)
	case !target.Valid():
		rule = fmt.Sprintf("unknown target state %q", target)
	case current == TicketStateClosed:
		rule = "CLOSED is terminal and cannot be left"
	case current == target:
		rule = "a ticket cannot re-enter the state it is already in"
	case IsValidTransition(current, target):
		return fmt.Sprintf("transition %s -> %s is allowed", current, target)
	default:
		rule = fmt.Sprintf("%s may only move to %v", current, allowedTransitions[current])
	}
	return fmt.Sprintf("invalid transition %s -> %s: %s", current, target, rule)
}
