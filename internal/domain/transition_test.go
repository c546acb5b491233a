package domain_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

func TestIsValidTransition_Totality(t *testing.T) {
	valid := map[[2]domain.TicketState]bool{
		{domain.TicketStateOpen, domain.TicketStateEscalated}:    true,
		{domain.TicketStateOpen, domain.TicketStateClosed}:       true,
		{domain.TicketStateEscalated, domain.TicketStateDerived}: true,
		{domain.TicketStateEscalated, domain.TicketStateOpen}:    true,
		{domain.TicketStateEscalated, domain.TicketStateClosed}:  true,
		{domain.TicketStateDerived, domain.TicketStateEscalated}: true,
		{domain.TicketStateDerived, domain.TicketStateClosed}:    true,
	}

	validCount, invalidCount := 0, 0
	for _, from := range domain.AllTicketStates {
		for _, to := range domain.AllTicketStates {
			got := domain.IsValidTransition(from, to)
			gt.Value(t, got).Equal(valid[[2]domain.TicketState{from, to}])
			if got {
				validCount++
			} else {
				invalidCount++
			}
		}
	}
	gt.Number(t, validCount).Equal(7)
	gt.Number(t, invalidCount).Equal(9)
}

func TestIsValidTransition_SelfAndClosed(t *testing.T) {
	for _, s := range domain.AllTicketStates {
		gt.Bool(t, domain.IsValidTransition(s, s)).False()
		gt.Bool(t, domain.IsValidTransition(domain.TicketStateClosed, s)).False()
	}
	gt.Bool(t, domain.IsValidTransition("BOGUS", domain.TicketStateOpen)).False()
}

func TestGuards(t *testing.T) {
	tests := []struct {
		state    domain.TicketState
		escalate bool
		derive   bool
		ret      bool
		close    bool
	}{
		{domain.TicketStateOpen, true, false, false, true},
		{domain.TicketStateEscalated, false, true, true, true},
		{domain.TicketStateDerived, false, false, true, true},
		{domain.TicketStateClosed, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			gt.Value(t, domain.CanEscalate(tt.state)).Equal(tt.escalate)
			gt.Value(t, domain.CanDerive(tt.state)).Equal(tt.derive)
			gt.Value(t, domain.CanReturn(tt.state)).Equal(tt.ret)
			gt.Value(t, domain.CanClose(tt.state)).Equal(tt.close)
		})
	}
}

func TestReturnTarget_OneLevelBack(t *testing.T) {
	next, ok := domain.ReturnTarget(domain.TicketStateDerived)
	gt.Bool(t, ok).True()
	gt.Value(t, next).Equal(domain.TicketStateEscalated)

	next, ok = domain.ReturnTarget(domain.TicketStateEscalated)
	gt.Bool(t, ok).True()
	gt.Value(t, next).Equal(domain.TicketStateOpen)

	_, ok = domain.ReturnTarget(domain.TicketStateOpen)
	gt.Bool(t, ok).False()
	_, ok = domain.ReturnTarget(domain.TicketStateClosed)
	gt.Bool(t, ok).False()
}

func TestTransitionErrorMessage(t *testing.T) {
	msg := domain.TransitionErrorMessage(domain.TicketStateClosed, domain.TicketStateOpen)
	gt.String(t, msg).Contains("CLOSED")
	gt.String(t, msg).Contains("OPEN")
	gt.String(t, msg).Contains("terminal")

	msg = domain.TransitionErrorMessage(domain.TicketStateOpen, domain.TicketStateOpen)
	gt.String(t, msg).Contains("re-enter")

	msg = domain.TransitionErrorMessage(domain.TicketStateOpen, domain.TicketStateDerived)
	gt.String(t, msg).Contains("OPEN -> DERIVED")
	gt.Bool(t, strings.Contains(msg, "ESCALATED")).True()
}
