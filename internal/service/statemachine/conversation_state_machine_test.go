package statemachine

import (
	"errors"
	"testing"

	"github.com/weibaohui/insurebot/internal/model"
)

func TestConversationStateMachine_HappyPath(t *testing.T) {
	sm := NewConversationStateMachine()
	path := []model.ConversationState{
		model.StateEntry,
		model.StateWaitingIdentityDoc,
		model.StateWaitingVehicleDoc,
		model.StateWaitingConfirm,
		model.StatePriceConfirmation,
		model.StateCompleted,
	}
	for i := 1; i < len(path); i++ {
		if err := sm.Transition(path[i-1], path[i], 1); err != nil {
			t.Fatalf("expected %s -> %s to be allowed: %v", path[i-1], path[i], err)
		}
	}
}

func TestConversationStateMachine_ResetAndErrorFromAnyState(t *testing.T) {
	sm := NewConversationStateMachine()
	for _, s := range AllStates {
		if !sm.CanTransition(s, model.StateEntry) {
			t.Errorf("expected %s -> start to be allowed", s)
		}
		if !sm.CanTransition(s, model.StateError) {
			t.Errorf("expected %s -> error to be allowed", s)
		}
		if !sm.CanTransition(s, s) {
			t.Errorf("expected %s to allow staying in place", s)
		}
	}
}

func TestConversationStateMachine_Rejects(t *testing.T) {
	sm := NewConversationStateMachine()
	cases := []ConversationTransition{
		{model.StateEntry, model.StateCompleted},
		{model.StateWaitingIdentityDoc, model.StatePriceConfirmation},
		{model.StateCompleted, model.StateWaitingIdentityDoc},
		{model.StateError, model.StateWaitingVehicleDoc},
		{"bogus", model.StateWaitingIdentityDoc},
	}
	for _, c := range cases {
		err := sm.Transition(c.From, c.To, 1)
		var invalid *InvalidStateTransitionError
		if !errors.As(err, &invalid) {
			t.Errorf("expected %s -> %s to be rejected, got %v", c.From, c.To, err)
		}
	}
}

func TestConversationStateMachine_IsKnown(t *testing.T) {
	sm := NewConversationStateMachine()
	if !sm.IsKnown(model.StatePriceConfirmation) {
		t.Error("expected price_confirmation to be known")
	}
	if sm.IsKnown("legacy_state") {
		t.Error("expected legacy_state to be unknown")
	}
}
