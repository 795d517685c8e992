package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weibaohui/insurebot/internal/eventbus"
	"github.com/weibaohui/insurebot/internal/model"
)

func TestService_PublishesEvents(t *testing.T) {
	h := newHarness()
	bus := eventbus.NewConversationEventBus()
	h.service = NewService(h.machine, h.sessions, bus)

	var events []eventbus.ConversationEvent
	record := func(ctx context.Context, e eventbus.ConversationEvent) error {
		events = append(events, e)
		return nil
	}
	bus.Subscribe(eventbus.ConversationStateChanged, record)
	bus.Subscribe(eventbus.ConversationPolicyIssued, record)

	h.seed(model.Session{State: model.StatePriceConfirmation, DataConfirmed: true})
	require.NoError(t, h.service.ProcessMessage(context.Background(), textMsg("confirmed")))

	require.Len(t, events, 2)
	assert.Equal(t, eventbus.ConversationStateChanged, events[0].Type)
	assert.Equal(t, model.StatePriceConfirmation, events[0].FromState)
	assert.Equal(t, model.StateCompleted, events[0].ToState)
	assert.Equal(t, "text:confirmed", events[0].Trigger)
	assert.Equal(t, eventbus.ConversationPolicyIssued, events[1].Type)
	assert.Equal(t, "POL-1A2B3C4D", events[1].PolicyNumber)
}

func TestService_NoEventWithoutStateChange(t *testing.T) {
	h := newHarness()
	bus := eventbus.NewConversationEventBus()
	h.service = NewService(h.machine, h.sessions, bus)

	called := 0
	bus.Subscribe(eventbus.ConversationStateChanged, func(ctx context.Context, e eventbus.ConversationEvent) error {
		called++
		return nil
	})

	h.seed(model.Session{State: model.StateWaitingVehicleDoc})
	require.NoError(t, h.service.ProcessMessage(context.Background(), textMsg("yes")))
	assert.Equal(t, 0, called)
	assert.Equal(t, 1, h.sessions.saves)
}

func TestService_SubscriberErrorDoesNotFailUpdate(t *testing.T) {
	h := newHarness()
	bus := eventbus.NewConversationEventBus()
	h.service = NewService(h.machine, h.sessions, bus)
	bus.Subscribe(eventbus.ConversationStateChanged, func(ctx context.Context, e eventbus.ConversationEvent) error {
		return errors.New("audit table locked")
	})

	require.NoError(t, h.service.ProcessMessage(context.Background(), textMsg("hi")))
	assert.Equal(t, model.StateWaitingIdentityDoc, h.sessions.current(chatID).State)
}

func TestService_SaveErrorIsReturned(t *testing.T) {
	h := newHarness()
	h.sessions.SaveErr = errors.New("disk full")

	err := h.service.ProcessMessage(context.Background(), textMsg("hi"))
	assert.EqualError(t, err, "disk full")
}

func TestResultHelpers(t *testing.T) {
	found := Found(3)
	assert.Equal(t, Produced, found.Outcome)
	assert.Equal(t, 3, found.Value)
	assert.NoError(t, found.Err)

	missing := Missing[int](errors.New("nothing"))
	assert.Equal(t, Absent, missing.Outcome)
	assert.Zero(t, missing.Value)

	failed := Failed[string](context.Canceled)
	assert.Equal(t, Fatal, failed.Outcome)
	assert.ErrorIs(t, failed.Err, context.Canceled)

	assert.Equal(t, "produced", Produced.String())
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}

func TestNewPolicyNumber(t *testing.T) {
	number := NewPolicyNumber()
	assert.Regexp(t, `^POL-[0-9A-F]{8}$`, number)
	assert.NotEqual(t, number, NewPolicyNumber())
}

func TestInboundMessageTrigger(t *testing.T) {
	assert.Equal(t, "image", imageMsg("x").Trigger())
	assert.Equal(t, "attachment", InboundMessage{HasAttachment: true}.Trigger())
	assert.Equal(t, "text:hello", textMsg("  hello ").Trigger())
}
