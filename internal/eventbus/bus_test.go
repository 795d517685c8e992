package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewConversationEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(ConversationStateChanged, func(ctx context.Context, event ConversationEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(ConversationStateChanged, func(ctx context.Context, event ConversationEvent) error {
		calledB = true
		return nil
	})

	if err := bus.Publish(context.Background(), ConversationEvent{Type: ConversationStateChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusPublishOnlyMatchingType(t *testing.T) {
	bus := NewConversationEventBus()
	called := false
	bus.Subscribe(ConversationPolicyIssued, func(ctx context.Context, event ConversationEvent) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), ConversationEvent{Type: ConversationStateChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler for other type not to be called")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewConversationEventBus()
	called := false
	unsubscribe := bus.Subscribe(ConversationStateChanged, func(ctx context.Context, event ConversationEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), ConversationEvent{Type: ConversationStateChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewConversationEventBus()
	bus.Subscribe(ConversationStateChanged, func(ctx context.Context, event ConversationEvent) error {
		return errors.New("err-a")
	})
	bus.Subscribe(ConversationStateChanged, func(ctx context.Context, event ConversationEvent) error {
		return errors.New("err-b")
	})

	if err := bus.Publish(context.Background(), ConversationEvent{Type: ConversationStateChanged}); err == nil {
		t.Fatalf("expected error")
	}
}
