package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOutAndDrop(t *testing.T) {
	b := NewBus()
	var dropped []Event
	b.OnDrop(func(e Event) { dropped = append(dropped, e) })

	fast, unsubFast := b.Subscribe(EventEntryDecision, 4)
	slow, unsubSlow := b.Subscribe(EventEntryDecision, 1)
	defer unsubFast()
	defer unsubSlow()

	b.Publish(EventEntryDecision, 1)
	b.Publish(EventEntryDecision, 2)

	require.Len(t, fast, 2)
	require.Len(t, slow, 1)
	assert.Equal(t, 1, <-slow)
	assert.Equal(t, []Event{EventEntryDecision}, dropped)
}

func TestBusUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventGuardFix, 1)
	assert.Equal(t, 1, b.Subscribers(EventGuardFix))

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers(EventGuardFix))

	// publishing with no subscribers is a no-op
	b.Publish(EventGuardFix, GuardFix{Symbol: "XAUUSD"})
}
