package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	bus := New()
	a, unsubA := bus.Subscribe(1)
	b, unsubB := bus.Subscribe(4)
	defer unsubB()

	bus.Publish(Event{Type: AnnounceSent})
	bus.Publish(Event{Type: AdvanceApplied})

	require.Len(t, a, 1)
	require.Len(t, b, 2)

	first := <-a
	require.Equal(t, AnnounceSent, first.Type)
	require.False(t, first.Time.IsZero())

	unsubA()
	unsubA()
	_, open := <-a
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(Event{Type: ConfigReloaded})
	require.Len(t, b, 3)
}
