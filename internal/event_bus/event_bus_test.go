package event_bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_Publish(t *testing.T) {
	t.Run("should deliver typed payload to subscribers in subscription order", func(t *testing.T) {
		// given
		bus := NewEventBus()
		var calls []int
		SubscribeTyped(bus, CalendarSourcesChangedType, func(e EventT[CalendarSourcesChanged]) error {
			calls = append(calls, e.Data.UserId)
			return nil
		})
		SubscribeTyped(bus, CalendarSourcesChangedType, func(e EventT[CalendarSourcesChanged]) error {
			calls = append(calls, e.Data.UserId*10)
			return nil
		})

		// when
		err := bus.Publish(NewEvent(context.Background(), CalendarSourcesChangedType, CalendarSourcesChanged{UserId: 7}))

		// then
		require.NoError(t, err)
		assert.Equal(t, []int{7, 70}, calls)
	})

	t.Run("should ignore payloads of other types", func(t *testing.T) {
		// given
		bus := NewEventBus()
		called := false
		SubscribeTyped(bus, CalendarSourcesChangedType, func(e EventT[CalendarSourcesChanged]) error {
			called = true
			return nil
		})

		// when
		err := bus.Publish(NewEvent(context.Background(), CalendarSourcesChangedType, "not a payload"))

		// then
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("should collect handler errors and recover panics", func(t *testing.T) {
		// given
		bus := NewEventBus()
		bus.Subscribe("test", func(e Event) error { return errors.New("boom") })
		bus.Subscribe("test", func(e Event) error { panic("kaboom") })
		reached := false
		bus.Subscribe("test", func(e Event) error { reached = true; return nil })

		// when
		err := bus.Publish(NewEvent(context.Background(), "test", nil))

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 handler(s) failed")
		assert.True(t, reached)
	})

	t.Run("should stop delivering after unsubscribe", func(t *testing.T) {
		// given
		bus := NewEventBus()
		count := 0
		unsubscribe := bus.Subscribe("test", func(e Event) error { count++; return nil })
		_ = bus.Publish(NewEvent(context.Background(), "test", nil))

		// when
		unsubscribe()
		_ = bus.Publish(NewEvent(context.Background(), "test", nil))

		// then
		assert.Equal(t, 1, count)
	})

	t.Run("should refuse to publish with cancelled context", func(t *testing.T) {
		// given
		bus := NewEventBus()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// when
		err := bus.Publish(NewEvent(ctx, "test", nil))

		// then
		assert.ErrorIs(t, err, context.Canceled)
	})
}
