package eventing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type orderPlaced struct {
	ID string
}

type orderShipped struct {
	ID string
}

func TestPublishDeliversToTypedSubscribers(t *testing.T) {
	bus := NewInMemoryBus()

	var placed []orderPlaced
	Subscribe(bus, func(_ context.Context, event orderPlaced) error {
		placed = append(placed, event)
		return nil
	})
	var shipped int
	Subscribe(bus, func(context.Context, orderShipped) error {
		shipped++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), orderPlaced{ID: "a"}))
	require.NoError(t, bus.Publish(context.Background(), orderPlaced{ID: "b"}))

	require.Len(t, placed, 2)
	require.Equal(t, "a", placed[0].ID)
	require.Zero(t, shipped)
}

func TestPublishRunsAllHandlersAndReportsFirstError(t *testing.T) {
	bus := NewInMemoryBus()
	first := errors.New("first")

	var calls int
	Subscribe(bus, func(context.Context, orderPlaced) error {
		calls++
		return first
	})
	Subscribe(bus, func(context.Context, orderPlaced) error {
		calls++
		return errors.New("second")
	})

	err := bus.Publish(context.Background(), orderPlaced{})
	require.ErrorIs(t, err, first)
	require.Equal(t, 2, calls)
}

func TestPublishNilEvent(t *testing.T) {
	bus := NewInMemoryBus()
	require.ErrorIs(t, bus.Publish(context.Background(), nil), ErrNilEvent)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus()
	require.NoError(t, bus.Publish(context.Background(), orderShipped{ID: "x"}))
}

func TestEventTypeUnwrapsPointers(t *testing.T) {
	require.Equal(t, EventType(orderPlaced{}), EventType(&orderPlaced{}))
	require.Equal(t, EventTypeOf[orderPlaced](), EventType(orderPlaced{}))
}
