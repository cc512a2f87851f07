package socialgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalEventQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := newInternalEventQueue()
	assert.True(t, q.empty())
	assert.Nil(t, q.pop())

	a := &internalEvent{kind: internalEventUsersAdded}
	b := &internalEvent{kind: internalEventUsersRemoved}
	q.push(a)
	q.push(b)
	assert.Equal(t, 2, q.len())

	assert.Same(t, a, q.pop())
	assert.Same(t, b, q.pop())
	assert.Nil(t, q.pop())
	assert.True(t, q.empty())
}

func TestEventQueue(t *testing.T) {
	t.Parallel()

	t.Run("unknown events are dropped", func(t *testing.T) {
		t.Parallel()
		q := newEventQueue(100)
		q.pushAffected(EventTypeUnknown, []string{"1"}, nil)
		assert.True(t, q.empty())
	})

	t.Run("push and drain", func(t *testing.T) {
		t.Parallel()
		q := newEventQueue(100)
		wantErr := errors.New("fetch failed")
		q.pushAffected(EventTypeUsersAddedToGraph, []string{"1", "2"}, nil)
		q.pushAffected(EventTypePresenceChanged, []string{"2"}, wantErr)

		events := q.list()
		require.Len(t, events, 2)
		assert.EqualValues(t, 100, events[0].LocalUser)
		assert.Equal(t, EventTypeUsersAddedToGraph, events[0].Type)
		assert.Equal(t, []string{"1", "2"}, events[0].AffectedUsers)
		assert.NoError(t, events[0].Err)
		assert.Equal(t, wantErr, events[1].Err)

		// listは読み取りマークのみ。消すのはclear
		assert.False(t, q.empty())
		q.clear()
		assert.True(t, q.empty())
		assert.Empty(t, q.list())
	})

	t.Run("push from internal event", func(t *testing.T) {
		t.Parallel()
		q := newEventQueue(100)
		q.push(&internalEvent{kind: internalEventUsersRemoved, xuids: []uint64{7, 8}}, EventTypeUsersRemovedFromGraph, nil)

		events := q.list()
		require.Len(t, events, 1)
		assert.Equal(t, []string{"7", "8"}, events[0].AffectedUsers)
	})
}

func TestInternalEvent_AffectedXuidStrings(t *testing.T) {
	t.Parallel()

	t.Run("users changed falls back to requested xuids on error", func(t *testing.T) {
		t.Parallel()
		evt := &internalEvent{
			kind:        internalEventUsersChanged,
			userStrings: []string{"1", "2"},
			err:         errors.New("fetch failed"),
		}
		assert.Equal(t, []string{"1", "2"}, evt.affectedXuidStrings())
	})

	t.Run("presence prefers explicit xuids", func(t *testing.T) {
		t.Parallel()
		evt := &internalEvent{
			kind:  internalEventPresenceChanged,
			xuids: []uint64{5},
		}
		assert.Equal(t, []string{"5"}, evt.affectedXuidStrings())
	})
}
