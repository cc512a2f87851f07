package socialgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubscriptionRegistry(t *testing.T) {
	t.Parallel()

	t.Run("subscribe and unsubscribe", func(t *testing.T) {
		t.Parallel()
		presence := &fakePresenceService{}
		r := newSubscriptionRegistry(presence, 42, zap.NewNop())

		r.subscribeMany([]uint64{1, 2})
		assert.ElementsMatch(t, []uint64{1, 2}, r.knownUsers())
		assert.Equal(t, 2, presence.deviceSubCount())

		r.unsubscribeMany([]uint64{1})
		assert.ElementsMatch(t, []uint64{2}, r.knownUsers())
		assert.True(t, presence.deviceUnsubbed(1))
		assert.False(t, presence.deviceUnsubbed(2))
	})

	t.Run("unsubscribe of unknown user is a no-op", func(t *testing.T) {
		t.Parallel()
		presence := &fakePresenceService{}
		r := newSubscriptionRegistry(presence, 42, zap.NewNop())

		r.unsubscribeMany([]uint64{99})
		assert.False(t, presence.deviceUnsubbed(99))
	})

	t.Run("partial failure keeps the other handle", func(t *testing.T) {
		t.Parallel()
		presence := &fakePresenceService{deviceSubErr: errors.New("subscribe failed")}
		r := newSubscriptionRegistry(presence, 42, zap.NewNop())

		require.Error(t, r.subscribe(1))
		// タイトル側の購読は生きているので台帳には残る
		assert.ElementsMatch(t, []uint64{1}, r.knownUsers())

		r.unsubscribeMany([]uint64{1})
		assert.True(t, presence.titleUnsubbed(1))
		assert.False(t, presence.deviceUnsubbed(1))
	})

	t.Run("resubscribe overwrites", func(t *testing.T) {
		t.Parallel()
		presence := &fakePresenceService{}
		r := newSubscriptionRegistry(presence, 42, zap.NewNop())

		require.NoError(t, r.subscribe(1))
		require.NoError(t, r.subscribe(1))
		assert.ElementsMatch(t, []uint64{1}, r.knownUsers())
		assert.Equal(t, 2, presence.deviceSubCount())
	})

	t.Run("clear keeps remote handles", func(t *testing.T) {
		t.Parallel()
		presence := &fakePresenceService{}
		r := newSubscriptionRegistry(presence, 42, zap.NewNop())

		require.NoError(t, r.subscribe(1))
		r.clear()
		assert.Empty(t, r.knownUsers())
		assert.False(t, presence.deviceUnsubbed(1))
	})
}
