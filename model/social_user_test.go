package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	base := SocialUser{
		XboxUserID:         1,
		IsFavorite:         true,
		IsFollowingUser:    true,
		IsFollowedByCaller: true,
		DisplayName:        "Foo",
		RealName:           "Foo Bar",
		Gamertag:           "foobar",
		Gamerscore:         "12345",
		PreferredColor:     PreferredColor{PrimaryColor: "107c10"},
		Presence: PresenceRecord{
			UserState:    UserPresenceStateOnline,
			TitleRecords: []TitleRecord{{TitleID: 10, IsTitleActive: true}},
		},
	}

	t.Run("no change", func(t *testing.T) {
		t.Parallel()
		next := base
		assert.Equal(t, NoChange, Diff(&base, &next))
	})

	t.Run("profile change", func(t *testing.T) {
		t.Parallel()
		next := base
		next.Gamerscore = "12400"
		change := Diff(&base, &next)
		assert.True(t, change.Has(ProfileChange))
		assert.False(t, change.Has(SocialRelationshipChange))
		assert.False(t, change.Has(PresenceChange))
	})

	t.Run("relationship change", func(t *testing.T) {
		t.Parallel()
		next := base
		next.IsFavorite = false
		change := Diff(&base, &next)
		assert.False(t, change.Has(ProfileChange))
		assert.True(t, change.Has(SocialRelationshipChange))
	})

	t.Run("presence change", func(t *testing.T) {
		t.Parallel()
		next := base
		next.Presence = PresenceRecord{UserState: UserPresenceStateOffline}
		change := Diff(&base, &next)
		assert.True(t, change.Has(PresenceChange))
		assert.False(t, change.Has(ProfileChange))
	})

	t.Run("combined", func(t *testing.T) {
		t.Parallel()
		next := base
		next.DisplayName = "Baz"
		next.IsFollowingUser = false
		next.Presence = PresenceRecord{UserState: UserPresenceStateAway}
		change := Diff(&base, &next)
		assert.True(t, change.Has(ProfileChange))
		assert.True(t, change.Has(SocialRelationshipChange))
		assert.True(t, change.Has(PresenceChange))
	})
}
