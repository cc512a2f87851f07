package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresenceRecord_Compare(t *testing.T) {
	t.Parallel()

	base := PresenceRecord{
		XboxUserID: 1,
		UserState:  UserPresenceStateOnline,
		TitleRecords: []TitleRecord{
			{TitleID: 10, IsTitleActive: true, DeviceType: DeviceTypeXboxOne, PresenceText: "In lobby"},
			{TitleID: 20, IsTitleActive: false, DeviceType: DeviceTypePC},
		},
	}

	t.Run("self", func(t *testing.T) {
		t.Parallel()
		r := base
		assert.False(t, r.Compare(&base))
	})

	t.Run("order is ignored", func(t *testing.T) {
		t.Parallel()
		r := PresenceRecord{
			UserState: UserPresenceStateOnline,
			TitleRecords: []TitleRecord{
				{TitleID: 20, IsTitleActive: false, DeviceType: DeviceTypePC},
				{TitleID: 10, IsTitleActive: true, DeviceType: DeviceTypeXboxOne, PresenceText: "In lobby"},
			},
		}
		assert.False(t, base.Compare(&r))
		assert.False(t, r.Compare(&base))
	})

	t.Run("last modified is ignored", func(t *testing.T) {
		t.Parallel()
		r := base
		r.TitleRecords = append([]TitleRecord(nil), base.TitleRecords...)
		r.TitleRecords[0].LastModified = time.Now()
		assert.False(t, base.Compare(&r))
	})

	t.Run("user state", func(t *testing.T) {
		t.Parallel()
		r := base
		r.UserState = UserPresenceStateAway
		assert.True(t, base.Compare(&r))
		assert.True(t, r.Compare(&base))
	})

	t.Run("title activity", func(t *testing.T) {
		t.Parallel()
		r := base
		r.TitleRecords = append([]TitleRecord(nil), base.TitleRecords...)
		r.TitleRecords[1].IsTitleActive = true
		assert.True(t, base.Compare(&r))
		assert.True(t, r.Compare(&base))
	})

	t.Run("presence text", func(t *testing.T) {
		t.Parallel()
		r := base
		r.TitleRecords = append([]TitleRecord(nil), base.TitleRecords...)
		r.TitleRecords[0].PresenceText = "In match"
		assert.True(t, base.Compare(&r))
	})

	t.Run("title set", func(t *testing.T) {
		t.Parallel()
		r := base
		r.TitleRecords = base.TitleRecords[:1]
		assert.True(t, base.Compare(&r))
		assert.True(t, r.Compare(&base))
	})
}

func TestPresenceRecord_UpdateDevice(t *testing.T) {
	t.Parallel()

	t.Run("logged on", func(t *testing.T) {
		t.Parallel()
		r := PresenceRecord{
			UserState: UserPresenceStateOffline,
			TitleRecords: []TitleRecord{
				{TitleID: 10, DeviceType: DeviceTypeXboxOne},
			},
		}
		r.UpdateDevice(DeviceTypeXboxOne, true)
		assert.Equal(t, UserPresenceStateOnline, r.UserState)
		assert.True(t, r.TitleRecords[0].IsTitleActive)
	})

	t.Run("logged off last device", func(t *testing.T) {
		t.Parallel()
		r := PresenceRecord{
			UserState: UserPresenceStateOnline,
			TitleRecords: []TitleRecord{
				{TitleID: 10, IsTitleActive: true, DeviceType: DeviceTypeXboxOne},
			},
		}
		r.UpdateDevice(DeviceTypeXboxOne, false)
		assert.Equal(t, UserPresenceStateOffline, r.UserState)
		assert.False(t, r.TitleRecords[0].IsTitleActive)
	})

	t.Run("logged off but another device is active", func(t *testing.T) {
		t.Parallel()
		r := PresenceRecord{
			UserState: UserPresenceStateOnline,
			TitleRecords: []TitleRecord{
				{TitleID: 10, IsTitleActive: true, DeviceType: DeviceTypeXboxOne},
				{TitleID: 20, IsTitleActive: true, DeviceType: DeviceTypePC},
			},
		}
		r.UpdateDevice(DeviceTypeXboxOne, false)
		assert.Equal(t, UserPresenceStateOnline, r.UserState)
		assert.False(t, r.TitleRecords[0].IsTitleActive)
		assert.True(t, r.TitleRecords[1].IsTitleActive)
	})
}

func TestPresenceRecord_RemoveTitle(t *testing.T) {
	t.Parallel()

	r := PresenceRecord{
		TitleRecords: []TitleRecord{
			{TitleID: 10},
			{TitleID: 20},
			{TitleID: 10},
		},
	}
	r.RemoveTitle(10)
	assert.Len(t, r.TitleRecords, 1)
	assert.EqualValues(t, 20, r.TitleRecords[0].TitleID)

	r.RemoveTitle(999)
	assert.Len(t, r.TitleRecords, 1)
}

func TestPresenceRecord_IsUserPlayingTitle(t *testing.T) {
	t.Parallel()

	r := PresenceRecord{
		TitleRecords: []TitleRecord{
			{TitleID: 10, IsTitleActive: true},
			{TitleID: 20, IsTitleActive: false},
		},
	}
	assert.True(t, r.IsUserPlayingTitle(10))
	assert.False(t, r.IsUserPlayingTitle(20))
	assert.False(t, r.IsUserPlayingTitle(30))
}
