package presence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xlivekit/xlivekit/model"
)

func TestClient_GetPresenceForMultipleUsers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/batch", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.ConfigFastest.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []interface{}{"1", "2"}, body["users"])
		assert.Equal(t, "all", body["level"])

		_, _ = w.Write([]byte(`[
			{
				"xuid": "1",
				"state": "Online",
				"devices": [
					{
						"type": "XboxOne",
						"titles": [
							{
								"id": "42",
								"state": "active",
								"placement": "full",
								"lastModified": "2026-08-24T10:00:00Z",
								"activity": {"isBroadcasting": true, "richPresence": "In match"}
							},
							{"id": "7", "state": "active", "placement": "background"}
						]
					}
				]
			},
			{"xuid": "0", "state": "Offline"}
		]`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL}, nil, zap.NewNop())
	records, err := c.GetPresenceForMultipleUsers(context.Background(), []uint64{1, 2})
	require.NoError(t, err)

	// xuid 0は不正として落とされる
	require.Len(t, records, 1)
	r := records[0]
	assert.EqualValues(t, 1, r.XboxUserID)
	assert.Equal(t, model.UserPresenceStateOnline, r.UserState)
	require.Len(t, r.TitleRecords, 2)

	active := r.TitleRecords[0]
	assert.EqualValues(t, 42, active.TitleID)
	assert.True(t, active.IsTitleActive)
	assert.True(t, active.IsBroadcasting)
	assert.Equal(t, "In match", active.PresenceText)
	assert.Equal(t, model.DeviceTypeXboxOne, active.DeviceType)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), active.LastModified)

	// placementがfullでないタイトルはアクティブ扱いにならない
	background := r.TitleRecords[1]
	assert.EqualValues(t, 7, background.TitleID)
	assert.False(t, background.IsTitleActive)
}

func TestClient_GetPresenceForMultipleUsers_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1}, nil, zap.NewNop())
	_, err := c.GetPresenceForMultipleUsers(context.Background(), []uint64{1})
	assert.Error(t, err)
}
