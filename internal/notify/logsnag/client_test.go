package logsnag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/notify"
)

func TestNewWithoutTokenDisablesChannel(t *testing.T) {
	assert.Nil(t, New(""))
}

func TestDescription(t *testing.T) {
	t.Run("fills placeholders for missing fields", func(t *testing.T) {
		assert.Equal(t, "Unknown <no-email>: No subject", Description(notify.Event{}))
	})

	t.Run("cuts at 256 runes", func(t *testing.T) {
		desc := Description(notify.Event{Name: "Ada", Email: "ada@example.com", Subject: strings.Repeat("é", 400)})
		assert.Len(t, []rune(desc), 256)
	})
}

func TestNotifyPostsPayload(t *testing.T) {
	var got payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("tok", WithEndpoint(srv.URL), WithChannel("inbox"))
	err := c.Notify(context.Background(), notify.Event{Name: "Ada", Email: "ada@example.com", Subject: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "portfolio", got.Project)
	assert.Equal(t, "inbox", got.Channel)
	assert.Equal(t, "Contact Submission", got.Event)
	assert.Equal(t, "Ada <ada@example.com>: Hello", got.Description)
	assert.Equal(t, "ada@example.com", got.Tags["email"])
	assert.True(t, got.Notify)
}

func TestNotifyReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New("tok", WithEndpoint(srv.URL)).Notify(context.Background(), notify.Event{})
	assert.ErrorContains(t, err, "401")
}
