package translinesdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeTextSendsCredentialsAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v0/activities/act%201/process", r.URL.EscapedPath())
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "Ola", body["text"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"applied":true,"status":{"text":"Hi","translated_text":"Ola","status":"open"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.APIKey = "key-1"
	res, err := c.ChangeText(context.Background(), "act 1", "Ola")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "Ola", res.Status.TranslatedText)
}

func TestAPIErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"validation_failed","message":"validation failed: empty input"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	c.APIKey = "ignored"
	_, err := c.Complete(context.Background(), "act-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "empty input")
}

func TestEventsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/activities/act-1/events", r.URL.Path)
		assert.Equal(t, "text.changed", r.URL.Query().Get("type"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[{"id":3,"type":"text.changed","actor_id":"ana","payload":{"text":"x"}}]}`))
	}))
	defer srv.Close()

	evts, err := New(srv.URL).Events(context.Background(), "act-1", "text.changed", 5)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "ana", evts[0].ActorID)
}
