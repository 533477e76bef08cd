package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() AlertPayload {
	return AlertPayload{
		Level:     Critical,
		Title:     "Black swan paths",
		Message:   "3 of 1000 paths reached a non-positive price",
		Timestamp: time.Unix(1700000000, 0),
		Fields:    map[string]string{"symbol": "TSLA", "paths": "1000"},
	}
}

func TestSlackChannel_Send(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewSlackChannel(srv.URL).Send(context.Background(), testPayload()))

	attachments := body["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "#8b0000", att["color"])
	assert.Equal(t, "[CRITICAL] Black swan paths", att["pretext"])
	fields := att["fields"].([]interface{})
	require.Len(t, fields, 2)
	assert.Equal(t, "paths", fields[0].(map[string]interface{})["title"])
}

func TestSlackChannel_EmptyWebhookIsNoop(t *testing.T) {
	assert.NoError(t, NewSlackChannel("").Send(context.Background(), testPayload()))
}

func TestSlackChannel_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewSlackChannel(srv.URL).Send(context.Background(), testPayload()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSlackChannel_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSlackChannel(srv.URL).Send(context.Background(), testPayload())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTelegramChannel_Send(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewTelegramChannel("TOKEN", "42").WithAPIURL(srv.URL + "/")
	require.NoError(t, ch.Send(context.Background(), testPayload()))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "Markdown", body["parse_mode"])
	text := body["text"].(string)
	assert.Contains(t, text, "*[CRITICAL] Black swan paths*")
	assert.Contains(t, text, "- *symbol*: TSLA")
}

func TestTelegramChannel_MissingCredentialsIsNoop(t *testing.T) {
	assert.NoError(t, NewTelegramChannel("", "42").Send(context.Background(), testPayload()))
	assert.NoError(t, NewTelegramChannel("TOKEN", "").Send(context.Background(), testPayload()))
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(nil))
	assert.False(t, retryable(context.Canceled))
	assert.True(t, retryable(&StatusError{Code: 503}))
	assert.True(t, retryable(&StatusError{Code: http.StatusTooManyRequests}))
	assert.False(t, retryable(&StatusError{Code: 404}))
}
