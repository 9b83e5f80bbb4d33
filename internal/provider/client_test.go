package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateSuccess(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-123")
	res, err := c.SendTemplate(context.Background(), "+100", "welcome_offer", []string{"Amina", "Solar Kit"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.MessageID)
	assert.Equal(t, "+100", got.To)
	assert.Equal(t, []string{"Amina", "Solar Kit"}, got.Params)
}

func TestSendTemplateThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"code": 429, "message": "rate limit exceeded"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-123")
	_, err := c.SendTemplate(context.Background(), "+100", "welcome_offer", nil)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, CodeRateLimited, sendErr.Code)
	assert.Equal(t, "rate limit exceeded", sendErr.Message)
}

func TestSendTemplateCodeFallsBackToHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"message": "maintenance"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-123")
	_, err := c.SendTemplate(context.Background(), "+100", "welcome_offer", nil)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, http.StatusServiceUnavailable, sendErr.Code)
}

func TestSendTemplateNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-123")
	_, err := c.SendTemplate(context.Background(), "+100", "welcome_offer", nil)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, http.StatusBadGateway, sendErr.Code)
}

func TestSendTemplateMissingMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-123")
	_, err := c.SendTemplate(context.Background(), "+100", "welcome_offer", nil)

	var sendErr *SendError
	assert.ErrorAs(t, err, &sendErr, "2xx without a message ID is still a failure")
}
