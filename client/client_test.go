package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keyfold/keyfold/types/api/requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.MaxElapsedTime = time.Second
	return cfg
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":"0x00000000000000000000000000000000000000a1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	out, err := c.PredictAddress(context.Background(), requests.CreateAccountRequest{Admin: "0x00000000000000000000000000000000000000a1"})
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", out.Address)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_SurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid admin address"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	_, err := c.CreateAccount(context.Background(), requests.CreateAccountRequest{Admin: "junk"})
	require.Error(t, err)

	httpErr, ok := err.(*HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "Invalid admin address")
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithBearerToken("tok-123"), WithRetryConfig(fastRetryConfig()))
	_, err := c.Execute(context.Background(), "0x00000000000000000000000000000000000000a1", requests.ExecuteRequest{
		Selector: "0x12345678",
		Calls:    []requests.CallRequest{{Target: "0x0000000000000000000000000000000000000101"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_RemoveExtensionNoContentBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"message":"Extension removed"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	err := c.RemoveExtension(context.Background(), "0x00000000000000000000000000000000000000a1", "swap")
	assert.NoError(t, err)
}
