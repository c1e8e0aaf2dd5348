package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_JSONAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Write([]byte(`{"value":42}`))
		case "/empty":
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "queue full", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"})
	ctx := context.Background()

	var out struct{ Value int }
	require.NoError(t, c.JSON(ctx, "ok", http.MethodPost, "/ok", map[string]string{"a": "b"}, &out))
	assert.Equal(t, 42, out.Value)

	require.NoError(t, c.JSON(ctx, "empty", http.MethodPost, "/empty", nil, &out))

	err := c.JSON(ctx, "busy", http.MethodGet, "/busy", nil, nil)
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusServiceUnavailable, he.Code)
	assert.Equal(t, "queue full", he.Body)
	assert.Equal(t, "busy: status 503: queue full", he.Error())
}

func TestClient_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"svc-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, TokenURL: srv.URL + "/token", ClientID: "quizdesk", ClientSecret: "s"})
	require.NoError(t, c.JSON(context.Background(), "ping", http.MethodGet, "/ping", nil, nil))
}
