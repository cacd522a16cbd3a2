package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type directClient struct{}

func (directClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req.WithContext(ctx))
}

func TestSignURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/attachment/att-1", r.URL.Path)

		var body struct {
			Verb string `json:"verb"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "GET", body.Verb)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/signed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", directClient{}, zap.NewNop().Sugar())

	signed, err := c.SignURL(context.Background(), "att-1", "GET")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/signed", signed.URL)
}

func TestSignURLUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", directClient{}, zap.NewNop().Sugar())

	_, err := c.SignURL(context.Background(), "att-1", "GET")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}
