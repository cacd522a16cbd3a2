package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"communities/internal/application/common"
	"communities/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSetsDefaultUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.HTTPClient{})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "communities/"+common.Version, gotUA)
}

func TestDoKeepsExplicitUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.HTTPClient{UserAgent: "custom-agent/1.0"})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "per-request/2.0")

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "per-request/2.0", gotUA, "explicit header must win over the client default")
}

func TestRetryPredicate(t *testing.T) {
	rc := NewRetryClient(nil, 3, nil)

	// транспортные ошибки ретраим, отмену - нет
	assert.True(t, rc.ShouldRetry(nil, assert.AnError))
	assert.False(t, rc.ShouldRetry(nil, context.Canceled))
	assert.False(t, rc.ShouldRetry(nil, context.DeadlineExceeded))

	assert.True(t, rc.ShouldRetry(&http.Response{StatusCode: http.StatusInternalServerError}, nil))
	assert.True(t, rc.ShouldRetry(&http.Response{StatusCode: http.StatusTooManyRequests}, nil))
	assert.False(t, rc.ShouldRetry(&http.Response{StatusCode: http.StatusOK}, nil))
	assert.False(t, rc.ShouldRetry(&http.Response{StatusCode: http.StatusNotFound}, nil))
}
