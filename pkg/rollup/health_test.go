package rollup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEndpoints(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	defer healthy.Close()

	behind := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"Node is behind"}}`))
	}))
	defer behind.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	results := CheckEndpoints(context.Background(), []string{healthy.URL, behind.URL, down.URL}, time.Second)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK)
	assert.Equal(t, healthy.URL, results[0].URL)
	assert.Empty(t, results[0].Error)

	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "Node is behind")

	assert.False(t, results[2].OK)
	assert.Equal(t, "status code: 503", results[2].Error)
}
