package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_FetchBuildings(t *testing.T) {
	requests := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"buildings":[{"name":"공학관","electricity":5000,"gas":1000,"water":100}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	got, err := c.FetchBuildings(context.Background(), 2026, 3)
	require.NoError(t, err)
	seen := <-requests
	require.Equal(t, "/buildings", seen.URL.Path)
	require.Equal(t, "2026", seen.URL.Query().Get("year"))
	require.Equal(t, "3", seen.URL.Query().Get("month"))
	require.Equal(t, "Bearer secret", seen.Header.Get("Authorization"))
	require.Len(t, got, 1)
	require.Equal(t, "공학관", got[0].Name)
	require.Equal(t, 5000.0, got[0].Electricity)
}

func TestClient_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.FetchBuildings(context.Background(), 2026, 3)
	require.ErrorContains(t, err, "API error 503")
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	for i := 0; i < 5; i++ {
		_, err := c.FetchBuildings(context.Background(), 2026, 3)
		require.Error(t, err)
	}
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "open", c.BreakerState())
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", 0).FetchBuildings(context.Background(), 2026, 1)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSynthetic_FallbackBuildings(t *testing.T) {
	got, err := NewSynthetic(42).FetchBuildings(context.Background(), 2026, 3)
	require.NoError(t, err)
	require.Len(t, got, len(FallbackBuildings))
	for i, b := range got {
		require.Equal(t, FallbackBuildings[i], b.Name)
		require.GreaterOrEqual(t, b.Electricity, 3000.0)
		require.LessOrEqual(t, b.Electricity, 8000.0)
		require.GreaterOrEqual(t, b.Gas, 500.0)
		require.LessOrEqual(t, b.Water, 200.0)
	}
}
