package nwp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultModels(t *testing.T, r *Registry) []Model {
	t.Helper()
	models, err := r.Resolve(DefaultModelIDs())
	require.NoError(t, err)
	return models
}

func TestFetchManyToleratesPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/gfs" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(minimalMeteoResponse))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil, testLogger())
	report := client.FetchMany(context.Background(), defaultModels(t, client.Registry()), testCoords(t),
		FetchOptions{Retry: fastRetry(1)})

	require.Len(t, report.Successes, 2)
	assert.Equal(t, "ecmwf", report.Successes[0].ModelID)
	assert.Equal(t, "icon", report.Successes[1].ModelID)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "gfs", report.Failures[0].Model)
	assert.Error(t, report.Failures[0].Err)
	assert.Equal(t, []string{"gfs"}, report.FailedModelIDs())

	assert.InDelta(t, 2.0/3.0, report.SuccessRate(), 1e-9)
	assert.False(t, report.FetchedAt.IsZero())
	assert.Greater(t, report.TotalDuration, time.Duration(0))

	require.Len(t, report.Timings, 3)
	assert.Equal(t, "ecmwf", report.Timings[0].Model)
	assert.True(t, report.Timings[0].OK)
	assert.Equal(t, "gfs", report.Timings[1].Model)
	assert.False(t, report.Timings[1].OK)
}

func TestFetchManyAllFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil, testLogger())
	report := client.FetchMany(context.Background(), defaultModels(t, client.Registry()), testCoords(t),
		FetchOptions{Retry: fastRetry(1)})

	assert.Empty(t, report.Successes)
	assert.Len(t, report.Failures, 3)
	assert.Equal(t, 0.0, report.SuccessRate())
}

func TestFetchManyNoModels(t *testing.T) {
	client := NewClient("http://unused.invalid", http.DefaultClient, nil, testLogger())
	report := client.FetchMany(context.Background(), nil, testCoords(t), FetchOptions{})
	assert.Empty(t, report.Successes)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 0.0, report.SuccessRate())
}

func TestFetchManyOutputOrderIsStable(t *testing.T) {
	// Slow down the lexicographically-first model so it arrives last.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/ecmwf" {
			time.Sleep(30 * time.Millisecond)
		}
		w.Write([]byte(minimalMeteoResponse))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil, testLogger())
	report := client.FetchMany(context.Background(), defaultModels(t, client.Registry()), testCoords(t),
		FetchOptions{Retry: fastRetry(1)})

	require.Len(t, report.Successes, 3)
	assert.Equal(t, "ecmwf", report.Successes[0].ModelID)
	assert.Equal(t, "gfs", report.Successes[1].ModelID)
	assert.Equal(t, "icon", report.Successes[2].ModelID)
}

func TestFetchManyStaggersLaunches(t *testing.T) {
	var mu sync.Mutex
	var arrivals []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(minimalMeteoResponse))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil, testLogger())
	models, err := client.Registry().Resolve([]string{"ecmwf", "gfs"})
	require.NoError(t, err)

	report := client.FetchMany(context.Background(), models, testCoords(t),
		FetchOptions{Retry: fastRetry(1), RequestDelay: 50 * time.Millisecond})
	require.Len(t, report.Successes, 2)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, arrivals, 2)
	assert.Equal(t, "/v1/ecmwf", arrivals[0], "undelayed launch must arrive first")
	assert.Equal(t, "/v1/gfs", arrivals[1])
}

func TestFetchManyCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(minimalMeteoResponse))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, server.Client(), nil, testLogger())
	report := client.FetchMany(ctx, defaultModels(t, client.Registry()), testCoords(t),
		FetchOptions{Retry: fastRetry(1), RequestDelay: 10 * time.Millisecond})

	assert.Empty(t, report.Successes)
	assert.Len(t, report.Failures, 3)
	for _, f := range report.Failures {
		assert.ErrorIs(t, f.Err, context.Canceled, "model %s", f.Model)
	}
}
