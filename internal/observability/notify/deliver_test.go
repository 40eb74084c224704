package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_DeliversPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.Client(), srv.URL, "test", 0, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, got)
}

func TestPostJSON_RetriesUntilLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.Client(), srv.URL, "test", 2, struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test 503 Service Unavailable: unavailable")
	assert.EqualValues(t, 3, calls.Load())
}

func TestPostJSON_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := PostJSON(ctx, srv.Client(), srv.URL, "test", 10, struct{}{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPostJSON_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 10<<10)))
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.Client(), srv.URL, "test", 0, struct{}{})
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 5<<10)
}

func TestPostJSON_RejectsUnencodablePayload(t *testing.T) {
	err := PostJSON(context.Background(), http.DefaultClient, "http://127.0.0.1:1", "test", 0, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode test payload")
}

func TestDelivery_RetryPredicateStopsEarly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad event", http.StatusBadRequest)
	}))
	defer srv.Close()

	d := Delivery{
		Client:     srv.Client(),
		Endpoint:   srv.URL,
		Name:       "test",
		RetryLimit: 3,
		Backoff:    time.Millisecond,
		Retry: func(err error) bool {
			var se *StatusError
			return !errors.As(err, &se) || se.Retryable()
		},
	}
	err := d.Post(context.Background(), struct{}{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "bad event", se.Body)
	assert.False(t, se.Retryable())
	assert.EqualValues(t, 1, calls.Load())
}

func TestStatusError_Retryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&StatusError{Code: tt.code}).Retryable(), tt.code)
	}
}
