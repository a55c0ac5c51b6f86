package client

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

func jobServer(t *testing.T, status func(call int64) string) (*httptest.Server, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "j1",
			"status":       status(n),
			"original_url": "https://x/o.png",
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestPollUntilCompleted(t *testing.T) {
	srv, calls := jobServer(t, func(n int64) string {
		if n < 3 {
			return "processing"
		}
		return "completed"
	})

	c := New(srv.URL, "tok")
	job, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "completed", job.Status)
	assert.EqualValues(t, 3, atomic.LoadInt64(calls))
}

func TestPollFailedJobIsNotATimeout(t *testing.T) {
	srv, _ := jobServer(t, func(int64) string { return "failed" })

	c := New(srv.URL, "tok")
	job, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: 5 * time.Millisecond})
	require.ErrorIs(t, err, ErrJobFailed)
	require.NotNil(t, job)
	assert.Equal(t, "failed", job.Status)
}

func TestPollTimeout(t *testing.T) {
	srv, calls := jobServer(t, func(int64) string { return "processing" })

	c := New(srv.URL, "tok")
	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 4})
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.EqualValues(t, 4, atomic.LoadInt64(calls))
}

func TestPollCancellationStopsScheduling(t *testing.T) {
	srv, calls := jobServer(t, func(int64) string { return "processing" })

	ctx, cancel := context.WithCancel(context.Background())
	c := New(srv.URL, "tok")

	done := make(chan error, 1)
	go func() {
		_, err := c.PollJob(ctx, "j1", PollOptions{Interval: 50 * time.Millisecond, MaxAttempts: 100})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller kept running after cancellation")
	}
	seen := atomic.LoadInt64(calls)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, seen, atomic.LoadInt64(calls))
}

func TestPollTransportErrorAbortsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 10})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPollTimeout)
}
