package client

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout means the job never reached a terminal status within the
// attempt budget. It says nothing about the server: the job may still
// complete in the background.
var ErrPollTimeout = errors.New("protection is taking longer than expected, check back in a moment")

// ErrJobFailed is returned alongside the job when the server reports a
// terminal failure, so callers can tell a real failure from a timeout.
var ErrJobFailed = errors.New("processing failed, please try again")

type PollOptions struct {
	Interval    time.Duration // default 1s
	MaxAttempts int           // default 60
}

// PollJob fetches the job status until it is terminal, the attempt budget
// runs out, or ctx is cancelled. A transport error aborts immediately; it is
// not retried here. No timer fires after cancellation.
func (c *Client) PollJob(ctx context.Context, id string, opts PollOptions) (*Job, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 60
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < attempts; attempt++ {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case "completed":
			return job, nil
		case "failed":
			return job, ErrJobFailed
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, ErrPollTimeout
}
