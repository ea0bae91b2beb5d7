package render

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval matches the cadence the render service recommends.
const DefaultPollInterval = 3 * time.Second

var ErrRenderFailed = errors.New("render failed")

// StatusChecker is the part of Client the poller needs.
type StatusChecker interface {
	Status(ctx context.Context, id string) (JobStatus, error)
}

// Poll checks job id every interval until it settles. A done job must carry a
// URL; failed jobs return ErrRenderFailed wrapping the service message. A
// status outside the known set is treated as a malformed response.
// Transient errors are tolerated up to maxErrors in a row (0 means the first
// error is fatal). The ticker is released on every return path.
func Poll(ctx context.Context, checker StatusChecker, id string, interval time.Duration, maxErrors int) (JobStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return JobStatus{}, ctx.Err()
		case <-ticker.C:
		}

		st, err := checker.Status(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return JobStatus{}, ctx.Err()
			}
			if errors.Is(err, ErrMalformedResponse) {
				return JobStatus{}, err
			}
			failures++
			if failures > maxErrors {
				return JobStatus{}, fmt.Errorf("poll %s: %w", id, err)
			}
			continue
		}
		failures = 0

		switch st.Status {
		case StatusDone:
			if st.URL == "" {
				return st, fmt.Errorf("%w: done without url", ErrMalformedResponse)
			}
			return st, nil
		case StatusFailed:
			msg := st.Error
			if msg == "" {
				msg = "unknown error"
			}
			return st, fmt.Errorf("%w: %s", ErrRenderFailed, msg)
		case StatusQueued, StatusFetching, StatusRendering, StatusSaving:
		default:
			return st, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, st.Status)
		}
	}
}
