package client

import (
	"context"
	"fmt"
	"time"

	"github.com/masa-finance/timeline-poller/api/types"
)

// WaitForCycles polls the scheduler status until at least cycles complete
// cycles were recorded, maxRetries polls were made, or ctx is done.
func (c *Client) WaitForCycles(ctx context.Context, cycles uint64, maxRetries int, delay time.Duration) (*types.SchedulerStatus, error) {
	var (
		status *types.SchedulerStatus
		err    error
	)
	if maxRetries < 1 {
		maxRetries = 1
	}
	for retries := 0; retries < maxRetries; retries++ {
		status, err = c.SchedulerStatus(ctx)
		if err == nil && status.Cycles >= cycles {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return status, fmt.Errorf("max retries reached: %w", err)
	}
	return status, fmt.Errorf("max retries reached: %d of %d cycles completed", status.Cycles, cycles)
}
