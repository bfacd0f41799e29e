package taskqueue

import (
	"context"
	"errors"
	"time"
)

// Job is one dispatcher invocation: process the campaign's cached recipient
// list starting at StartIndex. A fresh dispatch starts at zero; paused
// batches re-enqueue themselves with the next unsent index.
type Job struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	StartIndex int    `json:"start_index"`
}

// ErrEmpty is returned by Dequeue when no job became ready within the
// blocking interval. Consumers loop on it.
var ErrEmpty = errors.New("taskqueue: no job ready")

// Queue is the enqueue side handed to the dispatcher and the ops API.
// The Rescheduler is a pure hand-off: delay scheduling lives here, not in
// the batch loop.
type Queue interface {
	// Enqueue schedules a job. A non-positive delay makes it immediately
	// available to consumers.
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
}

// Dequeuer is the consume side used by the worker pool.
type Dequeuer interface {
	// Dequeue blocks briefly for the next ready job. Returns ErrEmpty when
	// none arrived within the interval.
	Dequeue(ctx context.Context) (Job, error)
}
