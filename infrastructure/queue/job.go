package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reelpipe/domain/model"
)

// Job is one unit of queued work. Attempt counts failed deliveries so far.
type Job struct {
	TaskID          string         `json:"task_id"`
	Kind            model.TaskKind `json:"kind"`
	Account         string         `json:"account,omitempty"`
	Theme           string         `json:"theme,omitempty"`
	Links           []string       `json:"links,omitempty"`
	Sources         []string       `json:"sources,omitempty"`
	PerAccountLimit int            `json:"per_account_limit,omitempty"`
	Attempt         int            `json:"attempt"`
	EnqueuedAt      time.Time      `json:"enqueued_at"`
}

func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if j.TaskID == "" {
		return Job{}, fmt.Errorf("decode job: missing task_id")
	}
	return j, nil
}

// Handler processes one delivery. A non-nil error asks the transport to
// redeliver the message as is.
type Handler func(ctx context.Context, job Job) error

// Transport moves jobs between the API and the workers.
type Transport interface {
	Publish(ctx context.Context, job Job, delay time.Duration) error
	Consume(ctx context.Context, workers int, handle Handler) error
	Close() error
}
