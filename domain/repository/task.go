package repository

import (
	"context"
	"time"

	"reelpipe/domain/model"
)

// ITask is the task record store. Get returns (nil, nil) for a missing id.
// Update against a terminal or missing task is a successful no-op.
type ITask interface {
	Create(ctx context.Context, task *model.TaskRecord) error
	Get(ctx context.Context, id string) (*model.TaskRecord, error)
	Update(ctx context.Context, id string, fields model.TaskUpdate) error
	List(ctx context.Context, filter model.TaskFilter) ([]model.TaskRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (*model.TaskStats, error)
}
