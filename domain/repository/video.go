package repository

import (
	"context"

	"reelpipe/domain/model"
)

// IVideo doubles as the per-theme known-link set: InsertNew records links as
// pending videos and returns only those that were not known before.
type IVideo interface {
	InsertNew(ctx context.Context, theme string, links []string) ([]string, error)
	UpdateStatus(ctx context.Context, link, theme string, status model.VideoStatus) error
	CountByStatus(ctx context.Context, status model.VideoStatus) (int64, error)
}
