package repository

import (
	"context"
	"time"
)

type IPublication interface {
	Exists(ctx context.Context, username, link string) (bool, error)
	Record(ctx context.Context, username, link string) error
	CountSince(ctx context.Context, since time.Time) (int64, error)
}
