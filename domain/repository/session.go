package repository

import "context"

// ISessionStore keeps one opaque session blob per account. Load returns
// (nil, nil) when nothing is stored.
type ISessionStore interface {
	Load(ctx context.Context, username string) ([]byte, error)
	Save(ctx context.Context, username string, blob []byte) error
	Delete(ctx context.Context, username string) error
}
