package persistence

import (
	"context"
	"database/sql"
	"time"

	"reelpipe/domain/repository"
	"reelpipe/infrastructure/utils"
)

type PublicationRepository struct {
	db *sql.DB
}

func NewPublicationRepository(db *sql.DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

var _ repository.IPublication = (*PublicationRepository)(nil)

func (r *PublicationRepository) Exists(ctx context.Context, username, link string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM publication_history WHERE account_username=$1 AND video_link=$2)`,
		username, link).Scan(&exists)
	return exists, err
}

// Record is idempotent on (account_username, video_link).
func (r *PublicationRepository) Record(ctx context.Context, username, link string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO publication_history (account_username, video_link, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (account_username, video_link) DO NOTHING`,
		username, link, utils.GetCurrentTime())
	return err
}

func (r *PublicationRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publication_history WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}
