package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicationRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPublicationRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM publication_history WHERE account_username=$1 AND video_link=$2)`)).
		WithArgs("alice", "https://t/v/1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (account_username, video_link) DO NOTHING`)).
		WithArgs("alice", "https://t/v/2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM publication_history WHERE created_at >= $1`)).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	exists, err := repo.Exists(ctx, "alice", "https://t/v/1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Record(ctx, "alice", "https://t/v/2"))

	n, err := repo.CountSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
