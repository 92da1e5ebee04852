package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reelpipe/domain/model"
)

func newGormMock(t *testing.T) (sqlmock.Sqlmock, *AccountRepository, *VideoRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gdb, err := NewGormDB(db)
	require.NoError(t, err)
	return mock, NewAccountRepository(gdb), NewVideoRepository(gdb)
}

func TestAccountRepository_GetByUsername(t *testing.T) {
	mock, accounts, _ := newGormMock(t)

	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE username = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"username", "password", "theme", "status", "is_active", "proxy_host", "proxy_port", "proxy_active", "proxy_status"}).
			AddRow("alice", "refresh-token", "cats", "active", true, "10.0.0.1", 8080, true, "working"))
	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE username = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"username"}))

	acc, err := accounts.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "cats", acc.Theme)
	proxy := acc.Proxy()
	require.NotNil(t, proxy)
	assert.True(t, proxy.Usable())
	assert.Equal(t, 8080, proxy.Port)

	missing, err := accounts.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Bookkeeping(t *testing.T) {
	mock, accounts, _ := newGormMock(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE "accounts" SET "posts_count"=posts_count \+ \$1 WHERE username = \$2`).
		WithArgs(1, "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "accounts" SET "status"=\$1 WHERE username = \$2`).
		WithArgs("error", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "accounts" SET .*"proxy_failure_count"=proxy_failure_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "accounts" SET "password"=\$1 WHERE username = \$2`).
		WithArgs("new-token", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, accounts.IncrementPosts(ctx, "alice"))
	require.NoError(t, accounts.SetStatus(ctx, "alice", model.AccountStatusError))
	require.NoError(t, accounts.UpdateProxyCheck(ctx, "alice", model.ProxyStatusFailed, time.Now()))
	assert.ErrorIs(t, accounts.SetCredential(ctx, "ghost", "new-token"), model.ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_DisableFailingProxies(t *testing.T) {
	mock, accounts, _ := newGormMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "username" FROM "accounts" WHERE proxy_active = \$1 AND proxy_status = \$2 AND proxy_failure_count >= \$3`).
		WithArgs(true, "failed", 3).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("alice").AddRow("carol"))
	mock.ExpectExec(`UPDATE "accounts" SET "proxy_active"=\$1 WHERE username IN \(\$2,\$3\)`).
		WithArgs(false, "alice", "carol").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	disabled, err := accounts.DisableFailingProxies(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, disabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepository_InsertNew(t *testing.T) {
	mock, _, videos := newGormMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "videos" .* ON CONFLICT \("link","theme"\) DO NOTHING RETURNING "id"`).
		WithArgs("https://t/v/1", "cats", "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(`INSERT INTO "videos" .* ON CONFLICT \("link","theme"\) DO NOTHING RETURNING "id"`).
		WithArgs("https://t/v/2", "cats", "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "videos" .* ON CONFLICT \("link","theme"\) DO NOTHING RETURNING "id"`).
		WithArgs("https://t/v/3", "cats", "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectCommit()

	inserted, err := videos.InsertNew(context.Background(), "cats", []string{"https://t/v/1", "https://t/v/2", "https://t/v/3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://t/v/1", "https://t/v/3"}, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepository_UpdateStatus(t *testing.T) {
	mock, _, videos := newGormMock(t)

	mock.ExpectExec(`UPDATE "videos" SET "status"=\$1 WHERE link = \$2 AND theme = \$3`).
		WithArgs("uploaded", "https://t/v/1", "cats").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, videos.UpdateStatus(context.Background(), "https://t/v/1", "cats", model.VideoStatusUploaded))
	require.NoError(t, mock.ExpectationsWereMet())
}
