package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reelpipe/domain/model"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTaskRepo(t *testing.T) (*TaskRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewTaskRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func statusPtr(s model.TaskStatus) *model.TaskStatus { return &s }

func TestTaskRepository_Create(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO task_logs`)).
		WithArgs("t-1", "upload", "running", "alice", "Queued", 0, 3, nil, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	task := &model.TaskRecord{ID: "t-1", Kind: model.TaskKindUpload, AccountUsername: strPtr("alice"), Message: "Queued", TotalItems: 3}
	require.NoError(t, repo.Create(context.Background(), task))

	assert.Equal(t, model.TaskStatusRunning, task.Status)
	assert.Equal(t, "2024-03-10T12:00:00+00:00", task.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Create_Duplicate(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO task_logs`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &model.TaskRecord{ID: "t-1", Kind: model.TaskKindFetch})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateTask))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Get(t *testing.T) {
	repo, mock := newTaskRepo(t)
	next := fixedNow.Add(90 * time.Second)

	rows := sqlmock.NewRows([]string{"id", "task_type", "status", "account_username", "message", "progress", "total_items", "current_item", "next_action_at", "cooldown_seconds", "created_at", "updated_at"}).
		AddRow("t-1", "upload", "running", "alice", "cooling", 33, 3, "Video 1 - cooldown", next, 90, fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + taskColumns + ` FROM task_logs WHERE id=$1`)).
		WithArgs("t-1").
		WillReturnRows(rows)

	rec, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.TaskStatusRunning, rec.Status)
	assert.Equal(t, "alice", *rec.AccountUsername)
	assert.Equal(t, 33, rec.Progress)
	assert.Equal(t, "2024-03-10T12:01:30+00:00", *rec.NextActionAt)
	assert.Equal(t, 90, *rec.CooldownSeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Get_Missing(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM task_logs WHERE id=$1`)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Update(t *testing.T) {
	tests := []struct {
		name   string
		update model.TaskUpdate
		query  string
		args   []driver.Value
	}{
		{
			name:   "progress",
			update: model.TaskUpdate{Message: strPtr("downloading"), Progress: intPtr(33), CurrentItem: strPtr("Video 2 - downloading")},
			query:  `UPDATE task_logs SET message=$2, progress=$3, current_item=$4, updated_at=$5 WHERE id=$1 AND status='running'`,
			args:   []driver.Value{"t-1", "downloading", 33, "Video 2 - downloading", fixedNow},
		},
		{
			name:   "cooldown scheduled",
			update: model.TaskUpdate{CooldownSeconds: intPtr(120)},
			query:  `UPDATE task_logs SET cooldown_seconds=$2, next_action_at=$3, updated_at=$4 WHERE id=$1 AND status='running'`,
			args:   []driver.Value{"t-1", 120, fixedNow.Add(120 * time.Second), fixedNow},
		},
		{
			name:   "cooldown cleared",
			update: model.TaskUpdate{CooldownSeconds: intPtr(0)},
			query:  `UPDATE task_logs SET next_action_at=NULL, cooldown_seconds=NULL, updated_at=$2 WHERE id=$1 AND status='running'`,
			args:   []driver.Value{"t-1", fixedNow},
		},
		{
			name:   "terminal success",
			update: model.TaskUpdate{Status: statusPtr(model.TaskStatusSuccess), Message: strPtr("done"), CurrentItem: strPtr("ignored")},
			query:  `UPDATE task_logs SET status=$2, message=$3, progress=$4, current_item=NULL, next_action_at=NULL, cooldown_seconds=NULL, updated_at=$5 WHERE id=$1 AND status='running'`,
			args:   []driver.Value{"t-1", "success", "done", 100, fixedNow},
		},
		{
			name:   "cancel keeps progress",
			update: model.TaskUpdate{Status: statusPtr(model.TaskStatusCancelled), Message: strPtr("Task cancelled by user")},
			query:  `UPDATE task_logs SET status=$2, message=$3, current_item=NULL, next_action_at=NULL, cooldown_seconds=NULL, updated_at=$4 WHERE id=$1 AND status='running'`,
			args:   []driver.Value{"t-1", "cancelled", "Task cancelled by user", fixedNow},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTaskRepo(t)
			mock.ExpectExec(regexp.QuoteMeta(tt.query)).
				WithArgs(tt.args...).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, repo.Update(context.Background(), "t-1", tt.update))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskRepository_Update_TerminalRowIsNoop(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE task_logs SET progress=$2, updated_at=$3 WHERE id=$1 AND status='running'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Update(context.Background(), "t-1", model.TaskUpdate{Progress: intPtr(50)}))
	require.NoError(t, repo.Update(context.Background(), "t-1", model.TaskUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_List(t *testing.T) {
	repo, mock := newTaskRepo(t)

	rows := sqlmock.NewRows([]string{"id", "task_type", "status", "account_username", "message", "progress", "total_items", "current_item", "next_action_at", "cooldown_seconds", "created_at", "updated_at"}).
		AddRow("t-2", "fetch", "success", nil, "Fetched 4 new videos", 100, 2, nil, nil, nil, fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM task_logs WHERE status=$1 AND task_type=$2 ORDER BY created_at DESC LIMIT $3`)).
		WithArgs("success", "fetch", 50).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), model.TaskFilter{Status: model.TaskStatusSuccess, Kind: model.TaskKindFetch})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].AccountUsername)
	assert.Nil(t, list[0].NextActionAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_DeleteAndCleanup(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_logs WHERE id=$1`)).
		WithArgs("t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_logs WHERE status IN ('success','failed','cancelled') AND updated_at < $1`)).
		WithArgs(fixedNow.Add(-7 * 24 * time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := repo.Delete(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	n, err := repo.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Stats(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) FROM task_logs GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("running", 2).AddRow("success", 5))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT task_type, COUNT(*) FROM task_logs GROUP BY task_type`)).
		WillReturnRows(sqlmock.NewRows([]string{"task_type", "count"}).AddRow("upload", 6).AddRow("fetch", 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM task_logs WHERE created_at >= $1`)).
		WithArgs(fixedNow.Add(-24 * time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Running)
	assert.Equal(t, 5, stats.ByStatus["success"])
	assert.Equal(t, 6, stats.ByKind["upload"])
	assert.Equal(t, 3, stats.Recent)
	require.NoError(t, mock.ExpectationsWereMet())
}
