package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/utils"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const taskColumns = `id, task_type, status, account_username, message, progress, total_items, current_item, next_action_at, cooldown_seconds, created_at, updated_at`

// TaskRepository is the task record store on Postgres. Every mutation is a
// single-row conditional UPDATE, so a terminal row never changes again.
type TaskRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db, now: utils.GetCurrentTime}
}

var _ repository.ITask = (*TaskRepository)(nil)

func (r *TaskRepository) Create(ctx context.Context, task *model.TaskRecord) error {
	if task.Status == "" {
		task.Status = model.TaskStatusRunning
	}
	now := r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO task_logs (id, task_type, status, account_username, message, progress, total_items, current_item, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`,
		task.ID, string(task.Kind), string(task.Status), task.AccountUsername, task.Message, task.Progress, task.TotalItems, task.CurrentItem, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", model.ErrDuplicateTask, task.ID)
		}
		return err
	}
	task.CreatedAt = utils.FormatTimestamp(now)
	task.UpdatedAt = task.CreatedAt
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.TaskRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task_logs WHERE id=$1`, id)
	rec, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *TaskRepository) Update(ctx context.Context, id string, f model.TaskUpdate) error {
	now := r.now()
	args := []interface{}{id}
	var sets []string
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}

	terminal := f.Status != nil && f.Status.IsTerminal()
	if f.Status != nil {
		set("status", string(*f.Status))
	}
	if f.Message != nil {
		set("message", *f.Message)
	}
	switch {
	case f.Progress != nil:
		set("progress", clampProgress(*f.Progress))
	case terminal && *f.Status == model.TaskStatusSuccess:
		set("progress", 100)
	}
	if f.TotalItems != nil {
		set("total_items", *f.TotalItems)
	}
	if terminal {
		sets = append(sets, "current_item=NULL", "next_action_at=NULL", "cooldown_seconds=NULL")
	} else {
		if f.CurrentItem != nil {
			set("current_item", *f.CurrentItem)
		}
		if f.CooldownSeconds != nil {
			if secs := *f.CooldownSeconds; secs > 0 {
				set("cooldown_seconds", secs)
				set("next_action_at", now.Add(time.Duration(secs)*time.Second))
			} else {
				sets = append(sets, "next_action_at=NULL", "cooldown_seconds=NULL")
			}
		}
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", now)

	q := `UPDATE task_logs SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 AND status='running'`
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *TaskRepository) List(ctx context.Context, filter model.TaskFilter) ([]model.TaskRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("task_type=$%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + taskColumns + ` FROM task_logs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]model.TaskRecord, 0)
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (r *TaskRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM task_logs WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Cleanup removes terminal tasks not touched within olderThan.
func (r *TaskRepository) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM task_logs WHERE status IN ('success','failed','cancelled') AND updated_at < $1`,
		r.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TaskRepository) Stats(ctx context.Context) (*model.TaskStats, error) {
	stats := &model.TaskStats{ByStatus: map[string]int{}, ByKind: map[string]int{}}
	if err := r.countGrouped(ctx, `SELECT status, COUNT(*) FROM task_logs GROUP BY status`, stats.ByStatus); err != nil {
		return nil, err
	}
	if err := r.countGrouped(ctx, `SELECT task_type, COUNT(*) FROM task_logs GROUP BY task_type`, stats.ByKind); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_logs WHERE created_at >= $1`, r.now().Add(-24*time.Hour))
	if err := row.Scan(&stats.Recent); err != nil {
		return nil, err
	}
	stats.Running = stats.ByStatus[string(model.TaskStatusRunning)]
	return stats, nil
}

func (r *TaskRepository) countGrouped(ctx context.Context, q string, into map[string]int) error {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*model.TaskRecord, error) {
	var (
		rec                  model.TaskRecord
		kind, status         string
		account, currentItem sql.NullString
		nextActionAt         sql.NullTime
		cooldown             sql.NullInt64
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&rec.ID, &kind, &status, &account, &rec.Message, &rec.Progress, &rec.TotalItems,
		&currentItem, &nextActionAt, &cooldown, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Kind = model.TaskKind(kind)
	rec.Status = model.TaskStatus(status)
	if account.Valid {
		rec.AccountUsername = &account.String
	}
	if currentItem.Valid {
		rec.CurrentItem = &currentItem.String
	}
	if nextActionAt.Valid {
		s := utils.FormatTimestamp(nextActionAt.Time.UTC())
		rec.NextActionAt = &s
	}
	if cooldown.Valid {
		c := int(cooldown.Int64)
		rec.CooldownSeconds = &c
	}
	rec.CreatedAt = utils.FormatTimestamp(createdAt.UTC())
	rec.UpdatedAt = utils.FormatTimestamp(updatedAt.UTC())
	return &rec, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
