package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"reelpipe/domain/dto"
	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/queue"
	"reelpipe/infrastructure/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ITaskUsecase interface {
	TriggerFetch(ctx context.Context, req dto.FetchRequest) (*dto.TaskAccepted, error)
	TriggerUpload(ctx context.Context, req dto.UploadRequest) (*dto.TaskAccepted, error)
	GetTask(ctx context.Context, id string) (*dto.TaskProgressResponse, error)
	ListTasks(ctx context.Context, filter model.TaskFilter) (*dto.TaskListResponse, error)
	CancelTask(ctx context.Context, id string) (*dto.CancelResponse, error)
	DeleteTask(ctx context.Context, id string) error
	Cleanup(ctx context.Context, days int) (*dto.CleanupResponse, error)
	Stats(ctx context.Context) (*model.TaskStats, error)
	Dashboard(ctx context.Context) (*dto.DashboardStats, error)
}

type TaskConfig struct {
	RetentionDays    int
	DefaultListLimit int
}

type taskUsecase struct {
	tasks        repository.ITask
	accounts     repository.IAccount
	videos       repository.IVideo
	publications repository.IPublication
	transport    queue.Transport
	cfg          TaskConfig
	newID        func() string
	now          func() time.Time
}

func NewTaskUsecase(tasks repository.ITask, accounts repository.IAccount, videos repository.IVideo, publications repository.IPublication, transport queue.Transport, cfg TaskConfig) ITaskUsecase {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = 50
	}
	return &taskUsecase{
		tasks:        tasks,
		accounts:     accounts,
		videos:       videos,
		publications: publications,
		transport:    transport,
		cfg:          cfg,
		newID:        uuid.NewString,
		now:          utils.GetCurrentTime,
	}
}

func (u *taskUsecase) TriggerFetch(ctx context.Context, req dto.FetchRequest) (*dto.TaskAccepted, error) {
	theme := strings.TrimSpace(req.Theme)
	sources := cleanList(req.SourceAccounts)
	if theme == "" || len(sources) == 0 {
		return nil, fmt.Errorf("%w: theme and source_accounts are required", model.ErrInvalidRequest)
	}
	if req.PerAccountLimit < 0 {
		return nil, fmt.Errorf("%w: per_account_limit must not be negative", model.ErrInvalidRequest)
	}

	task := &model.TaskRecord{
		ID:         u.newID(),
		Kind:       model.TaskKindFetch,
		Status:     model.TaskStatusRunning,
		Message:    fmt.Sprintf("Fetching videos for theme %s from %d accounts", theme, len(sources)),
		TotalItems: len(sources),
	}
	job := queue.Job{TaskID: task.ID, Kind: model.TaskKindFetch, Theme: theme, Sources: sources, PerAccountLimit: req.PerAccountLimit}
	if err := u.enqueue(ctx, task, job); err != nil {
		return nil, err
	}
	return &dto.TaskAccepted{TaskID: task.ID, Message: "Fetch task started"}, nil
}

func (u *taskUsecase) TriggerUpload(ctx context.Context, req dto.UploadRequest) (*dto.TaskAccepted, error) {
	username := strings.TrimSpace(req.Account)
	if username == "" {
		return nil, fmt.Errorf("%w: account is required", model.ErrInvalidRequest)
	}
	links := cleanList(req.Links)
	if len(links) == 0 {
		return nil, model.ErrEmptyVideoList
	}
	account, err := u.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.ErrAccountNotFound
	}

	task := &model.TaskRecord{
		ID:              u.newID(),
		Kind:            model.TaskKindUpload,
		Status:          model.TaskStatusRunning,
		AccountUsername: &username,
		Message:         fmt.Sprintf("Upload queued: %d videos for @%s", len(links), username),
		TotalItems:      len(links),
	}
	job := queue.Job{TaskID: task.ID, Kind: model.TaskKindUpload, Account: username, Links: links}
	if err := u.enqueue(ctx, task, job); err != nil {
		return nil, err
	}
	return &dto.TaskAccepted{TaskID: task.ID, Message: fmt.Sprintf("Upload task started for %d videos", len(links))}, nil
}

// enqueue records the task before publishing so a fast worker always finds
// its row. A failed publish closes the row as failed.
func (u *taskUsecase) enqueue(ctx context.Context, task *model.TaskRecord, job queue.Job) error {
	if err := u.tasks.Create(ctx, task); err != nil {
		return err
	}
	job.EnqueuedAt = u.now()
	if err := u.transport.Publish(ctx, job, 0); err != nil {
		status := model.TaskStatusFailed
		msg := "Failed to enqueue task: " + err.Error()
		if uerr := u.tasks.Update(ctx, task.ID, model.TaskUpdate{Status: &status, Message: &msg}); uerr != nil {
			logger.GetLogger().WithError(uerr).WithField("task_id", task.ID).Error("Failed to close unqueued task")
		}
		return fmt.Errorf("enqueue task: %w", err)
	}
	logger.GetLogger().WithFields(log.Fields{"task_id": task.ID, "kind": task.Kind, "items": task.TotalItems}).Info("Task queued")
	return nil
}

func (u *taskUsecase) GetTask(ctx context.Context, id string) (*dto.TaskProgressResponse, error) {
	task, err := u.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, model.ErrTaskNotFound
	}
	resp := &dto.TaskProgressResponse{TaskRecord: *task}
	if task.NextActionAt != nil {
		if next, err := utils.ParseTimestamp(*task.NextActionAt); err == nil {
			remaining := int(math.Ceil(next.Sub(u.now()).Seconds()))
			resp.RemainingCooldown = max(remaining, 0)
		}
	}
	resp.IsInCooldown = resp.RemainingCooldown > 0
	return resp, nil
}

func (u *taskUsecase) ListTasks(ctx context.Context, filter model.TaskFilter) (*dto.TaskListResponse, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidRequest, filter.Status)
	}
	if filter.Kind != "" && filter.Kind != model.TaskKindFetch && filter.Kind != model.TaskKindUpload {
		return nil, fmt.Errorf("%w: unknown task type %q", model.ErrInvalidRequest, filter.Kind)
	}
	if filter.Limit <= 0 {
		filter.Limit = u.cfg.DefaultListLimit
	}
	tasks, err := u.tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.TaskRecord{}
	}
	return &dto.TaskListResponse{Tasks: tasks, Count: len(tasks)}, nil
}

// CancelTask only flips the status. The worker notices on its next check.
func (u *taskUsecase) CancelTask(ctx context.Context, id string) (*dto.CancelResponse, error) {
	task, err := u.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, model.ErrTaskNotFound
	}
	if task.Status != model.TaskStatusRunning {
		return &dto.CancelResponse{TaskID: id, Status: task.Status, Message: fmt.Sprintf("Task is not running (status: %s)", task.Status)}, nil
	}

	status := model.TaskStatusCancelled
	msg := "Task cancelled by user"
	if err := u.tasks.Update(ctx, id, model.TaskUpdate{Status: &status, Message: &msg}); err != nil {
		return nil, err
	}
	logger.GetLogger().WithField("task_id", id).Info("Task cancellation requested")
	return &dto.CancelResponse{TaskID: id, Status: status, Message: "Task cancellation requested"}, nil
}

func (u *taskUsecase) DeleteTask(ctx context.Context, id string) error {
	deleted, err := u.tasks.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return model.ErrTaskNotFound
	}
	return nil
}

func (u *taskUsecase) Cleanup(ctx context.Context, days int) (*dto.CleanupResponse, error) {
	if days <= 0 {
		days = u.cfg.RetentionDays
	}
	n, err := u.tasks.Cleanup(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	logger.GetLogger().WithFields(log.Fields{"deleted": n, "days": days}).Info("Old tasks cleaned up")
	return &dto.CleanupResponse{Deleted: n, Days: days}, nil
}

func (u *taskUsecase) Stats(ctx context.Context) (*model.TaskStats, error) {
	return u.tasks.Stats(ctx)
}

func (u *taskUsecase) Dashboard(ctx context.Context) (*dto.DashboardStats, error) {
	active, err := u.accounts.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := u.videos.CountByStatus(ctx, model.VideoStatusPending)
	if err != nil {
		return nil, err
	}
	posts, err := u.publications.CountSince(ctx, u.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	stats, err := u.tasks.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.DashboardStats{ActiveAccounts: active, PendingVideos: pending, PostsToday: posts, RunningTasks: stats.Running}, nil
}

// cleanList trims entries and drops blanks, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
