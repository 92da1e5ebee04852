package usecase

import (
	"context"
	"errors"
	"fmt"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/queue"

	log "github.com/sirupsen/logrus"
)

type IUploadRunner interface {
	Run(ctx context.Context, taskID, username string, links []string) error
}

// JobRunner executes queued jobs for the dispatcher.
type JobRunner struct {
	tasks    repository.ITask
	fetcher  IFetchUsecase
	uploads  IUploadRunner
	notifier repository.INotifier
}

var _ queue.JobHandler = (*JobRunner)(nil)

func NewJobRunner(tasks repository.ITask, fetcher IFetchUsecase, uploads IUploadRunner, notifier repository.INotifier) *JobRunner {
	return &JobRunner{tasks: tasks, fetcher: fetcher, uploads: uploads, notifier: notifier}
}

func (r *JobRunner) HandleFetch(ctx context.Context, job queue.Job) error {
	lg := logger.GetLogger().WithFields(log.Fields{"task_id": job.TaskID, "theme": job.Theme})

	task, err := r.tasks.Get(ctx, job.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		task = &model.TaskRecord{ID: job.TaskID, Kind: model.TaskKindFetch, Status: model.TaskStatusRunning, Message: "Fetch started", TotalItems: len(job.Sources)}
		if err := r.tasks.Create(ctx, task); err != nil && !errors.Is(err, model.ErrDuplicateTask) {
			return err
		}
	} else if task.Status.IsTerminal() {
		lg.WithField("status", task.Status).Info("Fetch task already finished")
		return nil
	}

	links, err := r.fetcher.FetchNew(ctx, job.Theme, job.Sources, job.PerAccountLimit)
	if errors.Is(err, model.ErrInvalidRequest) {
		r.close(ctx, job.TaskID, model.TaskStatusFailed, err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Found %d new videos for theme %s", len(links), job.Theme)
	r.close(ctx, job.TaskID, model.TaskStatusSuccess, msg)
	r.notifier.Notify(ctx, "Fetch finished: "+msg)
	lg.WithField("new", len(links)).Info("Fetch task finished")
	return nil
}

func (r *JobRunner) HandleUpload(ctx context.Context, job queue.Job) error {
	err := r.uploads.Run(ctx, job.TaskID, job.Account, job.Links)
	if errors.Is(err, model.ErrEmptyVideoList) {
		r.close(ctx, job.TaskID, model.TaskStatusFailed, "No videos to upload")
		return nil
	}
	return err
}

// GiveUp closes a task whose job ran out of redeliveries.
func (r *JobRunner) GiveUp(ctx context.Context, job queue.Job, cause error) {
	msg := fmt.Sprintf("Task failed after %d attempts: %v", job.Attempt+1, cause)
	r.close(ctx, job.TaskID, model.TaskStatusFailed, msg)
	target := job.Theme
	if job.Kind == model.TaskKindUpload {
		target = "@" + job.Account
	}
	r.notifier.Notify(ctx, fmt.Sprintf("%s task for %s gave up: %v", job.Kind, target, cause))
}

func (r *JobRunner) close(ctx context.Context, taskID string, status model.TaskStatus, message string) {
	if err := r.tasks.Update(ctx, taskID, model.TaskUpdate{Status: &status, Message: &message}); err != nil {
		logger.GetLogger().WithError(err).WithField("task_id", taskID).Error("Failed to close task")
	}
}
