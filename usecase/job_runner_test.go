package usecase_test

import (
	"context"
	"errors"
	"testing"

	"reelpipe/domain/model"
	"reelpipe/infrastructure/queue"
	"reelpipe/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchNew(ctx context.Context, theme string, sources []string, limit int) ([]string, error) {
	args := m.Called(ctx, theme, sources, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockUploadRunner struct {
	mock.Mock
}

func (m *MockUploadRunner) Run(ctx context.Context, taskID, username string, links []string) error {
	return m.Called(ctx, taskID, username, links).Error(0)
}

func TestJobRunner_HandleFetch(t *testing.T) {
	tasks := newMemTaskStore()
	fetcher := new(MockFetcher)
	notifier := &RecordingNotifier{}
	fetcher.On("FetchNew", mock.Anything, "cats", []string{"s1"}, 5).Return([]string{"a", "b"}, nil)

	runner := usecase.NewJobRunner(tasks, fetcher, new(MockUploadRunner), notifier)
	err := runner.HandleFetch(context.Background(), queue.Job{TaskID: "f1", Kind: model.TaskKindFetch, Theme: "cats", Sources: []string{"s1"}, PerAccountLimit: 5})
	require.NoError(t, err)

	task, _ := tasks.Get(context.Background(), "f1")
	require.NotNil(t, task)
	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, "Found 2 new videos for theme cats", task.Message)
	assert.Len(t, notifier.Messages(), 1)
}

func TestJobRunner_HandleFetch_ErrorsAreRedelivered(t *testing.T) {
	tasks := newMemTaskStore()
	fetcher := new(MockFetcher)
	fetcher.On("FetchNew", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	runner := usecase.NewJobRunner(tasks, fetcher, new(MockUploadRunner), &RecordingNotifier{})
	err := runner.HandleFetch(context.Background(), queue.Job{TaskID: "f1", Kind: model.TaskKindFetch, Theme: "cats"})
	require.Error(t, err)

	task, _ := tasks.Get(context.Background(), "f1")
	assert.Equal(t, model.TaskStatusRunning, task.Status)
}

func TestJobRunner_HandleUpload(t *testing.T) {
	tasks := newMemTaskStore()
	uploads := new(MockUploadRunner)
	uploads.On("Run", mock.Anything, "u1", "alice", []string{"l1"}).Return(nil)
	uploads.On("Run", mock.Anything, "u2", "alice", []string(nil)).Return(model.ErrEmptyVideoList)
	require.NoError(t, tasks.Create(context.Background(), &model.TaskRecord{ID: "u2", Kind: model.TaskKindUpload, Status: model.TaskStatusRunning}))

	runner := usecase.NewJobRunner(tasks, new(MockFetcher), uploads, &RecordingNotifier{})
	require.NoError(t, runner.HandleUpload(context.Background(), queue.Job{TaskID: "u1", Kind: model.TaskKindUpload, Account: "alice", Links: []string{"l1"}}))
	require.NoError(t, runner.HandleUpload(context.Background(), queue.Job{TaskID: "u2", Kind: model.TaskKindUpload, Account: "alice"}))

	task, _ := tasks.Get(context.Background(), "u2")
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	uploads.AssertExpectations(t)
}

func TestJobRunner_GiveUp(t *testing.T) {
	tasks := newMemTaskStore()
	notifier := &RecordingNotifier{}
	require.NoError(t, tasks.Create(context.Background(), &model.TaskRecord{ID: "u1", Kind: model.TaskKindUpload, Status: model.TaskStatusRunning}))

	runner := usecase.NewJobRunner(tasks, new(MockFetcher), new(MockUploadRunner), notifier)
	runner.GiveUp(context.Background(), queue.Job{TaskID: "u1", Kind: model.TaskKindUpload, Account: "alice", Attempt: 2}, errors.New("store unavailable"))

	task, _ := tasks.Get(context.Background(), "u1")
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, "Task failed after 3 attempts: store unavailable", task.Message)
	require.Len(t, notifier.Messages(), 1)
	assert.Contains(t, notifier.Messages()[0], "@alice")
}
