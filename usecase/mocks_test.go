package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"reelpipe/domain/model"
	"reelpipe/infrastructure/proxy"
	"reelpipe/infrastructure/queue"
	"reelpipe/infrastructure/utils"

	"github.com/stretchr/testify/mock"
)

type MockAccountRepo struct {
	mock.Mock
}

func (m *MockAccountRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepo) ListWithProxy(ctx context.Context) ([]model.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *MockAccountRepo) CountActive(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountRepo) UpdateProxyCheck(ctx context.Context, username string, status model.ProxyStatus, checkedAt time.Time) error {
	return m.Called(ctx, username, status, checkedAt).Error(0)
}

func (m *MockAccountRepo) DisableFailingProxies(ctx context.Context, threshold int) ([]string, error) {
	args := m.Called(ctx, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAccountRepo) RecordLogin(ctx context.Context, username string, at time.Time) error {
	return m.Called(ctx, username, at).Error(0)
}

func (m *MockAccountRepo) IncrementPosts(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *MockAccountRepo) SetStatus(ctx context.Context, username string, status model.AccountStatus) error {
	return m.Called(ctx, username, status).Error(0)
}

func (m *MockAccountRepo) SetCredential(ctx context.Context, username, credential string) error {
	return m.Called(ctx, username, credential).Error(0)
}

type MockVideoRepo struct {
	mock.Mock
}

func (m *MockVideoRepo) InsertNew(ctx context.Context, theme string, links []string) ([]string, error) {
	args := m.Called(ctx, theme, links)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockVideoRepo) UpdateStatus(ctx context.Context, link, theme string, status model.VideoStatus) error {
	return m.Called(ctx, link, theme, status).Error(0)
}

func (m *MockVideoRepo) CountByStatus(ctx context.Context, status model.VideoStatus) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublicationRepo struct {
	mock.Mock
}

func (m *MockPublicationRepo) Exists(ctx context.Context, username, link string) (bool, error) {
	args := m.Called(ctx, username, link)
	return args.Bool(0), args.Error(1)
}

func (m *MockPublicationRepo) Record(ctx context.Context, username, link string) error {
	return m.Called(ctx, username, link).Error(0)
}

func (m *MockPublicationRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context, username string) ([]byte, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSessionStore) Save(ctx context.Context, username string, blob []byte) error {
	return m.Called(ctx, username, blob).Error(0)
}

func (m *MockSessionStore) Delete(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

type MockLister struct {
	mock.Mock
}

func (m *MockLister) ListRecentVideos(ctx context.Context, account string, limit int) ([]string, error) {
	args := m.Called(ctx, account, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) ResolveDownloadURL(ctx context.Context, sourceLink string) (string, error) {
	args := m.Called(ctx, sourceLink)
	return args.String(0), args.Error(1)
}

func (m *MockDownloader) FetchToFile(ctx context.Context, mediaURL, path string) error {
	return m.Called(ctx, mediaURL, path).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Login(ctx context.Context, account *model.Account, via *model.ProxyConfig) (*model.Session, error) {
	args := m.Called(ctx, account, via)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockPublisher) RestoreSession(ctx context.Context, username string, blob []byte, via *model.ProxyConfig) (*model.Session, error) {
	args := m.Called(ctx, username, blob, via)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockPublisher) Publish(ctx context.Context, session *model.Session, filePath, caption string) (*model.MediaRef, error) {
	args := m.Called(ctx, session, filePath, caption)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRef), args.Error(1)
}

// RecordingNotifier keeps every message in order.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *RecordingNotifier) Notify(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(ctx context.Context, cfg *model.ProxyConfig) (*proxy.ProbeResult, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*proxy.ProbeResult), args.Error(1)
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Publish(ctx context.Context, job queue.Job, delay time.Duration) error {
	return m.Called(ctx, job, delay).Error(0)
}

func (m *MockTransport) Consume(ctx context.Context, workers int, handle queue.Handler) error {
	return m.Called(ctx, workers, handle).Error(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}

// memTaskStore mirrors the SQL store's rules: updates only touch running
// tasks, terminal updates clear the cooldown fields.
type memTaskStore struct {
	mu      sync.Mutex
	tasks   map[string]*model.TaskRecord
	history map[string][]model.TaskRecord
	now     func() time.Time
	// onUpdate runs after every applied update, outside the lock.
	onUpdate func(id string, rec model.TaskRecord)
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{
		tasks:   map[string]*model.TaskRecord{},
		history: map[string][]model.TaskRecord{},
		now:     utils.GetCurrentTime,
	}
}

func (s *memTaskStore) Create(_ context.Context, task *model.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return model.ErrDuplicateTask
	}
	cp := *task
	ts := utils.FormatTimestamp(s.now())
	cp.CreatedAt, cp.UpdatedAt = ts, ts
	if cp.Status == "" {
		cp.Status = model.TaskStatusRunning
	}
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memTaskStore) Get(_ context.Context, id string) (*model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memTaskStore) Update(_ context.Context, id string, f model.TaskUpdate) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.Status != model.TaskStatusRunning {
		s.mu.Unlock()
		return nil
	}
	if f.Message != nil {
		t.Message = *f.Message
	}
	if f.Progress != nil {
		t.Progress = *f.Progress
	}
	if f.TotalItems != nil {
		t.TotalItems = *f.TotalItems
	}
	if f.CurrentItem != nil {
		v := *f.CurrentItem
		t.CurrentItem = &v
	}
	if f.CooldownSeconds != nil {
		if *f.CooldownSeconds > 0 {
			v := *f.CooldownSeconds
			next := utils.FormatTimestamp(s.now().Add(time.Duration(v) * time.Second))
			t.CooldownSeconds, t.NextActionAt = &v, &next
		} else {
			t.CooldownSeconds, t.NextActionAt = nil, nil
		}
	}
	if f.Status != nil {
		t.Status = *f.Status
		if t.Status.IsTerminal() {
			t.CurrentItem, t.NextActionAt, t.CooldownSeconds = nil, nil, nil
			if t.Status == model.TaskStatusSuccess && f.Progress == nil {
				t.Progress = 100
			}
		}
	}
	t.UpdatedAt = utils.FormatTimestamp(s.now())
	snapshot := *t
	s.history[id] = append(s.history[id], snapshot)
	hook := s.onUpdate
	s.mu.Unlock()
	if hook != nil {
		hook(id, snapshot)
	}
	return nil
}

func (s *memTaskStore) List(_ context.Context, filter model.TaskFilter) ([]model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.TaskRecord{}
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memTaskStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	return ok, nil
}

func (s *memTaskStore) Cleanup(_ context.Context, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.Status.IsTerminal() {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *memTaskStore) Stats(_ context.Context) (*model.TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.TaskStats{ByStatus: map[string]int{}, ByKind: map[string]int{}}
	for _, t := range s.tasks {
		stats.ByStatus[string(t.Status)]++
		stats.ByKind[string(t.Kind)]++
		stats.Recent++
		if t.Status == model.TaskStatusRunning {
			stats.Running++
		}
	}
	return stats, nil
}

// cancel flips a running task the way the API does.
func (s *memTaskStore) cancel(id string) {
	st := model.TaskStatusCancelled
	msg := "Task cancelled by user"
	_ = s.Update(context.Background(), id, model.TaskUpdate{Status: &st, Message: &msg})
}

func (s *memTaskStore) updates(id string) []model.TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TaskRecord(nil), s.history[id]...)
}
