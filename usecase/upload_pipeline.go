package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/utils"

	log "github.com/sirupsen/logrus"
)

type PipelineConfig struct {
	VideosDir     string
	CooldownMin   time.Duration
	CooldownMax   time.Duration
	Tick          time.Duration
	PreLoginMin   time.Duration
	PreLoginMax   time.Duration
	PrePublishMin time.Duration
	PrePublishMax time.Duration
}

// ICaptionSource yields the caption for the next publish.
type ICaptionSource interface {
	Next() string
}

type PipelineDeps struct {
	Tasks        repository.ITask
	Accounts     repository.IAccount
	Videos       repository.IVideo
	Publications repository.IPublication
	Sessions     repository.ISessionStore
	Downloader   repository.IDownloader
	Publisher    repository.IPublisher
	Notifier     repository.INotifier
	Egress       IEgressGate
	Captions     ICaptionSource
}

type PipelineOption func(*UploadPipeline)

// WithClock replaces the wall clock and the context-aware sleep.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) bool) PipelineOption {
	return func(p *UploadPipeline) {
		p.now = now
		p.sleep = sleep
	}
}

// WithRandom replaces the uniform duration picker used for delays and
// cooldowns.
func WithRandom(random func(lo, hi time.Duration) time.Duration) PipelineOption {
	return func(p *UploadPipeline) { p.random = random }
}

// UploadPipeline publishes an ordered list of links for one account, one at
// a time. The task record is its only channel to the outside: it is read for
// cancellation before every stage and on every cooldown tick.
type UploadPipeline struct {
	PipelineDeps
	cfg    PipelineConfig
	now    func() time.Time
	sleep  func(context.Context, time.Duration) bool
	random func(lo, hi time.Duration) time.Duration
}

func NewUploadPipeline(deps PipelineDeps, cfg PipelineConfig, opts ...PipelineOption) *UploadPipeline {
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Second
	}
	if cfg.VideosDir == "" {
		cfg.VideosDir = "videos"
	}
	p := &UploadPipeline{
		PipelineDeps: deps,
		cfg:          cfg,
		now:          utils.GetCurrentTime,
		sleep:        utils.SleepWithContext,
		random:       utils.RandomDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type videoOutcome int

// errTaskStopped reports that the task row went terminal or disappeared
// while a stage was waiting.
var errTaskStopped = errors.New("task stopped")

const (
	outcomePublished videoOutcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeStopped
)

type uploadRun struct {
	taskID    string
	account   *model.Account
	links     []string
	total     int
	succeeded int
	failed    int
	skipped   int
	lg        *log.Entry
}

func (r *uploadRun) done() int { return r.succeeded + r.failed + r.skipped }

func (r *uploadRun) summary() string {
	return fmt.Sprintf("%d successful, %d failed, %d skipped out of %d", r.succeeded, r.failed, r.skipped, r.total)
}

// Run processes links for username under taskID. A returned error means the
// run could not make progress (store unavailable, worker shutting down) and
// the job should be redelivered; per-video failures never surface here.
func (p *UploadPipeline) Run(ctx context.Context, taskID, username string, links []string) error {
	lg := logger.GetLogger().WithFields(log.Fields{"task_id": taskID, "account": username})
	if len(links) == 0 {
		return model.ErrEmptyVideoList
	}

	task, err := p.ensureTask(ctx, taskID, username, len(links))
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		lg.WithField("status", task.Status).Info("Task already finished, nothing to do")
		return nil
	}

	account, err := p.Accounts.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		msg := fmt.Sprintf("Account %s not found", username)
		p.finish(ctx, lg, taskID, model.TaskStatusFailed, msg)
		p.Notifier.Notify(ctx, fmt.Sprintf("Upload failed: account @%s not found", username))
		return nil
	}

	if err := os.MkdirAll(p.cfg.VideosDir, 0o755); err != nil {
		return fmt.Errorf("create videos dir: %w", err)
	}

	run := &uploadRun{taskID: taskID, account: account, links: links, total: len(links), lg: lg}
	lg.WithField("videos", run.total).Info("Upload run started")

	for i, link := range links {
		if p.stopped(ctx, run) {
			return p.stop(ctx, run)
		}
		outcome := p.processVideo(ctx, run, i, link)
		if ctx.Err() != nil {
			lg.Info("Worker shutting down, leaving task running for redelivery")
			return ctx.Err()
		}
		switch outcome {
		case outcomeStopped:
			return p.stop(ctx, run)
		case outcomePublished:
			run.succeeded++
		case outcomeSkipped:
			run.skipped++
		case outcomeFailed:
			run.failed++
		}
		p.update(ctx, run, model.TaskUpdate{Progress: intPtr(progress(run.done(), run.total))})

		if outcome == outcomePublished && i < len(links)-1 {
			stop, err := p.cooldown(ctx, run)
			if err != nil {
				return err
			}
			if stop {
				return p.stop(ctx, run)
			}
		}
	}

	if p.stopped(ctx, run) {
		return p.stop(ctx, run)
	}
	status := model.TaskStatusFailed
	if run.succeeded > 0 {
		status = model.TaskStatusSuccess
	}
	p.finish(ctx, lg, taskID, status, "Upload finished: "+run.summary())
	p.Notifier.Notify(ctx, fmt.Sprintf("Upload finished for @%s: %s", username, run.summary()))
	lg.WithFields(log.Fields{"status": status, "succeeded": run.succeeded, "failed": run.failed, "skipped": run.skipped}).Info("Upload run finished")
	return nil
}

// processVideo walks one link through check, download and publish. Panics
// are contained to the video.
func (p *UploadPipeline) processVideo(ctx context.Context, run *uploadRun, i int, link string) (outcome videoOutcome) {
	n := i + 1
	lg := run.lg.WithFields(log.Fields{"link": link, "item": n})
	defer func() {
		if r := recover(); r != nil {
			lg.WithField("panic", r).Error("Video processing panicked")
			outcome = outcomeFailed
		}
	}()

	p.update(ctx, run, model.TaskUpdate{
		Message:     strPtr(fmt.Sprintf("Processing video %d of %d", n, run.total)),
		CurrentItem: strPtr(fmt.Sprintf("Video %d/%d: checking %s", n, run.total, link)),
	})

	published, err := p.Publications.Exists(ctx, run.account.Username, link)
	if err != nil {
		lg.WithError(err).Error("Publication lookup failed")
		return p.fail(ctx, run, n, link, "publication lookup failed")
	}
	if published {
		lg.Info("Already published, skipping")
		p.update(ctx, run, model.TaskUpdate{CurrentItem: strPtr(fmt.Sprintf("Video %d/%d: already published, skipped", n, run.total))})
		return outcomeSkipped
	}

	mediaURL, err := p.Downloader.ResolveDownloadURL(ctx, link)
	if err != nil || mediaURL == "" {
		reason := "no download link found"
		if err != nil {
			reason = err.Error()
		}
		lg.WithField("reason", reason).Warn("Could not resolve download link")
		return p.fail(ctx, run, n, link, "could not resolve download link: "+reason)
	}

	if p.stopped(ctx, run) {
		return outcomeStopped
	}

	path := p.localPath(run.account.Username, link)
	p.update(ctx, run, model.TaskUpdate{CurrentItem: strPtr(fmt.Sprintf("Video %d/%d: downloading", n, run.total))})
	if err := p.download(ctx, mediaURL, path); err != nil {
		lg.WithError(err).Warn("Download failed")
		return p.fail(ctx, run, n, link, "download failed: "+err.Error())
	}
	defer removeFile(lg, path)
	p.markVideo(ctx, lg, run, link, model.VideoStatusDownloaded)

	if p.stopped(ctx, run) {
		return outcomeStopped
	}

	p.update(ctx, run, model.TaskUpdate{CurrentItem: strPtr(fmt.Sprintf("Video %d/%d: publishing", n, run.total))})
	ref, err := p.publish(ctx, lg, run, path)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errTaskStopped) {
			return outcomeStopped
		}
		lg.WithError(err).Warn("Publish failed")
		return p.fail(ctx, run, n, link, "publish failed: "+err.Error())
	}

	recordErr := p.recordPublication(ctx, lg, run.account.Username, link)
	if err := p.Accounts.IncrementPosts(ctx, run.account.Username); err != nil {
		lg.WithError(err).Warn("Failed to increment post counter")
	}
	p.markVideo(ctx, lg, run, link, model.VideoStatusUploaded)
	lg.WithField("media_id", ref.ID).Info("Video published")
	if recordErr != nil {
		p.update(ctx, run, model.TaskUpdate{CurrentItem: strPtr(fmt.Sprintf("Video %d/%d published, publication not recorded: %v", n, run.total, recordErr))})
	}

	remaining := run.total - n
	msg := fmt.Sprintf("Video %d/%d published for @%s (%d%%)\n%s", n, run.total, run.account.Username, progress(run.done()+1, run.total), ref.URL)
	if remaining > 0 {
		msg += fmt.Sprintf("\n%d remaining, next after cooldown", remaining)
	}
	if recordErr != nil {
		msg += fmt.Sprintf("\nWarning: publication not recorded (%v), a replay may publish this link again", recordErr)
	}
	p.Notifier.Notify(ctx, msg)
	return outcomePublished
}

// recordPublication writes the dedup record, retrying once.
func (p *UploadPipeline) recordPublication(ctx context.Context, lg *log.Entry, username, link string) error {
	err := p.Publications.Record(ctx, username, link)
	if err == nil {
		return nil
	}
	lg.WithError(err).Warn("Failed to record publication, retrying")
	if err = p.Publications.Record(ctx, username, link); err != nil {
		lg.WithError(err).Error("Failed to record publication")
	}
	return err
}

// publish authenticates and uploads. A rejected session is discarded and
// replaced by one fresh login before a single retry. The task row is read
// again after every delay so a cancel never reaches the publisher.
func (p *UploadPipeline) publish(ctx context.Context, lg *log.Entry, run *uploadRun, path string) (*model.MediaRef, error) {
	account := run.account
	var via *model.ProxyConfig
	if p.Egress != nil && p.Egress.EgressUsable(account) {
		via = account.Proxy()
	} else if account.Proxy() != nil {
		lg.Info("Proxy not usable, publishing over the direct path")
	}

	session, err := p.restore(ctx, lg, account, via)
	if err != nil {
		return nil, err
	}
	if session == nil {
		if session, err = p.login(ctx, lg, run, via, 2); err != nil {
			return nil, err
		}
	}

	caption := p.Captions.Next()
	if !p.sleep(ctx, p.random(p.cfg.PrePublishMin, p.cfg.PrePublishMax)) {
		return nil, ctx.Err()
	}
	if p.stopped(ctx, run) {
		return nil, errTaskStopped
	}
	ref, err := p.Publisher.Publish(ctx, session, path, caption)
	if err == nil || !isCredentialError(err) {
		return ref, err
	}

	lg.WithError(err).Warn("Session rejected, logging in again")
	p.dropSession(ctx, lg, account.Username)
	if session, err = p.login(ctx, lg, run, via, 1); err != nil {
		return nil, err
	}
	if p.stopped(ctx, run) {
		return nil, errTaskStopped
	}
	return p.Publisher.Publish(ctx, session, path, caption)
}

// restore returns nil without error when no usable cached session exists.
func (p *UploadPipeline) restore(ctx context.Context, lg *log.Entry, account *model.Account, via *model.ProxyConfig) (*model.Session, error) {
	blob, err := p.Sessions.Load(ctx, account.Username)
	if err != nil {
		lg.WithError(err).Warn("Session store unavailable")
		return nil, nil
	}
	if blob == nil {
		return nil, nil
	}
	session, err := p.Publisher.RestoreSession(ctx, account.Username, blob, via)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lg.WithError(err).Info("Cached session unusable, discarding")
		p.dropSession(ctx, lg, account.Username)
		return nil, nil
	}
	return session, nil
}

// login tries up to attempts fresh logins. When every attempt is rejected
// the account is flagged for operator attention.
func (p *UploadPipeline) login(ctx context.Context, lg *log.Entry, run *uploadRun, via *model.ProxyConfig, attempts int) (*model.Session, error) {
	account := run.account
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !p.sleep(ctx, p.random(p.cfg.PreLoginMin, p.cfg.PreLoginMax)) {
			return nil, ctx.Err()
		}
		if p.stopped(ctx, run) {
			return nil, errTaskStopped
		}
		var session *model.Session
		session, err = p.Publisher.Login(ctx, account, via)
		if err == nil {
			if serr := p.Sessions.Save(ctx, account.Username, session.Blob); serr != nil {
				lg.WithError(serr).Warn("Failed to cache session")
			}
			if rerr := p.Accounts.RecordLogin(ctx, account.Username, p.now()); rerr != nil {
				lg.WithError(rerr).Warn("Failed to record login")
			}
			return session, nil
		}
		if !isCredentialError(err) {
			return nil, err
		}
		lg.WithError(err).WithField("attempt", attempt).Warn("Login rejected")
		p.dropSession(ctx, lg, account.Username)
	}
	if serr := p.Accounts.SetStatus(ctx, account.Username, model.AccountStatusError); serr != nil {
		lg.WithError(serr).Warn("Failed to flag account")
	}
	return nil, err
}

func (p *UploadPipeline) dropSession(ctx context.Context, lg *log.Entry, username string) {
	if err := p.Sessions.Delete(ctx, username); err != nil {
		lg.WithError(err).Warn("Failed to delete cached session")
	}
}

// cooldown waits a random pacing window in ticks, publishing the remaining
// seconds and polling for cancellation on each tick.
func (p *UploadPipeline) cooldown(ctx context.Context, run *uploadRun) (bool, error) {
	total := p.random(p.cfg.CooldownMin, p.cfg.CooldownMax)
	deadline := p.now().Add(total)
	run.lg.WithField("cooldown", total.String()).Info("Cooling down")

	for {
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			break
		}
		secs := int(math.Ceil(remaining.Seconds()))
		p.update(ctx, run, model.TaskUpdate{
			Message:         strPtr(fmt.Sprintf("Cooldown: next video in %ds", secs)),
			CooldownSeconds: intPtr(secs),
		})
		if p.stopped(ctx, run) {
			return true, nil
		}
		if !p.sleep(ctx, min(p.cfg.Tick, remaining)) {
			return false, ctx.Err()
		}
	}
	p.update(ctx, run, model.TaskUpdate{CooldownSeconds: intPtr(0)})
	return false, nil
}

// stopped reports whether the task was cancelled or removed.
func (p *UploadPipeline) stopped(ctx context.Context, run *uploadRun) bool {
	task, err := p.Tasks.Get(ctx, run.taskID)
	if err != nil {
		run.lg.WithError(err).Warn("Cancellation check failed")
		return false
	}
	return task == nil || task.Status.IsTerminal()
}

func (p *UploadPipeline) stop(ctx context.Context, run *uploadRun) error {
	run.lg.WithField("completed", run.done()).Info("Upload run cancelled")
	p.Notifier.Notify(ctx, fmt.Sprintf("Upload cancelled for @%s after %d of %d videos (%s)", run.account.Username, run.done(), run.total, run.summary()))
	return nil
}

func (p *UploadPipeline) fail(ctx context.Context, run *uploadRun, n int, link, reason string) videoOutcome {
	if ctx.Err() != nil {
		return outcomeFailed
	}
	p.markVideo(ctx, run.lg, run, link, model.VideoStatusFailed)
	p.update(ctx, run, model.TaskUpdate{CurrentItem: strPtr(fmt.Sprintf("Video %d/%d failed: %s", n, run.total, reason))})
	p.Notifier.Notify(ctx, fmt.Sprintf("Video %d/%d failed for @%s: %s\n%s", n, run.total, run.account.Username, reason, link))
	return outcomeFailed
}

func (p *UploadPipeline) download(ctx context.Context, mediaURL, path string) error {
	if err := p.Downloader.FetchToFile(ctx, mediaURL, path); err != nil {
		_ = os.Remove(path)
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return errors.New("downloaded file is empty")
	}
	return nil
}

func (p *UploadPipeline) markVideo(ctx context.Context, lg *log.Entry, run *uploadRun, link string, status model.VideoStatus) {
	if err := p.Videos.UpdateStatus(ctx, link, run.account.Theme, status); err != nil {
		lg.WithError(err).WithField("status", status).Warn("Failed to update video status")
	}
}

func (p *UploadPipeline) update(ctx context.Context, run *uploadRun, fields model.TaskUpdate) {
	if err := p.Tasks.Update(ctx, run.taskID, fields); err != nil {
		run.lg.WithError(err).Warn("Failed to update task record")
	}
}

func (p *UploadPipeline) finish(ctx context.Context, lg *log.Entry, taskID string, status model.TaskStatus, message string) {
	if err := p.Tasks.Update(ctx, taskID, model.TaskUpdate{Status: &status, Message: &message}); err != nil {
		lg.WithError(err).Error("Failed to finalize task")
	}
}

func (p *UploadPipeline) ensureTask(ctx context.Context, taskID, username string, total int) (*model.TaskRecord, error) {
	task, err := p.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task != nil {
		return task, nil
	}
	task = &model.TaskRecord{
		ID:              taskID,
		Kind:            model.TaskKindUpload,
		Status:          model.TaskStatusRunning,
		AccountUsername: &username,
		Message:         "Upload started",
		TotalItems:      total,
	}
	if err := p.Tasks.Create(ctx, task); err != nil && !errors.Is(err, model.ErrDuplicateTask) {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// localPath is stable per (account, link) so a replay reuses the same name.
func (p *UploadPipeline) localPath(username, link string) string {
	sum := md5.Sum([]byte(username + "_" + link))
	return filepath.Join(p.cfg.VideosDir, hex.EncodeToString(sum[:])+".mp4")
}

func removeFile(lg *log.Entry, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		lg.WithError(err).Warn("Failed to remove local file")
	}
}

// progress is done/total as a percentage, held below 100 until the task
// itself succeeds.
func progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return min(done*100/total, 99)
}

func isCredentialError(err error) bool {
	return errors.Is(err, model.ErrLoginFailed) || errors.Is(err, model.ErrSessionInvalid)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
