package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"reelpipe/domain/repository"
	"reelpipe/infrastructure/cache"
	"reelpipe/infrastructure/clients/downloader"
	"reelpipe/infrastructure/clients/telegram"
	"reelpipe/infrastructure/clients/tiktok"
	youtubeclient "reelpipe/infrastructure/clients/youtube"
	"reelpipe/infrastructure/configuration"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/persistence"
	"reelpipe/infrastructure/proxy"
	"reelpipe/infrastructure/queue"
	"reelpipe/infrastructure/realtime"
	"reelpipe/infrastructure/scheduler"
	httpHandler "reelpipe/interfaces/http"
	"reelpipe/server"
	"reelpipe/usecase"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// app holds the process-wide clients and usecases built from one Config.
type app struct {
	cfg *configuration.Config

	db    *sql.DB
	redis *redis.Client
	mongo *mongo.Client

	transport queue.Transport
	sessions  repository.ISessionStore
	tasks     *persistence.TaskRepository
	notifier  repository.INotifier

	taskUsecase  usecase.ITaskUsecase
	proxyUsecase usecase.IProxyUsecase
	linkUsecase  usecase.IAccountLinkUsecase
	jobRunner    *usecase.JobRunner
}

func newApp(ctx context.Context, cfg *configuration.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.db, err = persistence.NewPostgresDB(cfg.Database); err != nil {
		return nil, err
	}
	if err = persistence.EnsureSchema(a.db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	gormDB, err := persistence.NewGormDB(a.db)
	if err != nil {
		return nil, err
	}
	logger.GetLogger().Info("Database connected")

	if a.redis, err = cache.NewCache(ctx, cfg.Redis); err != nil {
		return nil, err
	}

	switch cfg.Sessions.Backend {
	case "mongo":
		if a.mongo, err = persistence.NewMongoDb(ctx, cfg.Mongo.URI); err != nil {
			return nil, err
		}
		a.sessions = persistence.NewMongoSessionStore(a.mongo, cfg.Mongo.Database)
	default:
		a.sessions = cache.NewSessionStore(a.redis, cfg.Sessions.TTL())
	}

	if a.transport, err = newTransport(ctx, cfg.Queue, a.redis); err != nil {
		return nil, err
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"transport": cfg.Queue.Transport,
		"sessions":  cfg.Sessions.Backend,
	}).Info("Backends initialized")

	a.tasks = persistence.NewTaskRepository(a.db)
	publications := persistence.NewPublicationRepository(a.db)
	accounts := persistence.NewAccountRepository(gormDB)
	videos := persistence.NewVideoRepository(gormDB)
	a.notifier = telegram.NewNotifier(cfg.Telegram)

	lister, err := tiktok.NewClient(cfg.TikTok)
	if err != nil {
		return nil, err
	}
	yt := youtubeclient.NewYouTubeClient(youtubeclient.Config{
		ClientID:      cfg.YouTube.ClientID,
		ClientSecret:  cfg.YouTube.ClientSecret,
		RedirectURL:   cfg.YouTube.RedirectURL,
		PrivacyStatus: cfg.YouTube.PrivacyStatus,
		CategoryID:    cfg.YouTube.CategoryID,
		TokenURL:      cfg.YouTube.TokenURL,
	})

	a.proxyUsecase = usecase.NewProxyUsecase(accounts, proxy.NewProber(cfg.Proxy.Endpoints, cfg.Proxy.CheckTimeout()), cfg.Proxy.CheckDelay())
	a.taskUsecase = usecase.NewTaskUsecase(a.tasks, accounts, videos, publications, a.transport, usecase.TaskConfig{
		RetentionDays:    cfg.Tasks.RetentionDays,
		DefaultListLimit: cfg.Tasks.DefaultListLimit,
	})
	a.linkUsecase = usecase.NewAccountLinkUsecase(accounts, a.sessions, yt)

	reqMin, reqMax := cfg.Fetch.RequestDelayRange()
	accMin, accMax := cfg.Fetch.AccountDelayRange()
	fetcher := usecase.NewFetchUsecase(lister, videos, usecase.FetchConfig{
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		RequestDelayMin:   reqMin,
		RequestDelayMax:   reqMax,
		AccountDelayMin:   accMin,
		AccountDelayMax:   accMax,
		DefaultLimit:      cfg.Fetch.DefaultLimit,
	})

	coolMin, coolMax := cfg.Pipeline.CooldownRange()
	loginMin, loginMax := cfg.Pipeline.PreLoginRange()
	pubMin, pubMax := cfg.Pipeline.PrePublishRange()
	pipeline := usecase.NewUploadPipeline(usecase.PipelineDeps{
		Tasks:        a.tasks,
		Accounts:     accounts,
		Videos:       videos,
		Publications: publications,
		Sessions:     a.sessions,
		Downloader:   downloader.New(cfg.Downloader),
		Publisher:    yt,
		Notifier:     a.notifier,
		Egress:       a.proxyUsecase,
		Captions:     usecase.LoadCaptionPool(cfg.Pipeline.CaptionsFile, cfg.Pipeline.Hashtags),
	}, usecase.PipelineConfig{
		VideosDir:     cfg.Pipeline.VideosDir,
		CooldownMin:   coolMin,
		CooldownMax:   coolMax,
		Tick:          cfg.Pipeline.Tick(),
		PreLoginMin:   loginMin,
		PreLoginMax:   loginMax,
		PrePublishMin: pubMin,
		PrePublishMax: pubMax,
	})
	a.jobRunner = usecase.NewJobRunner(a.tasks, fetcher, pipeline, a.notifier)
	return a, nil
}

func newTransport(ctx context.Context, cfg configuration.Queue, client *redis.Client) (queue.Transport, error) {
	switch cfg.Transport {
	case "pubsub":
		t, err := queue.NewPubSubTransport(ctx, cfg.PubSubProjectID, cfg.Name, cfg.PubSubSubscription)
		if err != nil {
			return nil, fmt.Errorf("pubsub transport: %w", err)
		}
		return t, nil
	case "servicebus":
		t, err := queue.NewServiceBusTransport(cfg.ServiceBusNamespace, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("servicebus transport: %w", err)
		}
		return t, nil
	default:
		return queue.NewRedisTransport(client, cfg.Name), nil
	}
}

func (a *app) router() http.Handler {
	checks := map[string]httpHandler.Pinger{
		"postgres": a.db.PingContext,
		"redis":    func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
	}
	if a.mongo != nil {
		checks["mongo"] = func(ctx context.Context) error { return a.mongo.Ping(ctx, nil) }
	}
	return server.InitiateRouter(server.Handlers{
		Task:        httpHandler.NewTaskHandler(a.taskUsecase),
		Proxy:       httpHandler.NewProxyHandler(a.proxyUsecase),
		YouTubeAuth: httpHandler.NewYouTubeAuthHandler(a.linkUsecase),
		Health:      httpHandler.NewHealthHandler(checks),
		Stream:      realtime.NewTaskStream(a.taskUsecase.GetTask, realtime.DefaultPollInterval),
	}, a.cfg.App.SecretKey, a.cfg.App.AllowedOrigins)
}

func (a *app) dispatcher() *queue.Dispatcher {
	base, maxBackoff := a.cfg.Queue.Backoff()
	return queue.NewDispatcher(a.transport, cache.NewAccountLocker(a.redis, a.cfg.Lock.TTL()), a.jobRunner, queue.DispatcherConfig{
		Workers:     a.cfg.Queue.Workers,
		MaxAttempts: a.cfg.Queue.MaxAttempts,
		BaseBackoff: base,
		MaxBackoff:  maxBackoff,
		BusyRetry:   a.cfg.Queue.BusyRetry(),
	})
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(30 * time.Minute)
	if err := s.Add("proxy-check-all", a.cfg.Proxy.CheckCron, func(ctx context.Context) error {
		res, err := a.proxyUsecase.CheckAll(ctx)
		if err != nil {
			return err
		}
		logger.GetLogger().WithFields(map[string]interface{}{"total": res.Total, "working": res.Working, "failed": res.Failed}).Info("Proxy check finished")
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.Add("task-cleanup", a.cfg.Tasks.CleanupCron, func(ctx context.Context) error {
		_, err := a.taskUsecase.Cleanup(ctx, a.cfg.Tasks.RetentionDays)
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) close() {
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			logger.GetLogger().WithError(err).Warn("Queue transport close failed")
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongo.Disconnect(ctx)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
