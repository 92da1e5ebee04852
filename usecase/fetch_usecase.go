package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/utils"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type FetchConfig struct {
	RequestsPerSecond float64
	RequestDelayMin   time.Duration
	RequestDelayMax   time.Duration
	AccountDelayMin   time.Duration
	AccountDelayMax   time.Duration
	DefaultLimit      int
}

type IFetchUsecase interface {
	// FetchNew returns links not previously known for theme, in discovery
	// order, and records them as pending videos.
	FetchNew(ctx context.Context, theme string, sourceAccounts []string, perAccountLimit int) ([]string, error)
}

type fetchUsecase struct {
	lister  repository.IPlatformLister
	videos  repository.IVideo
	cfg     FetchConfig
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) bool
}

func NewFetchUsecase(lister repository.IPlatformLister, videos repository.IVideo, cfg FetchConfig) IFetchUsecase {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	return &fetchUsecase{
		lister:  lister,
		videos:  videos,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   utils.SleepWithContext,
	}
}

func (u *fetchUsecase) FetchNew(ctx context.Context, theme string, sourceAccounts []string, perAccountLimit int) ([]string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, fmt.Errorf("%w: theme is required", model.ErrInvalidRequest)
	}
	if perAccountLimit <= 0 {
		perAccountLimit = u.cfg.DefaultLimit
	}

	seen := make(map[string]struct{})
	fresh := make([]string, 0)
	visited := 0
	for _, source := range sourceAccounts {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		lg := logger.GetLogger().WithFields(log.Fields{"theme": theme, "source": source})

		if visited > 0 && !u.sleep(ctx, utils.RandomDuration(u.cfg.AccountDelayMin, u.cfg.AccountDelayMax)) {
			return fresh, ctx.Err()
		}
		visited++
		if err := u.limiter.Wait(ctx); err != nil {
			return fresh, err
		}
		if !u.sleep(ctx, utils.RandomDuration(u.cfg.RequestDelayMin, u.cfg.RequestDelayMax)) {
			return fresh, ctx.Err()
		}

		candidates, err := u.lister.ListRecentVideos(ctx, source, perAccountLimit)
		if err != nil {
			lg.WithError(err).Warn("Failed to list source account, skipping")
			continue
		}

		batch := make([]string, 0, len(candidates))
		for _, link := range candidates {
			if _, dup := seen[link]; dup || link == "" {
				continue
			}
			seen[link] = struct{}{}
			batch = append(batch, link)
		}
		if len(batch) == 0 {
			continue
		}

		added, err := u.videos.InsertNew(ctx, theme, batch)
		if err != nil {
			return fresh, fmt.Errorf("record links from %s: %w", source, err)
		}
		lg.WithFields(log.Fields{"candidates": len(batch), "new": len(added)}).Info("Source account fetched")
		fresh = append(fresh, added...)
	}
	return fresh, nil
}
