package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"reelpipe/domain/dto"
	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/proxy"
	"reelpipe/infrastructure/utils"

	log "github.com/sirupsen/logrus"
)

// ProxyAutoDisableThreshold is the consecutive failed checks after which an
// operator-triggered auto-disable turns a proxy off. Health checks alone
// never disable a proxy.
const ProxyAutoDisableThreshold = 3

type IProxyProber interface {
	Probe(ctx context.Context, cfg *model.ProxyConfig) (*proxy.ProbeResult, error)
}

// IEgressGate decides whether an account's proxy may carry traffic now.
type IEgressGate interface {
	EgressUsable(account *model.Account) bool
}

type IProxyUsecase interface {
	IEgressGate
	Check(ctx context.Context, account *model.Account) dto.ProxyCheckResult
	CheckByUsername(ctx context.Context, username string) (*dto.ProxyCheckResult, error)
	CheckAll(ctx context.Context) (*dto.ProxyCheckAllResponse, error)
	Statistics(ctx context.Context) (*dto.ProxyStatistics, error)
	AutoDisable(ctx context.Context) (*dto.AutoDisableResponse, error)
}

type proxyUsecase struct {
	accounts repository.IAccount
	prober   IProxyProber
	delay    time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) bool
}

// NewProxyUsecase builds the health monitor. delay separates consecutive
// network checks in CheckAll.
func NewProxyUsecase(accounts repository.IAccount, prober IProxyProber, delay time.Duration) IProxyUsecase {
	return &proxyUsecase{
		accounts: accounts,
		prober:   prober,
		delay:    delay,
		now:      utils.GetCurrentTime,
		sleep:    utils.SleepWithContext,
	}
}

func (u *proxyUsecase) EgressUsable(account *model.Account) bool {
	return account.Proxy().Usable()
}

// Check never returns an error: every outcome is a structured result.
func (u *proxyUsecase) Check(ctx context.Context, account *model.Account) dto.ProxyCheckResult {
	p := account.Proxy()
	if p == nil {
		return dto.ProxyCheckResult{Username: account.Username, Status: dto.ProxyCheckFailed, Message: model.ErrNoProxy.Error()}
	}
	result := dto.ProxyCheckResult{
		Username:  account.Username,
		ProxyHost: p.Host,
		ProxyPort: p.Port,
		ProxyType: p.Type,
	}
	if !p.Active {
		result.Status = dto.ProxyCheckDisabled
		result.Message = "Proxy is disabled"
		return result
	}

	lg := logger.GetLogger().WithFields(log.Fields{"account": account.Username, "proxy": p.Redacted()})
	checkedAt := u.now()
	result.CheckedAt = utils.FormatTimestamp(checkedAt)

	probe, err := u.prober.Probe(ctx, p)
	status := model.ProxyStatusWorking
	if err != nil {
		status = model.ProxyStatusFailed
		result.Status = dto.ProxyCheckFailed
		result.Message = err.Error()
		lg.WithError(err).Warn("Proxy check failed")
	} else {
		result.Status = dto.ProxyCheckWorking
		result.LatencyMs = probe.Latency.Milliseconds()
		result.ExternalIP = probe.ExternalIP
		result.Endpoint = probe.Endpoint
		result.Message = "Proxy is working"
		lg.WithField("latency_ms", result.LatencyMs).Info("Proxy check succeeded")
	}

	if err := u.accounts.UpdateProxyCheck(ctx, account.Username, status, checkedAt); err != nil {
		lg.WithError(err).Error("Failed to persist proxy check")
	}
	return result
}

func (u *proxyUsecase) CheckByUsername(ctx context.Context, username string) (*dto.ProxyCheckResult, error) {
	account, err := u.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.ErrAccountNotFound
	}
	if account.Proxy() == nil {
		return nil, model.ErrNoProxy
	}
	result := u.Check(ctx, account)
	return &result, nil
}

// CheckAll probes every active proxy one after another. Inactive proxies are
// reported as disabled, accounts without a proxy are left out.
func (u *proxyUsecase) CheckAll(ctx context.Context) (*dto.ProxyCheckAllResponse, error) {
	accounts, err := u.accounts.ListWithProxy(ctx)
	if err != nil {
		return nil, fmt.Errorf("list proxied accounts: %w", err)
	}

	resp := &dto.ProxyCheckAllResponse{Results: make([]dto.ProxyCheckResult, 0, len(accounts))}
	probed := 0
	for i := range accounts {
		account := &accounts[i]
		p := account.Proxy()
		if p == nil {
			continue
		}
		if p.Active {
			if probed > 0 && !u.sleep(ctx, u.delay) {
				break
			}
			probed++
		}
		result := u.Check(ctx, account)
		resp.Results = append(resp.Results, result)
		switch result.Status {
		case dto.ProxyCheckWorking:
			resp.Working++
		case dto.ProxyCheckFailed:
			resp.Failed++
		case dto.ProxyCheckDisabled:
			resp.Disabled++
		}
	}
	resp.Total = len(resp.Results)
	logger.GetLogger().WithFields(log.Fields{"total": resp.Total, "working": resp.Working, "failed": resp.Failed}).Info("Proxy check-all finished")
	return resp, nil
}

func (u *proxyUsecase) Statistics(ctx context.Context) (*dto.ProxyStatistics, error) {
	accounts, err := u.accounts.ListWithProxy(ctx)
	if err != nil {
		return nil, err
	}
	stats := &dto.ProxyStatistics{ProxyTypes: map[string]int{}}
	for i := range accounts {
		p := accounts[i].Proxy()
		if p == nil {
			continue
		}
		stats.TotalAccountsWithProxy++
		stats.ProxyTypes[p.Type]++
		if p.Active {
			stats.ActiveProxies++
			if p.Status == model.ProxyStatusWorking {
				stats.WorkingProxies++
			}
		}
		switch p.Status {
		case model.ProxyStatusFailed:
			stats.FailedProxies++
		case model.ProxyStatusUnchecked:
			stats.UncheckedProxies++
		}
	}
	if stats.ActiveProxies > 0 {
		pct := float64(stats.WorkingProxies) / float64(stats.ActiveProxies) * 100
		stats.HealthPercentage = math.Round(pct*10) / 10
	}
	return stats, nil
}

func (u *proxyUsecase) AutoDisable(ctx context.Context) (*dto.AutoDisableResponse, error) {
	disabled, err := u.accounts.DisableFailingProxies(ctx, ProxyAutoDisableThreshold)
	if err != nil {
		return nil, err
	}
	if disabled == nil {
		disabled = []string{}
	}
	if len(disabled) > 0 {
		logger.GetLogger().WithField("accounts", disabled).Warn("Proxies auto-disabled")
	}
	return &dto.AutoDisableResponse{Threshold: ProxyAutoDisableThreshold, Disabled: disabled}, nil
}
