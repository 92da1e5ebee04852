package repository

import (
	"context"
	"time"

	"reelpipe/domain/model"
)

type IAccount interface {
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	ListWithProxy(ctx context.Context) ([]model.Account, error)
	CountActive(ctx context.Context) (int64, error)
	UpdateProxyCheck(ctx context.Context, username string, status model.ProxyStatus, checkedAt time.Time) error
	DisableFailingProxies(ctx context.Context, threshold int) ([]string, error)
	RecordLogin(ctx context.Context, username string, at time.Time) error
	IncrementPosts(ctx context.Context, username string) error
	SetStatus(ctx context.Context, username string, status model.AccountStatus) error
	SetCredential(ctx context.Context, username, credential string) error
}
