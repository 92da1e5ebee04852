package usecase

import (
	"context"
	"fmt"
	"strings"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/logger"
)

type IAccountLinkUsecase interface {
	AuthURL(ctx context.Context, username string) (string, error)
	Callback(ctx context.Context, state, code string) (string, error)
}

type accountLinkUsecase struct {
	accounts repository.IAccount
	sessions repository.ISessionStore
	linker   repository.IAccountLinker
}

func NewAccountLinkUsecase(accounts repository.IAccount, sessions repository.ISessionStore, linker repository.IAccountLinker) IAccountLinkUsecase {
	return &accountLinkUsecase{accounts: accounts, sessions: sessions, linker: linker}
}

func (u *accountLinkUsecase) AuthURL(ctx context.Context, username string) (string, error) {
	account, err := u.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", model.ErrAccountNotFound
	}
	return u.linker.AuthCodeURL(username), nil
}

// Callback stores the granted credential on the account named by state and
// seeds its session. It returns that username.
func (u *accountLinkUsecase) Callback(ctx context.Context, state, code string) (string, error) {
	username := strings.TrimSpace(state)
	if username == "" || strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: state and code are required", model.ErrInvalidRequest)
	}
	credential, blob, err := u.linker.ExchangeCode(ctx, code)
	if err != nil {
		return "", err
	}
	if err := u.accounts.SetCredential(ctx, username, credential); err != nil {
		return "", err
	}
	if err := u.sessions.Save(ctx, username, blob); err != nil {
		logger.GetLogger().WithError(err).WithField("account", username).Warn("Linked account session not cached")
	}
	logger.GetLogger().WithField("account", username).Info("Account linked")
	return username, nil
}
