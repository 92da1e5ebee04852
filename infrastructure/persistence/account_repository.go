package persistence

import (
	"context"
	"errors"
	"time"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"

	"gorm.io/gorm"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ repository.IAccount = (*AccountRepository)(nil)

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	var acc model.Account
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// ListWithProxy returns accounts with a proxy host, active or not.
func (r *AccountRepository) ListWithProxy(ctx context.Context) ([]model.Account, error) {
	var list []model.Account
	err := r.db.WithContext(ctx).
		Where("proxy_host IS NOT NULL AND proxy_host <> ''").
		Order("username").
		Find(&list).Error
	return list, err
}

func (r *AccountRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("is_active = ? AND status = ?", true, model.AccountStatusActive).
		Count(&n).Error
	return n, err
}

// UpdateProxyCheck stores a health check outcome. A working result resets the
// failure streak, a failed one extends it.
func (r *AccountRepository) UpdateProxyCheck(ctx context.Context, username string, status model.ProxyStatus, checkedAt time.Time) error {
	fields := map[string]interface{}{
		"proxy_status":     string(status),
		"proxy_last_check": checkedAt,
	}
	if status == model.ProxyStatusWorking {
		fields["proxy_failure_count"] = 0
	} else {
		fields["proxy_failure_count"] = gorm.Expr("proxy_failure_count + 1")
	}
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", username).
		Updates(fields).Error
}

// DisableFailingProxies turns off active proxies whose failure streak reached
// threshold and returns the affected usernames.
func (r *AccountRepository) DisableFailingProxies(ctx context.Context, threshold int) ([]string, error) {
	var usernames []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Account{}).
			Where("proxy_active = ? AND proxy_status = ? AND proxy_failure_count >= ?", true, string(model.ProxyStatusFailed), threshold).
			Order("username").
			Pluck("username", &usernames).Error; err != nil {
			return err
		}
		if len(usernames) == 0 {
			return nil
		}
		return tx.Model(&model.Account{}).
			Where("username IN ?", usernames).
			Update("proxy_active", false).Error
	})
	return usernames, err
}

func (r *AccountRepository) RecordLogin(ctx context.Context, username string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", username).
		Updates(map[string]interface{}{"last_login_at": at, "status": string(model.AccountStatusActive)}).Error
}

func (r *AccountRepository) IncrementPosts(ctx context.Context, username string) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", username).
		Update("posts_count", gorm.Expr("posts_count + ?", 1)).Error
}

func (r *AccountRepository) SetStatus(ctx context.Context, username string, status model.AccountStatus) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", username).
		Update("status", string(status)).Error
}

func (r *AccountRepository) SetCredential(ctx context.Context, username, credential string) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", username).
		Update("password", credential)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}
