package persistence

import (
	"context"

	"reelpipe/domain/model"
	"reelpipe/domain/repository"
	"reelpipe/infrastructure/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VideoRepository struct {
	db *gorm.DB
}

func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

var _ repository.IVideo = (*VideoRepository)(nil)

// InsertNew inserts links as pending videos of theme and returns, in input
// order, the ones that were not already known. The (link, theme) constraint
// makes repeated calls idempotent.
func (r *VideoRepository) InsertNew(ctx context.Context, theme string, links []string) ([]string, error) {
	inserted := make([]string, 0, len(links))
	if len(links) == 0 {
		return inserted, nil
	}
	now := utils.GetCurrentTime()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, link := range links {
			v := model.Video{Link: link, Theme: theme, Status: model.VideoStatusPending, CreatedAt: now}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "link"}, {Name: "theme"}},
				DoNothing: true,
			}).Create(&v)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				inserted = append(inserted, link)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *VideoRepository) UpdateStatus(ctx context.Context, link, theme string, status model.VideoStatus) error {
	return r.db.WithContext(ctx).Model(&model.Video{}).
		Where("link = ? AND theme = ?", link, theme).
		Update("status", string(status)).Error
}

func (r *VideoRepository) CountByStatus(ctx context.Context, status model.VideoStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Video{}).Where("status = ?", string(status)).Count(&n).Error
	return n, err
}
