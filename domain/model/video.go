package model

import "time"

type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusDownloaded VideoStatus = "downloaded"
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusFailed     VideoStatus = "failed"
)

// Video is unique on (link, theme).
type Video struct {
	ID        int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Link      string      `gorm:"column:link;uniqueIndex:uq_videos_link_theme" json:"link"`
	Theme     string      `gorm:"column:theme;uniqueIndex:uq_videos_link_theme" json:"theme"`
	Status    VideoStatus `gorm:"column:status" json:"status"`
	CreatedAt time.Time   `gorm:"column:created_at" json:"created_at"`
}

func (Video) TableName() string { return "videos" }
