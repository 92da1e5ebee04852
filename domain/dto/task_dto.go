package dto

import "reelpipe/domain/model"

type FetchRequest struct {
	Theme           string   `json:"theme" binding:"required"`
	SourceAccounts  []string `json:"source_accounts" binding:"required"`
	PerAccountLimit int      `json:"per_account_limit"`
}

type UploadRequest struct {
	Account string   `json:"account" binding:"required"`
	Links   []string `json:"links"`
}

type TaskAccepted struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// TaskProgressResponse is a task snapshot plus the remaining cooldown derived
// from next_action_at at read time.
type TaskProgressResponse struct {
	model.TaskRecord
	RemainingCooldown int  `json:"remaining_cooldown"`
	IsInCooldown      bool `json:"is_in_cooldown"`
}

type CancelResponse struct {
	TaskID  string           `json:"task_id"`
	Status  model.TaskStatus `json:"status"`
	Message string           `json:"message"`
}

type TaskListResponse struct {
	Tasks []model.TaskRecord `json:"tasks"`
	Count int                `json:"count"`
}

type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
	Days    int   `json:"days"`
}
