package dto

type DashboardStats struct {
	ActiveAccounts int64 `json:"active_accounts"`
	PendingVideos  int64 `json:"pending_videos"`
	PostsToday     int64 `json:"posts_last_24h"`
	RunningTasks   int   `json:"running_tasks"`
}
