package model

type TaskKind string

const (
	TaskKindFetch  TaskKind = "fetch"
	TaskKindUpload TaskKind = "upload"
)

type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed || s == TaskStatusCancelled
}

func (s TaskStatus) Valid() bool {
	return s == TaskStatusRunning || s.IsTerminal()
}

// TaskRecord is the externally visible state of a fetch or upload run.
// Timestamps are ISO-8601 strings with offset.
type TaskRecord struct {
	ID              string     `json:"task_id"`
	Kind            TaskKind   `json:"task_type"`
	Status          TaskStatus `json:"status"`
	AccountUsername *string    `json:"account_username,omitempty"`
	Message         string     `json:"message"`
	Progress        int        `json:"progress"`
	TotalItems      int        `json:"total_items"`
	CurrentItem     *string    `json:"current_item,omitempty"`
	NextActionAt    *string    `json:"next_action_at,omitempty"`
	CooldownSeconds *int       `json:"cooldown_seconds,omitempty"`
	CreatedAt       string     `json:"created_at"`
	UpdatedAt       string     `json:"updated_at"`
}

// TaskUpdate is a partial update. Nil fields are left untouched.
// CooldownSeconds > 0 schedules next_action_at now+N; 0 clears both columns.
type TaskUpdate struct {
	Status          *TaskStatus
	Message         *string
	Progress        *int
	TotalItems      *int
	CurrentItem     *string
	CooldownSeconds *int
}

type TaskFilter struct {
	Status TaskStatus
	Kind   TaskKind
	Limit  int
}

type TaskStats struct {
	ByStatus map[string]int `json:"by_status"`
	ByKind   map[string]int `json:"by_type"`
	Recent   int            `json:"recent_24h"`
	Running  int            `json:"running"`
}
