package models

import "time"

// TaskStatus represents the lifecycle of a task.
type TaskStatus string

// Possible task statuses. Completed and cancelled are terminal.
const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusActive, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further edits are accepted.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Task is a unit of work published by a station under one invite code.
type Task struct {
	ID           string     `db:"id" json:"id"`
	StationID    string     `db:"station_id" json:"station_id"`
	InviteCodeID string     `db:"invite_code_id" json:"invite_code_id"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	Points       int        `db:"points" json:"points"`
	BonusPoints  int        `db:"bonus_points" json:"bonus_points"`
	DueDate      *time.Time `db:"due_date" json:"due_date,omitempty"`
	FlameMode    bool       `db:"flame_mode" json:"flame_mode_enabled"`
	IsFocus      bool       `db:"is_focus" json:"is_focus_task"`
	Status       TaskStatus `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Expired reports whether the due date has passed at the given instant.
func (t Task) Expired(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now)
}

// TimeLimited reports whether the task carries a due date.
func (t Task) TimeLimited() bool {
	return t.DueDate != nil
}

// TaskPatch carries an operator edit. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Points       *int
	BonusPoints  *int
	DueDate      *time.Time
	ClearDueDate bool
	FlameMode    *bool
	Status       *TaskStatus
	InviteCodeID *string
	IsFocus      *bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Points == nil && p.BonusPoints == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.FlameMode == nil && p.Status == nil &&
		p.InviteCodeID == nil && p.IsFocus == nil
}

// HasFieldChanges reports whether the patch touches anything besides the focus flag.
func (p TaskPatch) HasFieldChanges() bool {
	focusless := p
	focusless.IsFocus = nil
	return !focusless.Empty()
}

// TaskSummary is the fan-facing projection of an active task.
type TaskSummary struct {
	Task
	SubmissionCount  int `db:"submission_count" json:"submission_count"`
	ParticipantCount int `db:"participant_count" json:"participant_count"`
}
