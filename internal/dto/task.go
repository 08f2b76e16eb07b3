package dto

import (
	"time"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

// CreateTaskRequest defines payload for publishing a task.
type CreateTaskRequest struct {
	StationID    string     `json:"station_id" validate:"required,max=36"`
	InviteCodeID string     `json:"invite_code_id" validate:"required,max=36"`
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description" validate:"max=5000"`
	Points       int        `json:"points" validate:"gte=0,lte=100000"`
	BonusPoints  int        `json:"bonus_points" validate:"gte=0,lte=100000"`
	DueDate      *time.Time `json:"due_date"`
	FlameMode    *bool      `json:"flame_mode_enabled"`
	IsFocus      bool       `json:"is_focus_task"`
}

// UpdateTaskRequest is a partial edit; omitted fields are left untouched.
type UpdateTaskRequest struct {
	Title        *string            `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string            `json:"description" validate:"omitempty,max=5000"`
	Points       *int               `json:"points" validate:"omitempty,gte=0,lte=100000"`
	BonusPoints  *int               `json:"bonus_points" validate:"omitempty,gte=0,lte=100000"`
	DueDate      *time.Time         `json:"due_date"`
	ClearDueDate bool               `json:"clear_due_date"`
	FlameMode    *bool              `json:"flame_mode_enabled"`
	Status       *models.TaskStatus `json:"status" validate:"omitempty,oneof=active completed cancelled"`
	InviteCodeID *string            `json:"invite_code_id" validate:"omitempty,min=1,max=36"`
	IsFocus      *bool              `json:"is_focus_task"`
}

// Patch converts the request into a task patch.
func (r UpdateTaskRequest) Patch() models.TaskPatch {
	return models.TaskPatch{
		Title:        r.Title,
		Description:  r.Description,
		Points:       r.Points,
		BonusPoints:  r.BonusPoints,
		DueDate:      r.DueDate,
		ClearDueDate: r.ClearDueDate,
		FlameMode:    r.FlameMode,
		Status:       r.Status,
		InviteCodeID: r.InviteCodeID,
		IsFocus:      r.IsFocus,
	}
}

// StationTaskQuery filters an operator's task list.
type StationTaskQuery struct {
	StationID string `form:"station_id" validate:"required,max=36"`
	Status    string `form:"status" validate:"omitempty,oneof=active completed cancelled all"`
}

// StatusFilter resolves the requested status. An omitted status means active
// and "all" disables the filter.
func (q StationTaskQuery) StatusFilter() models.TaskStatus {
	switch q.Status {
	case "":
		return models.TaskStatusActive
	case "all":
		return ""
	}
	return models.TaskStatus(q.Status)
}

// SetFocusRequest toggles the focus designation of a task.
type SetFocusRequest struct {
	IsFocus *bool `json:"is_focus_task" validate:"required"`
}

// TaskUpdateResult reports an edit and, when the focus flag was part of it, the focus outcome.
type TaskUpdateResult struct {
	Task  *models.Task        `json:"task"`
	Focus *models.FocusChange `json:"focus,omitempty"`
}

// Participation is a nickname's standing on one task.
type Participation struct {
	Nickname        string `json:"nickname"`
	HasParticipated bool   `json:"has_participated"`
	SubmissionCount int    `json:"submission_count"`
	PointsEarned    int    `json:"points_earned"`
}

// FanTaskDetail is the fan-facing view of one task.
type FanTaskDetail struct {
	Task          models.Task    `json:"task"`
	Expired       bool           `json:"is_expired"`
	Participation *Participation `json:"participation,omitempty"`
}
