package models

import "time"

// CooldownState is the derived state of an invite code's focus clock.
type CooldownState string

const (
	CooldownOpen    CooldownState = "open"
	CooldownCooling CooldownState = "cooling"
)

// FocusChange is the outcome of a focus toggle.
type FocusChange struct {
	TaskID         string    `json:"task_id"`
	InviteCodeID   string    `json:"invite_code_id"`
	IsFocus        bool      `json:"is_focus_task"`
	Changed        bool      `json:"changed"`
	UnsetTaskCount int64     `json:"unset_task_count"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

// FocusStatus reports an invite code's focus task and cooldown state.
type FocusStatus struct {
	InviteCode       string        `json:"invite_code"`
	HasFocusTask     bool          `json:"has_focus_task"`
	State            CooldownState `json:"state"`
	InCooldown       bool          `json:"is_in_cooldown"`
	RemainingSeconds int64         `json:"cooldown_remaining_seconds"`
	LastChange       *time.Time    `json:"last_change_time,omitempty"`
	CooldownUntil    *time.Time    `json:"cooldown_until_time,omitempty"`
	CurrentTime      time.Time     `json:"current_time"`
	FocusTask        *FocusTaskRef `json:"focus_task,omitempty"`
}

// FocusTaskRef summarises the spotlighted task.
type FocusTaskRef struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
