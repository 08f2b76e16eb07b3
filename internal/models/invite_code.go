package models

import "time"

// InviteCodeStatus represents whether a code still admits participants.
type InviteCodeStatus string

const (
	InviteCodeStatusActive   InviteCodeStatus = "active"
	InviteCodeStatusInactive InviteCodeStatus = "inactive"
)

// InviteCode scopes which tasks a participant may see and owns the focus cooldown clock.
type InviteCode struct {
	ID              string           `db:"id" json:"id"`
	Code            string           `db:"code" json:"code"`
	StationID       string           `db:"station_id" json:"station_id"`
	Status          InviteCodeStatus `db:"status" json:"status"`
	FocusEnabled    bool             `db:"focus_enabled" json:"is_focus_enabled"`
	LastFocusChange *time.Time       `db:"last_focus_change" json:"last_focus_change,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// Active reports whether the code admits participants.
func (c InviteCode) Active() bool {
	return c.Status == InviteCodeStatusActive
}
