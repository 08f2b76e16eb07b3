package models

import (
	"fmt"
	"time"
)

// LeaderboardKind names a leaderboard projection.
type LeaderboardKind string

const (
	LeaderboardOverall     LeaderboardKind = "overall"
	LeaderboardDaily       LeaderboardKind = "daily"
	LeaderboardFocus       LeaderboardKind = "focus"
	LeaderboardTask        LeaderboardKind = "task"
	LeaderboardCustomRange LeaderboardKind = "custom_range"
)

// ParseLeaderboardKind maps the query value onto a kind, defaulting to overall.
func ParseLeaderboardKind(raw string) (LeaderboardKind, error) {
	switch LeaderboardKind(raw) {
	case "":
		return LeaderboardOverall, nil
	case LeaderboardOverall, LeaderboardDaily, LeaderboardFocus, LeaderboardTask, LeaderboardCustomRange:
		return LeaderboardKind(raw), nil
	}
	return "", fmt.Errorf("unknown leaderboard type %q", raw)
}

// LeaderboardRow is one aggregated row before ranking.
type LeaderboardRow struct {
	Nickname     string `db:"nickname"`
	Points       int    `db:"points"`
	Submissions  int    `db:"submissions"`
	FocusTouched bool   `db:"focus_touched"`
}

// LeaderboardEntry is a ranked leaderboard line.
type LeaderboardEntry struct {
	Rank                  int    `json:"rank"`
	Nickname              string `json:"nickname"`
	Points                int    `json:"points"`
	Submissions           int    `json:"submission_count"`
	HasFocusTaskCompleted bool   `json:"has_focus_task_completed"`
}

// LeaderboardWindow is a half-open [Start, End) submission time range.
type LeaderboardWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Leaderboard is the ranked projection returned to callers.
type Leaderboard struct {
	Kind        LeaderboardKind    `json:"type"`
	StationID   string             `json:"station_id"`
	TaskID      string             `json:"task_id,omitempty"`
	Title       string             `json:"title,omitempty"`
	Window      *LeaderboardWindow `json:"window,omitempty"`
	Entries     []LeaderboardEntry `json:"leaderboard"`
	Self        *LeaderboardEntry  `json:"user_info,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}
