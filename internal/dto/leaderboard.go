package dto

// LeaderboardQuery selects a leaderboard projection. Fans scope by invite
// code; operators scope by station.
type LeaderboardQuery struct {
	InviteCode string `form:"invite_code"`
	StationID  string `form:"station_id"`
	Type       string `form:"type"`
	TaskID     string `form:"task_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	Nickname   string `form:"nickname" validate:"max=100"`
}
