package models

import "time"

// Participant is the ledger row for one nickname on one task. Nicknames are
// caller supplied and unauthenticated.
type Participant struct {
	ID                 string    `db:"id" json:"id"`
	TaskID             string    `db:"task_id" json:"task_id"`
	Nickname           string    `db:"name" json:"name"`
	JoinedAt           time.Time `db:"joined_at" json:"joined_at"`
	SubmissionCount    int       `db:"submission_count" json:"submission_count"`
	PointsEarned       int       `db:"points_earned" json:"points_earned"`
	TotalPointsForTask int       `db:"total_points_for_task" json:"total_points_for_task"`
}

// ParticipantTotals is the ledger snapshot returned after a mutation.
type ParticipantTotals struct {
	ParticipantID      string `json:"participant_id"`
	Nickname           string `json:"name"`
	SubmissionCount    int    `json:"submission_count"`
	PointsEarned       int    `json:"points_earned"`
	TotalPointsForTask int    `json:"total_points_for_task"`
}

// Totals projects the participant onto its ledger snapshot.
func (p Participant) Totals() ParticipantTotals {
	return ParticipantTotals{
		ParticipantID:      p.ID,
		Nickname:           p.Nickname,
		SubmissionCount:    p.SubmissionCount,
		PointsEarned:       p.PointsEarned,
		TotalPointsForTask: p.TotalPointsForTask,
	}
}
