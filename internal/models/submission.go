package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ImageList is a JSON encoded list of stored image references.
type ImageList []string

// Value implements driver.Valuer.
func (l ImageList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (l *ImageList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = ImageList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan image list: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan image list: %w", err)
	}
	*l = out
	return nil
}

// Submission is one append-only submission event. Only the abnormal fields
// ever change after insert.
type Submission struct {
	ID             string     `db:"id" json:"id"`
	ParticipantID  string     `db:"participant_id" json:"participant_id"`
	SubmittedAt    time.Time  `db:"submitted_at" json:"submitted_at"`
	PointsEarned   int        `db:"points_earned" json:"points_earned"`
	Comment        string     `db:"comment" json:"comment"`
	ImageURLs      ImageList  `db:"image_urls" json:"image_urls"`
	IsAbnormal     bool       `db:"is_abnormal" json:"is_abnormal"`
	AbnormalReason *string    `db:"abnormal_reason" json:"abnormal_reason,omitempty"`
	MarkedBy       *string    `db:"marked_by" json:"marked_by,omitempty"`
	MarkedAt       *time.Time `db:"marked_at" json:"marked_at,omitempty"`
}

// SubmissionDetail enriches a submission with its participant and task.
type SubmissionDetail struct {
	Submission
	TaskID            string `db:"task_id" json:"task_id"`
	TaskTitle         string `db:"task_title" json:"task_title"`
	StationID         string `db:"station_id" json:"station_id"`
	Nickname          string `db:"participant_name" json:"participant_name"`
	ParticipantCount  int    `db:"participant_submission_count" json:"participant_submission_count"`
	ParticipantPoints int    `db:"participant_points_earned" json:"participant_points_earned"`
}

// SubmissionRecord is the outcome of a recorded submission.
type SubmissionRecord struct {
	PointsAwarded int               `json:"points"`
	FirstTime     bool              `json:"first_time"`
	Submission    Submission        `json:"submission"`
	Participant   ParticipantTotals `json:"participant"`
}

// Reversal is the outcome of marking a submission abnormal.
type Reversal struct {
	SubmissionID   string            `json:"submission_id"`
	PointsDeducted int               `json:"points_deducted"`
	Reason         string            `json:"abnormal_reason"`
	MarkedBy       string            `json:"marked_by"`
	MarkedAt       time.Time         `json:"marked_at"`
	Participant    ParticipantTotals `json:"participant"`
}

// SubmissionFilter pages through a task's submissions.
type SubmissionFilter struct {
	TaskID   string
	Page     int
	PageSize int
}
