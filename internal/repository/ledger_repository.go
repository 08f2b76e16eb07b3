package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

const (
	taskColumns        = `id, station_id, invite_code_id, title, description, points, bonus_points, due_date, flame_mode, is_focus, status, created_at, completed_at`
	participantColumns = `id, task_id, name, joined_at, submission_count, points_earned, total_points_for_task`
	submissionColumns  = `id, participant_id, submitted_at, points_earned, comment, image_urls, is_abnormal, abnormal_reason, marked_by, marked_at`
)

// ErrAlreadyAbnormal is returned when a submission was flagged by a concurrent reversal.
var ErrAlreadyAbnormal = errors.New("submission already marked abnormal")

// LedgerTx exposes the row-locked operations of one scoring or reversal
// transaction. Every method runs on the same database transaction.
type LedgerTx interface {
	LockTask(ctx context.Context, taskID string) (*models.Task, error)
	LockParticipant(ctx context.Context, taskID, nickname string, joinedAt time.Time) (*models.Participant, error)
	ApplyAward(ctx context.Context, participantID string, award int) (*models.Participant, error)
	InsertSubmission(ctx context.Context, submission *models.Submission) error
	LockSubmission(ctx context.Context, submissionID string) (*models.Submission, error)
	ReversePoints(ctx context.Context, participantID string, amount int) (*models.Participant, error)
	MarkSubmissionAbnormal(ctx context.Context, submissionID, reason, markedBy string, at time.Time) error
}

// LedgerRepository owns participant and submission writes.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithinTx runs fn in a single transaction; any error rolls back every write.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(LedgerTx) error) error {
	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
}

// FindParticipant returns the ledger row for a nickname on a task.
func (r *LedgerRepository) FindParticipant(ctx context.Context, taskID, nickname string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE task_id = $1 AND name = $2`
	var participant models.Participant
	if err := r.db.GetContext(ctx, &participant, query, taskID, nickname); err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return &participant, nil
}

type ledgerTx struct {
	tx *sqlx.Tx
}

// LockTask takes a share lock so focus toggles and settles wait for in-flight scoring.
func (t *ledgerTx) LockTask(ctx context.Context, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR SHARE`
	var task models.Task
	if err := t.tx.GetContext(ctx, &task, query, taskID); err != nil {
		return nil, fmt.Errorf("lock task: %w", err)
	}
	return &task, nil
}

// LockParticipant creates the participant on first contact and locks its row.
// Concurrent first submissions serialize here, so only one sees a zero count.
func (t *ledgerTx) LockParticipant(ctx context.Context, taskID, nickname string, joinedAt time.Time) (*models.Participant, error) {
	const insertQuery = `INSERT INTO participants (id, task_id, name, joined_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (task_id, name) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, insertQuery, uuid.NewString(), taskID, nickname, joinedAt); err != nil {
		return nil, fmt.Errorf("ensure participant: %w", err)
	}

	query := `SELECT ` + participantColumns + ` FROM participants WHERE task_id = $1 AND name = $2 FOR UPDATE`
	var participant models.Participant
	if err := t.tx.GetContext(ctx, &participant, query, taskID, nickname); err != nil {
		return nil, fmt.Errorf("lock participant: %w", err)
	}
	return &participant, nil
}

func (t *ledgerTx) ApplyAward(ctx context.Context, participantID string, award int) (*models.Participant, error) {
	query := `UPDATE participants
SET submission_count = submission_count + 1,
	points_earned = points_earned + $2,
	total_points_for_task = total_points_for_task + $2
WHERE id = $1
RETURNING ` + participantColumns
	var participant models.Participant
	if err := t.tx.GetContext(ctx, &participant, query, participantID, award); err != nil {
		return nil, fmt.Errorf("apply award: %w", err)
	}
	return &participant, nil
}

func (t *ledgerTx) InsertSubmission(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.ImageURLs == nil {
		submission.ImageURLs = models.ImageList{}
	}
	const query = `INSERT INTO submissions (id, participant_id, submitted_at, points_earned, comment, image_urls)
VALUES (:id, :participant_id, :submitted_at, :points_earned, :comment, :image_urls)`
	if _, err := t.tx.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (t *ledgerTx) LockSubmission(ctx context.Context, submissionID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`
	var submission models.Submission
	if err := t.tx.GetContext(ctx, &submission, query, submissionID); err != nil {
		return nil, fmt.Errorf("lock submission: %w", err)
	}
	return &submission, nil
}

// ReversePoints subtracts amount from the participant totals, flooring at zero.
func (t *ledgerTx) ReversePoints(ctx context.Context, participantID string, amount int) (*models.Participant, error) {
	query := `UPDATE participants
SET points_earned = GREATEST(points_earned - $2, 0),
	total_points_for_task = GREATEST(total_points_for_task - $2, 0)
WHERE id = $1
RETURNING ` + participantColumns
	var participant models.Participant
	if err := t.tx.GetContext(ctx, &participant, query, participantID, amount); err != nil {
		return nil, fmt.Errorf("reverse points: %w", err)
	}
	return &participant, nil
}

// MarkSubmissionAbnormal flags the submission and zeroes its contribution.
func (t *ledgerTx) MarkSubmissionAbnormal(ctx context.Context, submissionID, reason, markedBy string, at time.Time) error {
	const query = `UPDATE submissions
SET is_abnormal = TRUE, abnormal_reason = $2, marked_by = $3, marked_at = $4, points_earned = 0
WHERE id = $1 AND is_abnormal = FALSE`
	res, err := t.tx.ExecContext(ctx, query, submissionID, reason, markedBy, at)
	if err != nil {
		return fmt.Errorf("mark submission abnormal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark submission abnormal: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyAbnormal
	}
	return nil
}
