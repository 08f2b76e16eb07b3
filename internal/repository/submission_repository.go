package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

const submissionDetailSelect = `
SELECT
	s.id, s.participant_id, s.submitted_at, s.points_earned, s.comment, s.image_urls,
	s.is_abnormal, s.abnormal_reason, s.marked_by, s.marked_at,
	t.id AS task_id,
	t.title AS task_title,
	t.station_id,
	p.name AS participant_name,
	p.submission_count AS participant_submission_count,
	p.points_earned AS participant_points_earned
FROM submissions s
JOIN participants p ON p.id = s.participant_id
JOIN tasks t ON t.id = p.task_id`

// SubmissionRepository reads the submission log.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// ListByTask returns a page of a task's submissions, newest first, with the total count.
func (r *SubmissionRepository) ListByTask(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s\nWHERE t.id = $1\nORDER BY s.submitted_at DESC, s.id DESC\nLIMIT %d OFFSET %d", submissionDetailSelect, size, offset)
	var items []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &items, query, filter.TaskID); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM submissions s JOIN participants p ON p.id = s.participant_id WHERE p.task_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, filter.TaskID); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return items, total, nil
}

// FindDetail fetches one submission with its participant and task.
func (r *SubmissionRepository) FindDetail(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	query := submissionDetailSelect + "\nWHERE s.id = $1"
	var detail models.SubmissionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &detail, nil
}
