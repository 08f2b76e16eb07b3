package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

// LeaderboardRepository runs the read-only ranking aggregations. Rows come
// back ordered by points descending, then nickname, ready for positional ranks.
type LeaderboardRepository struct {
	db *sqlx.DB
}

// NewLeaderboardRepository constructs the repository.
func NewLeaderboardRepository(db *sqlx.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// Overall sums participant totals across every task of the station.
func (r *LeaderboardRepository) Overall(ctx context.Context, stationID string) ([]models.LeaderboardRow, error) {
	const query = `
SELECT
	p.name AS nickname,
	COALESCE(SUM(p.points_earned), 0) AS points,
	COALESCE(SUM(p.submission_count), 0) AS submissions,
	COALESCE(BOOL_OR(t.is_focus AND p.submission_count > 0), FALSE) AS focus_touched
FROM participants p
JOIN tasks t ON t.id = p.task_id
WHERE t.station_id = $1
GROUP BY p.name
ORDER BY points DESC, p.name ASC`
	return r.selectRows(ctx, "overall", query, stationID)
}

// Window sums submission-level points inside [start, end). Abnormal
// submissions carry zero points and drop out of the sum on their own.
func (r *LeaderboardRepository) Window(ctx context.Context, stationID string, start, end time.Time) ([]models.LeaderboardRow, error) {
	const query = `
SELECT
	p.name AS nickname,
	COALESCE(SUM(s.points_earned), 0) AS points,
	COUNT(s.id) AS submissions,
	COALESCE(BOOL_OR(t.is_focus), FALSE) AS focus_touched
FROM submissions s
JOIN participants p ON p.id = s.participant_id
JOIN tasks t ON t.id = p.task_id
WHERE t.station_id = $1 AND s.submitted_at >= $2 AND s.submitted_at < $3
GROUP BY p.name
ORDER BY points DESC, p.name ASC`
	return r.selectRows(ctx, "window", query, stationID, start, end)
}

// Focus sums participant totals over the station's focus tasks.
func (r *LeaderboardRepository) Focus(ctx context.Context, stationID string) ([]models.LeaderboardRow, error) {
	const query = `
SELECT
	p.name AS nickname,
	COALESCE(SUM(p.points_earned), 0) AS points,
	COALESCE(SUM(p.submission_count), 0) AS submissions,
	TRUE AS focus_touched
FROM participants p
JOIN tasks t ON t.id = p.task_id
WHERE t.station_id = $1 AND t.is_focus = TRUE
GROUP BY p.name
ORDER BY points DESC, p.name ASC`
	return r.selectRows(ctx, "focus", query, stationID)
}

// Task lists the participant rows of one task.
func (r *LeaderboardRepository) Task(ctx context.Context, taskID string) ([]models.LeaderboardRow, error) {
	const query = `
SELECT
	p.name AS nickname,
	p.points_earned AS points,
	p.submission_count AS submissions,
	(t.is_focus AND p.submission_count > 0) AS focus_touched
FROM participants p
JOIN tasks t ON t.id = p.task_id
WHERE p.task_id = $1
ORDER BY p.points_earned DESC, p.name ASC`
	return r.selectRows(ctx, "task", query, taskID)
}

func (r *LeaderboardRepository) selectRows(ctx context.Context, label, query string, args ...interface{}) ([]models.LeaderboardRow, error) {
	rows := make([]models.LeaderboardRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s leaderboard: %w", label, err)
	}
	return rows, nil
}
