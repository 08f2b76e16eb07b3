package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

// TaskTx exposes the locked task and invite-code operations used by task
// edits and the focus cooldown guard.
type TaskTx interface {
	LockStation(ctx context.Context, stationID string) error
	LockTask(ctx context.Context, taskID string) (*models.Task, error)
	LockInviteCode(ctx context.Context, inviteCodeID string) (*models.InviteCode, error)
	InsertTask(ctx context.Context, task *models.Task) error
	UpdateTaskFields(ctx context.Context, taskID string, patch models.TaskPatch) error
	SetTaskFocus(ctx context.Context, taskID string, focus bool) error
	ClearStationFocus(ctx context.Context, stationID, exceptTaskID string) (int64, error)
	TouchFocusChange(ctx context.Context, inviteCodeID string, at time.Time) error
	CompleteTask(ctx context.Context, taskID string, at time.Time) error
}

// TaskRepository manages task persistence.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs a TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithinTx runs fn in a single transaction.
func (r *TaskRepository) WithinTx(ctx context.Context, fn func(TaskTx) error) error {
	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&taskTx{tx: tx})
	})
}

// FindByID fetches a task by ID.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

const taskSummarySelect = `
SELECT
	t.id, t.station_id, t.invite_code_id, t.title, t.description, t.points, t.bonus_points,
	t.due_date, t.flame_mode, t.is_focus, t.status, t.created_at, t.completed_at,
	COALESCE(SUM(p.submission_count), 0) AS submission_count,
	COUNT(p.id) AS participant_count
FROM tasks t
LEFT JOIN participants p ON p.task_id = t.id`

// ListActiveByInviteCode returns the active tasks published under an invite
// code with their submission and participant totals, focus task first.
func (r *TaskRepository) ListActiveByInviteCode(ctx context.Context, inviteCodeID string) ([]models.TaskSummary, error) {
	const query = taskSummarySelect + `
WHERE t.invite_code_id = $1 AND t.status = $2
GROUP BY t.id
ORDER BY t.is_focus DESC, t.created_at DESC`

	var tasks []models.TaskSummary
	if err := r.db.SelectContext(ctx, &tasks, query, inviteCodeID, models.TaskStatusActive); err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	return tasks, nil
}

// ListByStation returns a station's tasks newest first. An empty status
// lists every status.
func (r *TaskRepository) ListByStation(ctx context.Context, stationID string, status models.TaskStatus) ([]models.TaskSummary, error) {
	query := taskSummarySelect + `
WHERE t.station_id = $1`
	args := []interface{}{stationID}
	if status != "" {
		query += ` AND t.status = $2`
		args = append(args, status)
	}
	query += `
GROUP BY t.id
ORDER BY t.created_at DESC`

	var tasks []models.TaskSummary
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list station tasks: %w", err)
	}
	return tasks, nil
}

// FindSummaryByID fetches one task with its participation totals.
func (r *TaskRepository) FindSummaryByID(ctx context.Context, id string) (*models.TaskSummary, error) {
	const query = taskSummarySelect + `
WHERE t.id = $1
GROUP BY t.id`

	var task models.TaskSummary
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, fmt.Errorf("find task summary: %w", err)
	}
	return &task, nil
}

// FindActiveFocusByInviteCode returns the active focus task linked to an invite code.
func (r *TaskRepository) FindActiveFocusByInviteCode(ctx context.Context, inviteCodeID string) (*models.FocusTaskRef, error) {
	const query = `SELECT id, title, created_at FROM tasks
WHERE invite_code_id = $1 AND is_focus = TRUE AND status = $2
ORDER BY created_at DESC
LIMIT 1`
	var ref models.FocusTaskRef
	if err := r.db.GetContext(ctx, &ref, query, inviteCodeID, models.TaskStatusActive); err != nil {
		return nil, fmt.Errorf("find focus task: %w", err)
	}
	return &ref, nil
}

type taskTx struct {
	tx *sqlx.Tx
}

// LockStation serializes focus changes within a station. Callers take it
// before any task or invite-code row lock.
func (t *taskTx) LockStation(ctx context.Context, stationID string) error {
	var id string
	if err := t.tx.GetContext(ctx, &id, `SELECT id FROM stations WHERE id = $1 FOR UPDATE`, stationID); err != nil {
		return fmt.Errorf("lock station: %w", err)
	}
	return nil
}

func (t *taskTx) LockTask(ctx context.Context, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`
	var task models.Task
	if err := t.tx.GetContext(ctx, &task, query, taskID); err != nil {
		return nil, fmt.Errorf("lock task: %w", err)
	}
	return &task, nil
}

// LockInviteCode serializes focus changes that share a cooldown clock.
func (t *taskTx) LockInviteCode(ctx context.Context, inviteCodeID string) (*models.InviteCode, error) {
	query := `SELECT ` + inviteCodeColumns + ` FROM invite_codes WHERE id = $1 FOR UPDATE`
	var code models.InviteCode
	if err := t.tx.GetContext(ctx, &code, query, inviteCodeID); err != nil {
		return nil, fmt.Errorf("lock invite code: %w", err)
	}
	return &code, nil
}

func (t *taskTx) InsertTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusActive
	}
	const query = `INSERT INTO tasks (id, station_id, invite_code_id, title, description, points, bonus_points, due_date, flame_mode, is_focus, status, created_at)
VALUES (:id, :station_id, :invite_code_id, :title, :description, :points, :bonus_points, :due_date, :flame_mode, :is_focus, :status, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTaskFields applies every non-focus field present in the patch.
func (t *taskTx) UpdateTaskFields(ctx context.Context, taskID string, patch models.TaskPatch) error {
	sets := make([]string, 0, 8)
	args := []interface{}{taskID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Points != nil {
		add("points", *patch.Points)
	}
	if patch.BonusPoints != nil {
		add("bonus_points", *patch.BonusPoints)
	}
	if patch.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.FlameMode != nil {
		add("flame_mode", *patch.FlameMode)
	}
	if patch.InviteCodeID != nil {
		add("invite_code_id", *patch.InviteCodeID)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
		if *patch.Status == models.TaskStatusCompleted {
			sets = append(sets, "completed_at = COALESCE(completed_at, NOW())")
		}
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (t *taskTx) SetTaskFocus(ctx context.Context, taskID string, focus bool) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE tasks SET is_focus = $2 WHERE id = $1`, taskID, focus); err != nil {
		return fmt.Errorf("set task focus: %w", err)
	}
	return nil
}

// ClearStationFocus unsets the focus flag on every other active task of the station.
func (t *taskTx) ClearStationFocus(ctx context.Context, stationID, exceptTaskID string) (int64, error) {
	const query = `UPDATE tasks SET is_focus = FALSE
WHERE station_id = $1 AND id <> $2 AND is_focus = TRUE AND status = $3`
	res, err := t.tx.ExecContext(ctx, query, stationID, exceptTaskID, models.TaskStatusActive)
	if err != nil {
		return 0, fmt.Errorf("clear station focus: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear station focus: %w", err)
	}
	return affected, nil
}

func (t *taskTx) TouchFocusChange(ctx context.Context, inviteCodeID string, at time.Time) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE invite_codes SET last_focus_change = $2 WHERE id = $1`, inviteCodeID, at); err != nil {
		return fmt.Errorf("touch focus change: %w", err)
	}
	return nil
}

func (t *taskTx) CompleteTask(ctx context.Context, taskID string, at time.Time) error {
	const query = `UPDATE tasks SET status = $2, completed_at = $3 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, taskID, models.TaskStatusCompleted, at); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}
