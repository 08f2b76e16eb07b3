package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/station-tasks-api/internal/dto"
	"github.com/noah-isme/station-tasks-api/internal/models"
	"github.com/noah-isme/station-tasks-api/internal/repository"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
)

type taskStore interface {
	WithinTx(ctx context.Context, fn func(repository.TaskTx) error) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindSummaryByID(ctx context.Context, id string) (*models.TaskSummary, error)
	ListActiveByInviteCode(ctx context.Context, inviteCodeID string) ([]models.TaskSummary, error)
	ListByStation(ctx context.Context, stationID string, status models.TaskStatus) ([]models.TaskSummary, error)
	FindActiveFocusByInviteCode(ctx context.Context, inviteCodeID string) (*models.FocusTaskRef, error)
}

type participantFinder interface {
	FindParticipant(ctx context.Context, taskID, nickname string) (*models.Participant, error)
}

// TaskServiceConfig tunes task handling.
type TaskServiceConfig struct {
	StoreTimeout time.Duration
}

// TaskService handles task publishing, edits, settlement, and the focus
// designation guarded by the per-invite-code cooldown.
type TaskService struct {
	tasks        taskStore
	invites      inviteCodeReader
	participants participantFinder
	access       stationAuthorizer
	guard        *CooldownGuard
	invalidator  leaderboardInvalidator
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          TaskServiceConfig
	now          func() time.Time
}

// NewTaskService constructs the task service.
func NewTaskService(
	tasks taskStore,
	invites inviteCodeReader,
	participants participantFinder,
	access stationAuthorizer,
	guard *CooldownGuard,
	invalidator leaderboardInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TaskServiceConfig,
) *TaskService {
	if guard == nil {
		guard = NewCooldownGuard(0)
	}
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		tasks:        tasks,
		invites:      invites,
		participants: participants,
		access:       access,
		guard:        guard,
		invalidator:  invalidator,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Create publishes a task. A task created as the focus task passes through
// the cooldown guard and starts its invite code's clock.
func (s *TaskService) Create(ctx context.Context, req dto.CreateTaskRequest, actor *models.JWTClaims) (*models.Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.access.AuthorizeStation(ctx, actor, req.StationID); err != nil {
		return nil, err
	}

	flame := true
	if req.FlameMode != nil {
		flame = *req.FlameMode
	}
	now := s.now().UTC()
	task := &models.Task{
		StationID:    req.StationID,
		InviteCodeID: req.InviteCodeID,
		Title:        req.Title,
		Description:  req.Description,
		Points:       req.Points,
		BonusPoints:  req.BonusPoints,
		DueDate:      req.DueDate,
		FlameMode:    flame,
		IsFocus:      req.IsFocus,
		Status:       models.TaskStatusActive,
		CreatedAt:    now,
	}

	var unset int64
	err := s.tasks.WithinTx(ctx, func(tx repository.TaskTx) error {
		if task.IsFocus {
			if err := tx.LockStation(ctx, task.StationID); err != nil {
				return storeError(err, "station not found", "failed to lock station")
			}
		}
		code, err := tx.LockInviteCode(ctx, req.InviteCodeID)
		if err != nil {
			return storeError(err, "invite code not found", "failed to load invite code")
		}
		if code.StationID != req.StationID {
			return appErrors.Clone(appErrors.ErrForbidden, "invite code belongs to another station")
		}
		if !task.IsFocus {
			return tx.InsertTask(ctx, task)
		}

		if err := s.checkCooldown(*code, now); err != nil {
			return err
		}
		if unset, err = tx.ClearStationFocus(ctx, task.StationID, ""); err != nil {
			return err
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		return tx.TouchFocusChange(ctx, code.ID, now)
	})
	if err != nil {
		return nil, storeError(err, "", "failed to create task")
	}

	if task.IsFocus {
		s.focusChanged(task, true, unset)
	}
	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("station_id", task.StationID),
		zap.Bool("is_focus", task.IsFocus),
	)
	return task, nil
}

// Update applies a partial edit. A focus flip inside the patch is guarded
// exactly like SetFocus and commits together with the other fields.
func (s *TaskService) Update(ctx context.Context, taskID string, req dto.UpdateTaskRequest, actor *models.JWTClaims) (*dto.TaskUpdateResult, error) {
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}
	patch := req.Patch()
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}
	if patch.ClearDueDate && patch.DueDate != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due_date and clear_due_date are mutually exclusive")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	current, err := s.authorizeTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result := &dto.TaskUpdateResult{}
	err = s.tasks.WithinTx(ctx, func(tx repository.TaskTx) error {
		if patch.IsFocus != nil {
			if err := tx.LockStation(ctx, current.StationID); err != nil {
				return storeError(err, "station not found", "failed to lock station")
			}
		}
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return storeError(err, "task not found", "failed to load task")
		}
		if task.Status.Terminal() {
			return appErrors.WithDetails(appErrors.ErrRejected, "task can no longer be edited", map[string]interface{}{"status": task.Status})
		}
		if patch.InviteCodeID != nil && *patch.InviteCodeID != task.InviteCodeID {
			code, err := tx.LockInviteCode(ctx, *patch.InviteCodeID)
			if err != nil {
				return storeError(err, "invite code not found", "failed to load invite code")
			}
			if code.StationID != task.StationID {
				return appErrors.Clone(appErrors.ErrForbidden, "invite code belongs to another station")
			}
		}

		if patch.HasFieldChanges() {
			if err := tx.UpdateTaskFields(ctx, task.ID, patch); err != nil {
				return err
			}
			if task, err = tx.LockTask(ctx, task.ID); err != nil {
				return err
			}
		}
		if patch.IsFocus != nil {
			change, err := s.applyFocus(ctx, tx, task, *patch.IsFocus, now)
			if err != nil {
				return err
			}
			result.Focus = change
			task.IsFocus = *patch.IsFocus
		}
		result.Task = task
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to update task")
	}

	if result.Focus != nil && result.Focus.Changed {
		s.focusChanged(result.Task, result.Focus.IsFocus, result.Focus.UnsetTaskCount)
	}
	s.logger.Info("task updated", zap.String("task_id", taskID), zap.Bool("focus_changed", result.Focus != nil && result.Focus.Changed))
	return result, nil
}

// SetFocus designates or clears the task as its station's focus task.
// Setting the current value is a no-op that leaves the cooldown clock alone.
func (s *TaskService) SetFocus(ctx context.Context, taskID string, req dto.SetFocusRequest, actor *models.JWTClaims) (*models.FocusChange, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid focus payload")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	current, err := s.authorizeTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var (
		change *models.FocusChange
		task   *models.Task
	)
	err = s.tasks.WithinTx(ctx, func(tx repository.TaskTx) error {
		var err error
		if err = tx.LockStation(ctx, current.StationID); err != nil {
			return storeError(err, "station not found", "failed to lock station")
		}
		if task, err = tx.LockTask(ctx, taskID); err != nil {
			return storeError(err, "task not found", "failed to load task")
		}
		change, err = s.applyFocus(ctx, tx, task, *req.IsFocus, now)
		return err
	})
	if err != nil {
		return nil, storeError(err, "", "failed to change focus task")
	}

	if change.Changed {
		s.focusChanged(task, change.IsFocus, change.UnsetTaskCount)
	}
	return change, nil
}

// Settle marks a task completed. Settling a completed task returns it unchanged.
func (s *TaskService) Settle(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.Task, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if _, err := s.authorizeTask(ctx, taskID, actor); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var task *models.Task
	err := s.tasks.WithinTx(ctx, func(tx repository.TaskTx) error {
		var err error
		if task, err = tx.LockTask(ctx, taskID); err != nil {
			return storeError(err, "task not found", "failed to load task")
		}
		switch task.Status {
		case models.TaskStatusCompleted:
			return nil
		case models.TaskStatusCancelled:
			return appErrors.Clone(appErrors.ErrRejected, "cancelled tasks cannot be settled")
		}
		if err := tx.CompleteTask(ctx, task.ID, now); err != nil {
			return err
		}
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to settle task")
	}
	s.logger.Info("task settled", zap.String("task_id", task.ID), zap.String("station_id", task.StationID))
	return task, nil
}

// ListForStation returns a station's tasks newest first. Status defaults to
// active and "all" lists every status.
func (s *TaskService) ListForStation(ctx context.Context, query dto.StationTaskQuery, actor *models.JWTClaims) ([]models.TaskSummary, error) {
	query.StationID = strings.TrimSpace(query.StationID)
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task query")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.access.AuthorizeStation(ctx, actor, query.StationID); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByStation(ctx, query.StationID, query.StatusFilter())
	if err != nil {
		return nil, storeError(err, "", "failed to list tasks")
	}
	if tasks == nil {
		tasks = []models.TaskSummary{}
	}
	return tasks, nil
}

// Get returns one task of a station the actor manages, with participation totals.
func (s *TaskService) Get(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.TaskSummary, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	task, err := s.tasks.FindSummaryByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err, "task not found", "failed to load task")
	}
	if err := s.access.AuthorizeStation(ctx, actor, task.StationID); err != nil {
		return nil, err
	}
	return task, nil
}

// ListForInviteCode returns the active tasks visible through an invite code.
func (s *TaskService) ListForInviteCode(ctx context.Context, code string) ([]models.TaskSummary, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	invite, err := s.activeInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListActiveByInviteCode(ctx, invite.ID)
	if err != nil {
		return nil, storeError(err, "", "failed to list tasks")
	}
	if tasks == nil {
		tasks = []models.TaskSummary{}
	}
	return tasks, nil
}

// FanDetail returns one task as seen through an invite code, with the
// nickname's participation when supplied.
func (s *TaskService) FanDetail(ctx context.Context, taskID, code, nickname string) (*dto.FanTaskDetail, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	invite, err := s.activeInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err, "task not found", "failed to load task")
	}
	if task.StationID != invite.StationID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invite code does not grant access to this task")
	}

	detail := &dto.FanTaskDetail{Task: *task, Expired: task.Expired(s.now().UTC())}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return detail, nil
	}
	detail.Participation = &dto.Participation{Nickname: nickname}
	participant, err := s.participants.FindParticipant(ctx, task.ID, nickname)
	switch {
	case err == nil:
		detail.Participation.HasParticipated = participant.SubmissionCount > 0
		detail.Participation.SubmissionCount = participant.SubmissionCount
		detail.Participation.PointsEarned = participant.PointsEarned
	case !isNoRows(err):
		return nil, storeError(err, "", "failed to load participation")
	}
	return detail, nil
}

// FocusStatus reports an invite code's focus task and cooldown state.
func (s *TaskService) FocusStatus(ctx context.Context, code string) (*models.FocusStatus, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	invite, err := s.invites.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, storeError(err, "invite code not found", "failed to load invite code")
	}

	now := s.now().UTC()
	remaining := s.guard.Remaining(*invite, now)
	status := &models.FocusStatus{
		InviteCode:       invite.Code,
		State:            s.guard.State(*invite, now),
		InCooldown:       remaining > 0,
		RemainingSeconds: int64((remaining + time.Second - 1) / time.Second),
		LastChange:       invite.LastFocusChange,
		CooldownUntil:    s.guard.Until(*invite),
		CurrentTime:      now,
	}

	ref, err := s.tasks.FindActiveFocusByInviteCode(ctx, invite.ID)
	switch {
	case err == nil:
		status.HasFocusTask = true
		status.FocusTask = ref
	case !isNoRows(err):
		return nil, storeError(err, "", "failed to load focus task")
	}
	return status, nil
}

// applyFocus runs the cooldown guard for a focus flip on a locked task. The
// caller holds the station lock, so the station's focus rows are only ever
// written by one transaction at a time. The task's own invite code is the
// cooldown authority. Unsetting other tasks does not touch their invite
// codes' clocks.
func (s *TaskService) applyFocus(ctx context.Context, tx repository.TaskTx, task *models.Task, want bool, now time.Time) (*models.FocusChange, error) {
	change := &models.FocusChange{TaskID: task.ID, InviteCodeID: task.InviteCodeID, IsFocus: want}
	code, err := tx.LockInviteCode(ctx, task.InviteCodeID)
	if err != nil {
		return nil, storeError(err, "invite code not found", "failed to load invite code")
	}
	if task.IsFocus == want {
		if until := s.guard.Until(*code); until != nil {
			change.CooldownUntil = *until
		}
		return change, nil
	}

	if task.Status != models.TaskStatusActive {
		return nil, appErrors.WithDetails(appErrors.ErrRejected, "only active tasks can change focus", map[string]interface{}{"status": task.Status})
	}
	if err := s.checkCooldown(*code, now); err != nil {
		return nil, err
	}

	if want {
		if change.UnsetTaskCount, err = tx.ClearStationFocus(ctx, task.StationID, task.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.SetTaskFocus(ctx, task.ID, want); err != nil {
		return nil, err
	}
	if err := tx.TouchFocusChange(ctx, code.ID, now); err != nil {
		return nil, err
	}
	change.Changed = true
	change.CooldownUntil = now.Add(s.guard.Window())
	return change, nil
}

func (s *TaskService) checkCooldown(code models.InviteCode, now time.Time) error {
	if err := s.guard.Check(code, now); err != nil {
		s.metrics.RecordCooldownRejection()
		s.logger.Info("focus change refused during cooldown", zap.String("invite_code_id", code.ID))
		return err
	}
	return nil
}

func (s *TaskService) focusChanged(task *models.Task, focus bool, unset int64) {
	s.metrics.RecordFocusChange(focus)
	s.invalidator.Invalidate(task.StationID)
	s.logger.Info("focus task changed",
		zap.String("task_id", task.ID),
		zap.String("station_id", task.StationID),
		zap.String("invite_code_id", task.InviteCodeID),
		zap.Bool("is_focus", focus),
		zap.Int64("unset_tasks", unset),
	)
}

func (s *TaskService) authorizeTask(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.Task, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err, "task not found", "failed to load task")
	}
	if err := s.access.AuthorizeStation(ctx, actor, task.StationID); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) activeInvite(ctx context.Context, code string) (*models.InviteCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invite_code is required")
	}
	invite, err := s.invites.FindByCode(ctx, code)
	if err != nil {
		return nil, storeError(err, "invite code not found", "failed to load invite code")
	}
	if !invite.Active() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invite code is inactive")
	}
	return invite, nil
}
