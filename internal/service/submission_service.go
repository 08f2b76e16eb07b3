package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/station-tasks-api/internal/dto"
	"github.com/noah-isme/station-tasks-api/internal/models"
	"github.com/noah-isme/station-tasks-api/internal/repository"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
)

const defaultMaxImages = 9

type ledgerStore interface {
	WithinTx(ctx context.Context, fn func(repository.LedgerTx) error) error
}

type inviteCodeReader interface {
	FindByCode(ctx context.Context, code string) (*models.InviteCode, error)
}

type submissionReader interface {
	ListByTask(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	FindDetail(ctx context.Context, id string) (*models.SubmissionDetail, error)
}

type taskFinder interface {
	FindByID(ctx context.Context, id string) (*models.Task, error)
}

type stationAuthorizer interface {
	AuthorizeStation(ctx context.Context, actor *models.JWTClaims, stationID string) error
}

type leaderboardInvalidator interface {
	Invalidate(stationID string)
}

// SubmissionServiceConfig tunes submission handling.
type SubmissionServiceConfig struct {
	MaxImages    int
	StoreTimeout time.Duration
}

// SubmissionService records scored submissions and reverses abnormal ones.
type SubmissionService struct {
	ledger      ledgerStore
	invites     inviteCodeReader
	submissions submissionReader
	tasks       taskFinder
	access      stationAuthorizer
	invalidator leaderboardInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         SubmissionServiceConfig
	now         func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(
	ledger ledgerStore,
	invites inviteCodeReader,
	submissions submissionReader,
	tasks taskFinder,
	access stationAuthorizer,
	invalidator leaderboardInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SubmissionServiceConfig,
) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = defaultMaxImages
	}
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	return &SubmissionService{
		ledger:      ledger,
		invites:     invites,
		submissions: submissions,
		tasks:       tasks,
		access:      access,
		invalidator: invalidator,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Record scores a submission and appends it to the log in one transaction.
// Concurrent submissions by one nickname serialize on the participant row,
// so at most one of them is scored as the first.
func (s *SubmissionService) Record(ctx context.Context, taskID string, req dto.SubmitRequest) (*models.SubmissionRecord, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	req.InviteCode = strings.TrimSpace(req.InviteCode)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	images, err := s.cleanImages(req.ImageURLs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	invite, err := s.invites.FindByCode(ctx, req.InviteCode)
	if err != nil {
		return nil, storeError(err, "invite code not found", "failed to load invite code")
	}
	if !invite.Active() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invite code is inactive")
	}

	now := s.now().UTC()
	var (
		record models.SubmissionRecord
		task   *models.Task
	)
	start := time.Now()
	err = s.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		var err error
		if task, err = tx.LockTask(ctx, taskID); err != nil {
			return storeError(err, "task not found", "failed to load task")
		}
		if err := checkSubmittable(*task, *invite, now); err != nil {
			return err
		}

		participant, err := tx.LockParticipant(ctx, task.ID, req.Nickname, now)
		if err != nil {
			return err
		}
		award := ComputeAward(*task, participant.SubmissionCount, now)

		updated, err := tx.ApplyAward(ctx, participant.ID, award)
		if err != nil {
			return err
		}
		submission := models.Submission{
			ParticipantID: participant.ID,
			SubmittedAt:   now,
			PointsEarned:  award,
			Comment:       strings.TrimSpace(req.Comment),
			ImageURLs:     images,
		}
		if err := tx.InsertSubmission(ctx, &submission); err != nil {
			return err
		}

		record = models.SubmissionRecord{
			PointsAwarded: award,
			FirstTime:     participant.SubmissionCount == 0,
			Submission:    submission,
			Participant:   updated.Totals(),
		}
		return nil
	})
	s.metrics.ObserveDBQuery("record_submission", time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrRejected) {
			s.metrics.RecordSubmission(OutcomeRejected, 0)
		}
		return nil, storeError(err, "", "failed to record submission")
	}

	outcome := OutcomeAwarded
	if record.PointsAwarded == 0 && !record.FirstTime {
		outcome = OutcomeRepeat
	}
	s.metrics.RecordSubmission(outcome, record.PointsAwarded)
	s.invalidator.Invalidate(task.StationID)
	s.logger.Info("submission recorded",
		zap.String("task_id", task.ID),
		zap.String("station_id", task.StationID),
		zap.String("invite_code", invite.Code),
		zap.String("nickname", req.Nickname),
		zap.String("submission_id", record.Submission.ID),
		zap.Int("points", record.PointsAwarded),
		zap.Bool("first_time", record.FirstTime),
	)
	return &record, nil
}

// MarkAbnormal disqualifies a submission and removes its points from the
// participant, flooring the totals at zero. The transition is one-way.
func (s *SubmissionService) MarkAbnormal(ctx context.Context, submissionID string, req dto.MarkAbnormalRequest, actor *models.JWTClaims) (*models.Reversal, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid abnormal marking payload")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	detail, err := s.submissions.FindDetail(ctx, submissionID)
	if err != nil {
		return nil, storeError(err, "submission not found", "failed to load submission")
	}
	if err := s.access.AuthorizeStation(ctx, actor, detail.StationID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	reversal := models.Reversal{
		SubmissionID: submissionID,
		Reason:       req.Reason,
		MarkedBy:     actor.UserID,
		MarkedAt:     now,
	}
	start := time.Now()
	err = s.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		submission, err := tx.LockSubmission(ctx, submissionID)
		if err != nil {
			return storeError(err, "submission not found", "failed to load submission")
		}
		if submission.IsAbnormal {
			return appErrors.Clone(appErrors.ErrRejected, "submission is already marked abnormal")
		}
		if err := tx.MarkSubmissionAbnormal(ctx, submission.ID, req.Reason, actor.UserID, now); err != nil {
			if errors.Is(err, repository.ErrAlreadyAbnormal) {
				return appErrors.Clone(appErrors.ErrRejected, "submission is already marked abnormal")
			}
			return err
		}
		participant, err := tx.ReversePoints(ctx, submission.ParticipantID, submission.PointsEarned)
		if err != nil {
			return err
		}
		reversal.PointsDeducted = submission.PointsEarned
		reversal.Participant = participant.Totals()
		return nil
	})
	s.metrics.ObserveDBQuery("mark_abnormal", time.Since(start))
	if err != nil {
		return nil, storeError(err, "", "failed to mark submission abnormal")
	}

	s.metrics.RecordReversal(reversal.PointsDeducted)
	s.invalidator.Invalidate(detail.StationID)
	s.logger.Info("submission marked abnormal",
		zap.String("submission_id", submissionID),
		zap.String("task_id", detail.TaskID),
		zap.String("marked_by", actor.UserID),
		zap.Int("points_deducted", reversal.PointsDeducted),
		zap.Int("participant_points", reversal.Participant.PointsEarned),
	)
	return &reversal, nil
}

// ListByTask returns a task's submissions newest first.
func (s *SubmissionService) ListByTask(ctx context.Context, taskID string, query dto.SubmissionListQuery, actor *models.JWTClaims) ([]models.SubmissionDetail, *models.Pagination, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, nil, storeError(err, "task not found", "failed to load task")
	}
	if err := s.access.AuthorizeStation(ctx, actor, task.StationID); err != nil {
		return nil, nil, err
	}

	filter := models.SubmissionFilter{TaskID: taskID, Page: query.Page, PageSize: query.PageSize}
	items, total, err := s.submissions.ListByTask(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "", "failed to list submissions")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one submission with its participant and task.
func (s *SubmissionService) Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.SubmissionDetail, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	detail, err := s.submissions.FindDetail(ctx, submissionID)
	if err != nil {
		return nil, storeError(err, "submission not found", "failed to load submission")
	}
	if err := s.access.AuthorizeStation(ctx, actor, detail.StationID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *SubmissionService) cleanImages(refs []string) (models.ImageList, error) {
	images := make(models.ImageList, 0, len(refs))
	for _, ref := range refs {
		if trimmed := strings.TrimSpace(ref); trimmed != "" {
			images = append(images, trimmed)
		}
	}
	if len(images) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one image is required")
	}
	if len(images) > s.cfg.MaxImages {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "too many images", map[string]interface{}{"max_images": s.cfg.MaxImages})
	}
	return images, nil
}

// checkSubmittable enforces the invite-code linkage, task status and due date.
func checkSubmittable(task models.Task, invite models.InviteCode, now time.Time) error {
	if task.StationID != invite.StationID {
		return appErrors.Clone(appErrors.ErrForbidden, "invite code does not grant access to this task")
	}
	if task.Status != models.TaskStatusActive {
		return appErrors.WithDetails(appErrors.ErrRejected, "task is not accepting submissions", map[string]interface{}{
			"reason": "inactive",
			"status": task.Status,
		})
	}
	if task.Expired(now) && !task.FlameMode {
		return appErrors.WithDetails(appErrors.ErrRejected, "task has expired", map[string]interface{}{
			"reason":   "expired",
			"due_date": task.DueDate.UTC().Format(time.RFC3339),
		})
	}
	return nil
}
