package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/station-tasks-api/internal/dto"
	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
)

const (
	dateLayout         = "2006-01-02"
	maxCustomRangeDays = 366
)

type leaderboardReader interface {
	Overall(ctx context.Context, stationID string) ([]models.LeaderboardRow, error)
	Window(ctx context.Context, stationID string, start, end time.Time) ([]models.LeaderboardRow, error)
	Focus(ctx context.Context, stationID string) ([]models.LeaderboardRow, error)
	Task(ctx context.Context, taskID string) ([]models.LeaderboardRow, error)
}

// LeaderboardServiceConfig tunes leaderboard reads.
type LeaderboardServiceConfig struct {
	CacheTTL     time.Duration
	StoreTimeout time.Duration
}

// LeaderboardService ranks participants. Rankings are informational and may
// be served from a short-lived cache.
type LeaderboardService struct {
	repo      leaderboardReader
	tasks     taskFinder
	invites   inviteCodeReader
	access    stationAuthorizer
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       LeaderboardServiceConfig
	now       func() time.Time
}

// NewLeaderboardService constructs the leaderboard service.
func NewLeaderboardService(
	repo leaderboardReader,
	tasks taskFinder,
	invites inviteCodeReader,
	access stationAuthorizer,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg LeaderboardServiceConfig,
) *LeaderboardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardService{
		repo:      repo,
		tasks:     tasks,
		invites:   invites,
		access:    access,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ForFan answers a leaderboard query scoped by an invite code.
func (s *LeaderboardService) ForFan(ctx context.Context, query dto.LeaderboardQuery) (*models.Leaderboard, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leaderboard query")
	}
	code := strings.TrimSpace(query.InviteCode)
	if code == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invite_code is required")
	}
	kind, err := models.ParseLeaderboardKind(query.Type)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leaderboard type")
	}
	if kind == models.LeaderboardCustomRange {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "custom ranges are only available to station operators")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	invite, err := s.invites.FindByCode(ctx, code)
	if err != nil {
		return nil, false, storeError(err, "invite code not found", "failed to load invite code")
	}
	if !invite.Active() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "invite code is inactive")
	}
	return s.build(ctx, invite.StationID, kind, query)
}

// ForStation answers an operator ranking query for an owned station.
func (s *LeaderboardService) ForStation(ctx context.Context, query dto.LeaderboardQuery, actor *models.JWTClaims) (*models.Leaderboard, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leaderboard query")
	}
	kind, err := models.ParseLeaderboardKind(query.Type)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leaderboard type")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.access.AuthorizeStation(ctx, actor, query.StationID); err != nil {
		return nil, false, err
	}
	return s.build(ctx, query.StationID, kind, query)
}

// build returns the ranked leaderboard and whether it came from cache.
func (s *LeaderboardService) build(ctx context.Context, stationID string, kind models.LeaderboardKind, query dto.LeaderboardQuery) (*models.Leaderboard, bool, error) {
	now := s.now().UTC()
	board := &models.Leaderboard{Kind: kind, StationID: stationID}

	var (
		scope string
		load  func() ([]models.LeaderboardRow, error)
	)
	switch kind {
	case models.LeaderboardOverall:
		scope = "all"
		load = func() ([]models.LeaderboardRow, error) { return s.repo.Overall(ctx, stationID) }
	case models.LeaderboardFocus:
		scope = "all"
		load = func() ([]models.LeaderboardRow, error) { return s.repo.Focus(ctx, stationID) }
	case models.LeaderboardDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		board.Window = &models.LeaderboardWindow{Start: start, End: start.AddDate(0, 0, 1)}
		scope = start.Format(dateLayout)
		load = func() ([]models.LeaderboardRow, error) {
			return s.repo.Window(ctx, stationID, board.Window.Start, board.Window.End)
		}
	case models.LeaderboardCustomRange:
		window, err := parseRange(query.StartDate, query.EndDate)
		if err != nil {
			return nil, false, err
		}
		board.Window = window
		scope = fmt.Sprintf("%s_%s", window.Start.Format(dateLayout), window.End.Format(dateLayout))
		load = func() ([]models.LeaderboardRow, error) { return s.repo.Window(ctx, stationID, window.Start, window.End) }
	case models.LeaderboardTask:
		task, err := s.taskInStation(ctx, stationID, query.TaskID)
		if err != nil {
			return nil, false, err
		}
		board.TaskID = task.ID
		board.Title = task.Title
		scope = task.ID
		load = func() ([]models.LeaderboardRow, error) { return s.repo.Task(ctx, task.ID) }
	}

	// The generation is read before the rows so a board loaded ahead of an
	// invalidation lands under a key later reads no longer use.
	gen, cacheable := s.cache.Generation(ctx, leaderboardGenerationKey(stationID))
	key := leaderboardKey(stationID, gen, kind, scope)
	var cached models.Leaderboard
	if cacheable && s.cache.Get(ctx, key, &cached) {
		cached.Self = selfEntry(cached.Entries, query.Nickname)
		return &cached, true, nil
	}

	rows, err := load()
	if err != nil {
		return nil, false, storeError(err, "", "failed to load leaderboard")
	}
	board.Entries = rankRows(rows)
	board.GeneratedAt = now
	if cacheable {
		s.cache.Set(ctx, key, board, s.cfg.CacheTTL)
	}

	board.Self = selfEntry(board.Entries, query.Nickname)
	return board, false, nil
}

func (s *LeaderboardService) taskInStation(ctx context.Context, stationID, taskID string) (*models.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "task_id is required for task leaderboards")
	}
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err, "task not found", "failed to load task")
	}
	if task.StationID != stationID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "task belongs to another station")
	}
	return task, nil
}

// rankRows assigns 1-based ranks by position; ties get consecutive ranks.
func rankRows(rows []models.LeaderboardRow) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = models.LeaderboardEntry{
			Rank:                  i + 1,
			Nickname:              row.Nickname,
			Points:                row.Points,
			Submissions:           row.Submissions,
			HasFocusTaskCompleted: row.FocusTouched,
		}
	}
	return entries
}

// selfEntry finds the nickname's entry, synthesizing a zero entry ranked
// after everyone when the nickname has not scored.
func selfEntry(entries []models.LeaderboardEntry, nickname string) *models.LeaderboardEntry {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil
	}
	for i := range entries {
		if entries[i].Nickname == nickname {
			entry := entries[i]
			return &entry
		}
	}
	return &models.LeaderboardEntry{Rank: len(entries) + 1, Nickname: nickname}
}

// parseRange turns inclusive calendar dates into a half-open UTC window.
func parseRange(startRaw, endRaw string) (*models.LeaderboardWindow, error) {
	if startRaw == "" || endRaw == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date and end_date are required for custom ranges")
	}
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	end = end.AddDate(0, 0, 1)
	if end.Sub(start) > maxCustomRangeDays*24*time.Hour {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "date range is too long", map[string]interface{}{"max_days": maxCustomRangeDays})
	}
	return &models.LeaderboardWindow{Start: start, End: end}, nil
}

func leaderboardKey(stationID string, gen int64, kind models.LeaderboardKind, scope string) string {
	return fmt.Sprintf("lb:%s:g%d:%s:%s", stationID, gen, kind, scope)
}

func leaderboardGenerationKey(stationID string) string {
	return fmt.Sprintf("lbgen:%s", stationID)
}

func leaderboardPattern(stationID string) string {
	return fmt.Sprintf("lb:%s:*", stationID)
}
