package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/station-tasks-api/internal/dto"
	"github.com/noah-isme/station-tasks-api/internal/middleware"
	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
	"github.com/noah-isme/station-tasks-api/pkg/response"
)

type fanTaskService interface {
	ListForInviteCode(ctx context.Context, code string) ([]models.TaskSummary, error)
	FanDetail(ctx context.Context, taskID, code, nickname string) (*dto.FanTaskDetail, error)
	FocusStatus(ctx context.Context, code string) (*models.FocusStatus, error)
}

type submissionRecorder interface {
	Record(ctx context.Context, taskID string, req dto.SubmitRequest) (*models.SubmissionRecord, error)
}

type fanLeaderboardService interface {
	ForFan(ctx context.Context, query dto.LeaderboardQuery) (*models.Leaderboard, bool, error)
}

// FanHandler exposes the invite-code scoped endpoints used by participants.
type FanHandler struct {
	tasks        fanTaskService
	submissions  submissionRecorder
	leaderboards fanLeaderboardService
}

// NewFanHandler builds a new handler.
func NewFanHandler(tasks fanTaskService, submissions submissionRecorder, leaderboards fanLeaderboardService) *FanHandler {
	return &FanHandler{tasks: tasks, submissions: submissions, leaderboards: leaderboards}
}

// ListTasks godoc
// @Summary List active tasks of an invite code
// @Tags Fan
// @Produce json
// @Param invite_code query string true "Invite code"
// @Success 200 {object} response.Envelope
// @Router /fan/tasks [get]
func (h *FanHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.ListForInviteCode(c.Request.Context(), c.Query("invite_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, nil)
}

// GetTask godoc
// @Summary Get a task with the caller's participation
// @Tags Fan
// @Produce json
// @Param taskId path string true "Task ID"
// @Param invite_code query string true "Invite code"
// @Param nickname query string false "Participant nickname"
// @Success 200 {object} response.Envelope
// @Router /fan/tasks/{taskId} [get]
func (h *FanHandler) GetTask(c *gin.Context) {
	detail, err := h.tasks.FanDetail(c.Request.Context(), c.Param("taskId"), c.Query("invite_code"), c.Query("nickname"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Submit godoc
// @Summary Record a submission and score it
// @Tags Fan
// @Accept json
// @Produce json
// @Param taskId path string true "Task ID"
// @Param payload body dto.SubmitRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /fan/tasks/{taskId}/submissions [post]
func (h *FanHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	record, err := h.submissions.Record(c.Request.Context(), c.Param("taskId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Leaderboard godoc
// @Summary Leaderboard for an invite code's station
// @Tags Fan
// @Produce json
// @Param invite_code query string true "Invite code"
// @Param type query string false "overall, daily, focus or task"
// @Param task_id query string false "Task ID for task leaderboards"
// @Param nickname query string false "Nickname to report in user_info"
// @Success 200 {object} response.Envelope
// @Router /fan/leaderboard [get]
func (h *FanHandler) Leaderboard(c *gin.Context) {
	var query dto.LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid leaderboard query"))
		return
	}
	query.StationID = ""
	board, hit, err := h.leaderboards.ForFan(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}

// FocusStatus godoc
// @Summary Focus task and cooldown state of an invite code
// @Tags Fan
// @Produce json
// @Param code path string true "Invite code"
// @Success 200 {object} response.Envelope
// @Router /fan/invite-codes/{code}/focus-status [get]
func (h *FanHandler) FocusStatus(c *gin.Context) {
	status, err := h.tasks.FocusStatus(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
