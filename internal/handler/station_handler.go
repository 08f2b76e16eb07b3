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

type stationTaskService interface {
	ListForStation(ctx context.Context, query dto.StationTaskQuery, actor *models.JWTClaims) ([]models.TaskSummary, error)
	Get(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.TaskSummary, error)
	Create(ctx context.Context, req dto.CreateTaskRequest, actor *models.JWTClaims) (*models.Task, error)
	Update(ctx context.Context, taskID string, req dto.UpdateTaskRequest, actor *models.JWTClaims) (*dto.TaskUpdateResult, error)
	SetFocus(ctx context.Context, taskID string, req dto.SetFocusRequest, actor *models.JWTClaims) (*models.FocusChange, error)
	Settle(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.Task, error)
}

type stationSubmissionService interface {
	MarkAbnormal(ctx context.Context, submissionID string, req dto.MarkAbnormalRequest, actor *models.JWTClaims) (*models.Reversal, error)
	ListByTask(ctx context.Context, taskID string, query dto.SubmissionListQuery, actor *models.JWTClaims) ([]models.SubmissionDetail, *models.Pagination, error)
	Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.SubmissionDetail, error)
}

type stationLeaderboardService interface {
	ForStation(ctx context.Context, query dto.LeaderboardQuery, actor *models.JWTClaims) (*models.Leaderboard, bool, error)
}

// StationHandler exposes operator endpoints for managing tasks and reviewing submissions.
type StationHandler struct {
	tasks        stationTaskService
	submissions  stationSubmissionService
	leaderboards stationLeaderboardService
}

// NewStationHandler builds a new handler.
func NewStationHandler(tasks stationTaskService, submissions stationSubmissionService, leaderboards stationLeaderboardService) *StationHandler {
	return &StationHandler{tasks: tasks, submissions: submissions, leaderboards: leaderboards}
}

// ListTasks godoc
// @Summary List a station's tasks, newest first
// @Tags Station
// @Produce json
// @Security BearerAuth
// @Param station_id query string true "Station ID"
// @Param status query string false "active (default), completed, cancelled or all"
// @Success 200 {object} response.Envelope
// @Router /station/tasks [get]
func (h *StationHandler) ListTasks(c *gin.Context) {
	var query dto.StationTaskQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task query"))
		return
	}
	tasks, err := h.tasks.ListForStation(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, nil)
}

// GetTask godoc
// @Summary Get a task with participation totals
// @Tags Station
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /station/tasks/{taskId} [get]
func (h *StationHandler) GetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("taskId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// CreateTask godoc
// @Summary Publish a task
// @Tags Station
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTaskRequest true "Task payload"
// @Success 201 {object} response.Envelope
// @Router /station/tasks [post]
func (h *StationHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task payload"))
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// UpdateTask godoc
// @Summary Edit a task
// @Tags Station
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Param payload body dto.UpdateTaskRequest true "Partial task payload"
// @Success 200 {object} response.Envelope
// @Router /station/tasks/{taskId} [patch]
func (h *StationHandler) UpdateTask(c *gin.Context) {
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task payload"))
		return
	}
	result, err := h.tasks.Update(c.Request.Context(), c.Param("taskId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SetFocus godoc
// @Summary Set or clear the station's focus task
// @Tags Station
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Param payload body dto.SetFocusRequest true "Focus flag"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /station/tasks/{taskId}/focus [put]
func (h *StationHandler) SetFocus(c *gin.Context) {
	var req dto.SetFocusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid focus payload"))
		return
	}
	change, err := h.tasks.SetFocus(c.Request.Context(), c.Param("taskId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// SettleTask godoc
// @Summary Mark a task completed
// @Tags Station
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /station/tasks/{taskId}/settle [post]
func (h *StationHandler) SettleTask(c *gin.Context) {
	task, err := h.tasks.Settle(c.Request.Context(), c.Param("taskId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// ListSubmissions godoc
// @Summary List a task's submissions, newest first
// @Tags Station
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /station/tasks/{taskId}/submissions [get]
func (h *StationHandler) ListSubmissions(c *gin.Context) {
	var query dto.SubmissionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pagination"))
		return
	}
	items, page, err := h.submissions.ListByTask(c.Request.Context(), c.Param("taskId"), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// GetSubmission godoc
// @Summary Get a submission
// @Tags Station
// @Produce json
// @Security BearerAuth
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /station/submissions/{submissionId} [get]
func (h *StationHandler) GetSubmission(c *gin.Context) {
	detail, err := h.submissions.Get(c.Request.Context(), c.Param("submissionId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// MarkAbnormal godoc
// @Summary Disqualify a submission and reverse its points
// @Tags Station
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param submissionId path string true "Submission ID"
// @Param payload body dto.MarkAbnormalRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /station/submissions/{submissionId}/mark-abnormal [post]
func (h *StationHandler) MarkAbnormal(c *gin.Context) {
	var req dto.MarkAbnormalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid abnormal marking payload"))
		return
	}
	reversal, err := h.submissions.MarkAbnormal(c.Request.Context(), c.Param("submissionId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reversal, nil)
}

// Rankings godoc
// @Summary Station rankings, including custom date ranges
// @Tags Station
// @Produce json
// @Security BearerAuth
// @Param station_id query string true "Station ID"
// @Param type query string false "overall, daily, focus, task or custom_range"
// @Param task_id query string false "Task ID for task rankings"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Param nickname query string false "Nickname to report in user_info"
// @Success 200 {object} response.Envelope
// @Router /station/rankings [get]
func (h *StationHandler) Rankings(c *gin.Context) {
	var query dto.LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ranking query"))
		return
	}
	board, hit, err := h.leaderboards.ForStation(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}
