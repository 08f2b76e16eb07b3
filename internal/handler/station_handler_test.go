package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/station-tasks-api/internal/dto"
	"github.com/noah-isme/station-tasks-api/internal/middleware"
	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
	"github.com/noah-isme/station-tasks-api/pkg/response"
)

type stationServiceMock struct {
	actor       *models.JWTClaims
	taskID      string
	createReq   dto.CreateTaskRequest
	updateReq   dto.UpdateTaskRequest
	focusReq    dto.SetFocusRequest
	focusErr    error
	markReq     dto.MarkAbnormalRequest
	listQuery   dto.SubmissionListQuery
	rankQuery   dto.LeaderboardQuery
	taskQuery   dto.StationTaskQuery
	taskErr     error
	settleCalls int
}

func (m *stationServiceMock) Create(ctx context.Context, req dto.CreateTaskRequest, actor *models.JWTClaims) (*models.Task, error) {
	m.createReq, m.actor = req, actor
	return &models.Task{ID: "task-1", Title: req.Title}, nil
}

func (m *stationServiceMock) Update(ctx context.Context, taskID string, req dto.UpdateTaskRequest, actor *models.JWTClaims) (*dto.TaskUpdateResult, error) {
	m.taskID, m.updateReq, m.actor = taskID, req, actor
	return &dto.TaskUpdateResult{Task: &models.Task{ID: taskID}}, nil
}

func (m *stationServiceMock) SetFocus(ctx context.Context, taskID string, req dto.SetFocusRequest, actor *models.JWTClaims) (*models.FocusChange, error) {
	m.taskID, m.focusReq, m.actor = taskID, req, actor
	if m.focusErr != nil {
		return nil, m.focusErr
	}
	return &models.FocusChange{TaskID: taskID, IsFocus: *req.IsFocus, Changed: true}, nil
}

func (m *stationServiceMock) Settle(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.Task, error) {
	m.settleCalls++
	m.taskID, m.actor = taskID, actor
	return &models.Task{ID: taskID, Status: models.TaskStatusCompleted}, nil
}

func (m *stationServiceMock) MarkAbnormal(ctx context.Context, submissionID string, req dto.MarkAbnormalRequest, actor *models.JWTClaims) (*models.Reversal, error) {
	m.markReq, m.actor = req, actor
	return &models.Reversal{SubmissionID: submissionID, PointsDeducted: 30}, nil
}

func (m *stationServiceMock) ListByTask(ctx context.Context, taskID string, query dto.SubmissionListQuery, actor *models.JWTClaims) ([]models.SubmissionDetail, *models.Pagination, error) {
	m.taskID, m.listQuery, m.actor = taskID, query, actor
	return []models.SubmissionDetail{{Nickname: "mika"}}, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: 1}, nil
}

func (m *stationServiceMock) Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.SubmissionDetail, error) {
	m.actor = actor
	return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
}

func (m *stationServiceMock) ForStation(ctx context.Context, query dto.LeaderboardQuery, actor *models.JWTClaims) (*models.Leaderboard, bool, error) {
	m.rankQuery, m.actor = query, actor
	return &models.Leaderboard{Kind: models.LeaderboardCustomRange, Entries: []models.LeaderboardEntry{}}, false, nil
}

// stationTaskMock adds the task reads, whose Get would collide with the
// submission lookup on stationServiceMock.
type stationTaskMock struct {
	*stationServiceMock
}

func (m stationTaskMock) ListForStation(ctx context.Context, query dto.StationTaskQuery, actor *models.JWTClaims) ([]models.TaskSummary, error) {
	m.taskQuery, m.actor = query, actor
	return []models.TaskSummary{
		{Task: models.Task{ID: "task-2", StationID: query.StationID}, ParticipantCount: 0},
		{Task: models.Task{ID: "task-1", StationID: query.StationID}, ParticipantCount: 4, SubmissionCount: 6},
	}, nil
}

func (m stationTaskMock) Get(ctx context.Context, taskID string, actor *models.JWTClaims) (*models.TaskSummary, error) {
	m.taskID, m.actor = taskID, actor
	if m.taskErr != nil {
		return nil, m.taskErr
	}
	return &models.TaskSummary{Task: models.Task{ID: taskID, Status: models.TaskStatusActive}, ParticipantCount: 4}, nil
}

var operator = &models.JWTClaims{UserID: "op-1", Role: models.RoleStationAdmin}

func newStationRouter(mock *stationServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStationHandler(stationTaskMock{mock}, mock, mock)
	r := gin.New()
	r.Use(middleware.WithResponseMeta(), func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, operator)
		c.Next()
	})
	r.GET("/station/tasks", h.ListTasks)
	r.GET("/station/tasks/:taskId", h.GetTask)
	r.POST("/station/tasks", h.CreateTask)
	r.PATCH("/station/tasks/:taskId", h.UpdateTask)
	r.PUT("/station/tasks/:taskId/focus", h.SetFocus)
	r.POST("/station/tasks/:taskId/settle", h.SettleTask)
	r.GET("/station/tasks/:taskId/submissions", h.ListSubmissions)
	r.GET("/station/submissions/:submissionId", h.GetSubmission)
	r.POST("/station/submissions/:submissionId/mark-abnormal", h.MarkAbnormal)
	r.GET("/station/rankings", h.Rankings)
	return r
}

func TestStationHandlerCreateTask(t *testing.T) {
	mock := &stationServiceMock{}
	body := []byte(`{"station_id":"st-1","invite_code_id":"ic-1","title":"Stream","points":10,"is_focus_task":true}`)
	w := perform(newStationRouter(mock), http.MethodPost, "/station/tasks", body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mock.createReq.IsFocus)
	assert.Nil(t, mock.createReq.FlameMode)
	assert.Same(t, operator, mock.actor)
}

func TestStationHandlerUpdateTask(t *testing.T) {
	mock := &stationServiceMock{}
	body := []byte(`{"title":"New","clear_due_date":true,"is_focus_task":false}`)
	w := perform(newStationRouter(mock), http.MethodPatch, "/station/tasks/task-7", body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "task-7", mock.taskID)
	require.NotNil(t, mock.updateReq.Title)
	assert.Equal(t, "New", *mock.updateReq.Title)
	assert.True(t, mock.updateReq.ClearDueDate)
	require.NotNil(t, mock.updateReq.IsFocus)
	assert.False(t, *mock.updateReq.IsFocus)
	assert.Nil(t, mock.updateReq.Points)
}

func TestStationHandlerSetFocusCooldown(t *testing.T) {
	mock := &stationServiceMock{focusErr: appErrors.WithDetails(appErrors.ErrRejected, "focus task cooldown has 3 hours 0 minutes remaining", map[string]interface{}{
		"remaining_hours":          int64(3),
		response.RetryAfterDetail: int64(10800),
	})}
	w := perform(newStationRouter(mock), http.MethodPut, "/station/tasks/task-1/focus", []byte(`{"is_focus_task":true}`))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "10800", w.Header().Get("Retry-After"))
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, float64(3), errBody["details"].(map[string]interface{})["remaining_hours"])
}

func TestStationHandlerSetFocus(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodPut, "/station/tasks/task-1/focus", []byte(`{"is_focus_task":true}`))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.focusReq.IsFocus)
	assert.True(t, *mock.focusReq.IsFocus)
}

func TestStationHandlerSettle(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodPost, "/station/tasks/task-1/settle", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mock.settleCalls)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "completed", data["status"])
}

func TestStationHandlerListSubmissions(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodGet, "/station/tasks/task-1/submissions?page=2&page_size=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.SubmissionListQuery{Page: 2, PageSize: 5}, mock.listQuery)
	pagination := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["total_count"])
}

func TestStationHandlerListSubmissionsBadPage(t *testing.T) {
	w := perform(newStationRouter(&stationServiceMock{}), http.MethodGet, "/station/tasks/task-1/submissions?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStationHandlerGetSubmissionNotFound(t *testing.T) {
	w := perform(newStationRouter(&stationServiceMock{}), http.MethodGet, "/station/submissions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStationHandlerMarkAbnormal(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodPost, "/station/submissions/sub-1/mark-abnormal", []byte(`{"reason":"reused photo"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reused photo", mock.markReq.Reason)
	var envelope struct {
		Data models.Reversal `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 30, envelope.Data.PointsDeducted)
}

func TestStationHandlerRankings(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodGet, "/station/rankings?station_id=st-1&type=custom_range&start_date=2024-05-01&end_date=2024-05-07", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.LeaderboardQuery{StationID: "st-1", Type: "custom_range", StartDate: "2024-05-01", EndDate: "2024-05-07"}, mock.rankQuery)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, false, envelope["meta"].(map[string]interface{})["cache_hit"])
	assert.NotNil(t, envelope["data"].(map[string]interface{})["leaderboard"])
}

func TestStationHandlerListTasks(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodGet, "/station/tasks?station_id=st-1&status=all", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.StationTaskQuery{StationID: "st-1", Status: "all"}, mock.taskQuery)
	assert.Same(t, operator, mock.actor)
	data := decodeEnvelope(t, w)["data"].([]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, "task-2", data[0].(map[string]interface{})["id"])
	assert.Equal(t, float64(4), data[1].(map[string]interface{})["participant_count"])
}

func TestStationHandlerGetTask(t *testing.T) {
	mock := &stationServiceMock{}
	w := perform(newStationRouter(mock), http.MethodGet, "/station/tasks/task-7", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "task-7", mock.taskID)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "task-7", data["id"])
	assert.Equal(t, float64(4), data["participant_count"])
}

func TestStationHandlerGetTaskForbidden(t *testing.T) {
	mock := &stationServiceMock{taskErr: appErrors.Clone(appErrors.ErrForbidden, "station is managed by another operator")}
	w := perform(newStationRouter(mock), http.MethodGet, "/station/tasks/task-7", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
