package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/station-tasks-api/internal/dto"
	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
)

func focusReq(v bool) dto.SetFocusRequest {
	return dto.SetFocusRequest{IsFocus: &v}
}

func focusCount(store *memStore, stationID string) int {
	n := 0
	for _, task := range store.tasks {
		if task.StationID == stationID && task.IsFocus && task.Status == models.TaskStatusActive {
			n++
		}
	}
	return n
}

func TestTaskServiceFocusCooldown(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", Points: 10})
	ctx := context.Background()

	change, err := f.tasks.SetFocus(ctx, "task-1", focusReq(true), opOwner)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.Equal(t, f.clock.Add(24*time.Hour), change.CooldownUntil)
	assert.True(t, f.store.tasks["task-1"].IsFocus)

	f.advance(3 * time.Hour)
	_, err = f.tasks.SetFocus(ctx, "task-1", focusReq(false), opOwner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))
	appErr := appErrors.FromError(err)
	assert.Equal(t, int64(21), appErr.Details["remaining_hours"])
	assert.True(t, f.store.tasks["task-1"].IsFocus)

	f.advance(21 * time.Hour)
	change, err = f.tasks.SetFocus(ctx, "task-1", focusReq(false), opOwner)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.False(t, f.store.tasks["task-1"].IsFocus)
	assert.Equal(t, f.clock, *f.store.invites["ic-1"].LastFocusChange)
}

func TestTaskServiceFocusNoopKeepsClock(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1"})

	change, err := f.tasks.SetFocus(context.Background(), "task-1", focusReq(false), opOwner)
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Nil(t, f.store.invites["ic-1"].LastFocusChange)
	assert.Empty(t, f.invalidated)
}

func TestTaskServiceFocusClocksArePerInviteCode(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1"})
	f.store.addTask(models.Task{ID: "task-2", StationID: "st-1", InviteCodeID: "ic-2"})
	ctx := context.Background()

	_, err := f.tasks.SetFocus(ctx, "task-1", focusReq(true), opOwner)
	require.NoError(t, err)

	f.advance(time.Hour)
	change, err := f.tasks.SetFocus(ctx, "task-2", focusReq(true), opOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), change.UnsetTaskCount)
	assert.False(t, f.store.tasks["task-1"].IsFocus)
	assert.True(t, f.store.tasks["task-2"].IsFocus)
	assert.Equal(t, 1, focusCount(f.store, "st-1"))

	// the unset task's invite code keeps its own earlier timestamp
	first := f.clock.Add(-time.Hour)
	assert.Equal(t, first, *f.store.invites["ic-1"].LastFocusChange)
}

func TestTaskServiceFocusRejections(t *testing.T) {
	f := newFixture()
	f.store.addInvite(models.InviteCode{ID: "ic-3", Code: "NOFOCUS", StationID: "st-1"})
	f.store.addTask(models.Task{ID: "plain", StationID: "st-1", InviteCodeID: "ic-3"})
	f.store.addTask(models.Task{ID: "done", StationID: "st-1", InviteCodeID: "ic-1", Status: models.TaskStatusCompleted})
	ctx := context.Background()

	_, err := f.tasks.SetFocus(ctx, "plain", focusReq(true), opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))

	_, err = f.tasks.SetFocus(ctx, "done", focusReq(true), opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))

	_, err = f.tasks.SetFocus(ctx, "plain", focusReq(true), opOther)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.tasks.SetFocus(ctx, "missing", focusReq(true), opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.tasks.SetFocus(ctx, "plain", dto.SetFocusRequest{}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTaskServiceCreate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.addTask(models.Task{ID: "old-focus", StationID: "st-1", InviteCodeID: "ic-2", IsFocus: true})

	task, err := f.tasks.Create(ctx, dto.CreateTaskRequest{
		StationID:    "st-1",
		InviteCodeID: "ic-1",
		Title:        "  Share the stream  ",
		Points:       10,
		IsFocus:      true,
	}, opOwner)
	require.NoError(t, err)
	assert.Equal(t, "Share the stream", task.Title)
	assert.True(t, task.FlameMode)
	assert.True(t, f.store.tasks[task.ID].IsFocus)
	assert.False(t, f.store.tasks["old-focus"].IsFocus)
	assert.NotNil(t, f.store.invites["ic-1"].LastFocusChange)
	assert.Contains(t, f.invalidated, "st-1")

	flame := false
	_, err = f.tasks.Create(ctx, dto.CreateTaskRequest{StationID: "st-1", InviteCodeID: "ic-1", Title: "again", FlameMode: &flame, IsFocus: true}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))

	_, err = f.tasks.Create(ctx, dto.CreateTaskRequest{StationID: "st-1", InviteCodeID: "ic-9", Title: "wrong code"}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.tasks.Create(ctx, dto.CreateTaskRequest{StationID: "st-1", InviteCodeID: "ic-1", Title: "   "}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.tasks.Create(ctx, dto.CreateTaskRequest{StationID: "st-1", InviteCodeID: "ic-1", Title: "x"}, opOther)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestTaskServiceUpdate(t *testing.T) {
	f := newFixture()
	due := f.clock.Add(time.Hour)
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", Title: "old", Points: 5, DueDate: &due})
	ctx := context.Background()

	title := "new"
	points := 20
	focus := true
	result, err := f.tasks.Update(ctx, "task-1", dto.UpdateTaskRequest{Title: &title, Points: &points, ClearDueDate: true, IsFocus: &focus}, opOwner)
	require.NoError(t, err)
	assert.Equal(t, "new", result.Task.Title)
	assert.Equal(t, 20, result.Task.Points)
	assert.Nil(t, result.Task.DueDate)
	require.NotNil(t, result.Focus)
	assert.True(t, result.Focus.Changed)
	assert.True(t, f.store.tasks["task-1"].IsFocus)

	// a refused focus flip rolls back the other fields in the same edit
	f.advance(time.Hour)
	unfocus := false
	renamed := "renamed"
	_, err = f.tasks.Update(ctx, "task-1", dto.UpdateTaskRequest{Title: &renamed, IsFocus: &unfocus}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))
	assert.Equal(t, "new", f.store.tasks["task-1"].Title)

	_, err = f.tasks.Update(ctx, "task-1", dto.UpdateTaskRequest{}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.tasks.Update(ctx, "task-1", dto.UpdateTaskRequest{DueDate: &due, ClearDueDate: true}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	other := "ic-9"
	_, err = f.tasks.Update(ctx, "task-1", dto.UpdateTaskRequest{InviteCodeID: &other}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestTaskServiceUpdateTerminalTask(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", Status: models.TaskStatusCancelled})
	title := "late"
	_, err := f.tasks.Update(context.Background(), "task-1", dto.UpdateTaskRequest{Title: &title}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))
}

func TestTaskServiceSettle(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1"})
	f.store.addTask(models.Task{ID: "task-2", StationID: "st-1", InviteCodeID: "ic-1", Status: models.TaskStatusCancelled})
	ctx := context.Background()

	task, err := f.tasks.Settle(ctx, "task-1", opOwner)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	settledAt := *task.CompletedAt

	f.advance(time.Hour)
	again, err := f.tasks.Settle(ctx, "task-1", opAdmin)
	require.NoError(t, err)
	assert.Equal(t, settledAt, *again.CompletedAt)

	_, err = f.tasks.Settle(ctx, "task-2", opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))

	_, err = f.tasks.Settle(ctx, "task-1", nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestTaskServiceFanViews(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", Title: "Stream", Points: 10})
	f.store.addTask(models.Task{ID: "task-2", StationID: "st-1", InviteCodeID: "ic-1", Status: models.TaskStatusCompleted})
	f.store.addTask(models.Task{ID: "task-9", StationID: "st-2", InviteCodeID: "ic-9"})
	ctx := context.Background()

	_, err := f.submissions.Record(ctx, "task-1", submitReq("FANS01", "mika"))
	require.NoError(t, err)

	list, err := f.tasks.ListForInviteCode(ctx, "FANS01")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].SubmissionCount)
	assert.Equal(t, 1, list[0].ParticipantCount)

	empty, err := f.tasks.ListForInviteCode(ctx, "FANS02")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	detail, err := f.tasks.FanDetail(ctx, "task-1", "FANS01", "mika")
	require.NoError(t, err)
	require.NotNil(t, detail.Participation)
	assert.True(t, detail.Participation.HasParticipated)
	assert.Equal(t, 10, detail.Participation.PointsEarned)

	stranger, err := f.tasks.FanDetail(ctx, "task-1", "FANS01", "nobody")
	require.NoError(t, err)
	assert.False(t, stranger.Participation.HasParticipated)

	_, err = f.tasks.FanDetail(ctx, "task-9", "FANS01", "")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.tasks.ListForInviteCode(ctx, "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTaskServiceFocusStatus(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", Title: "Stream"})
	ctx := context.Background()

	status, err := f.tasks.FocusStatus(ctx, "FANS01")
	require.NoError(t, err)
	assert.False(t, status.HasFocusTask)
	assert.Equal(t, models.CooldownOpen, status.State)
	assert.False(t, status.InCooldown)

	_, err = f.tasks.SetFocus(ctx, "task-1", focusReq(true), opOwner)
	require.NoError(t, err)
	f.advance(90 * time.Minute)

	status, err = f.tasks.FocusStatus(ctx, "FANS01")
	require.NoError(t, err)
	assert.True(t, status.HasFocusTask)
	assert.Equal(t, "task-1", status.FocusTask.ID)
	assert.Equal(t, models.CooldownCooling, status.State)
	assert.Equal(t, int64((22*time.Hour+30*time.Minute)/time.Second), status.RemainingSeconds)

	_, err = f.tasks.FocusStatus(ctx, "NOPE")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTaskServiceFocusIgnoresInviteFocusFlag(t *testing.T) {
	f := newFixture()
	f.store.addInvite(models.InviteCode{ID: "ic-3", Code: "PLAIN3", StationID: "st-1"})
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-3"})
	ctx := context.Background()

	change, err := f.tasks.SetFocus(ctx, "task-1", focusReq(true), opOwner)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.True(t, f.store.tasks["task-1"].IsFocus)

	created, err := f.tasks.Create(ctx, dto.CreateTaskRequest{
		StationID: "st-1", InviteCodeID: "ic-3", Title: "Second", Points: 5, IsFocus: true,
	}, opOwner)
	require.Error(t, err)
	assert.Nil(t, created)
	assert.True(t, errors.Is(err, appErrors.ErrRejected))
	assert.Contains(t, appErrors.FromError(err).Details, "remaining_hours")
}

func TestTaskServiceFocusLocksStationFirst(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1"})
	f.store.addTask(models.Task{ID: "task-2", StationID: "st-1", InviteCodeID: "ic-1", IsFocus: true})
	ctx := context.Background()

	_, err := f.tasks.SetFocus(ctx, "task-1", focusReq(true), opOwner)
	require.NoError(t, err)
	assert.Equal(t, []string{"station:st-1", "task:task-1", "invite:ic-1"}, f.store.locks)

	f.store.locks = nil
	f.advance(25 * time.Hour)
	focus := false
	_, err = f.tasks.Update(ctx, "task-1", dto.UpdateTaskRequest{IsFocus: &focus}, opOwner)
	require.NoError(t, err)
	require.NotEmpty(t, f.store.locks)
	assert.Equal(t, "station:st-1", f.store.locks[0])

	f.store.locks = nil
	_, err = f.tasks.Create(ctx, dto.CreateTaskRequest{
		StationID: "st-1", InviteCodeID: "ic-2", Title: "Focus", Points: 5, IsFocus: true,
	}, opOwner)
	require.NoError(t, err)
	assert.Equal(t, []string{"station:st-1", "invite:ic-2"}, f.store.locks)
	assert.Equal(t, 1, focusCount(f.store, "st-1"))
}

func TestTaskServiceListForStation(t *testing.T) {
	f := newFixture()
	base := f.clock
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", CreatedAt: base.Add(-2 * time.Hour)})
	f.store.addTask(models.Task{ID: "task-2", StationID: "st-1", InviteCodeID: "ic-2", CreatedAt: base.Add(-time.Hour)})
	f.store.addTask(models.Task{ID: "task-3", StationID: "st-1", InviteCodeID: "ic-1", Status: models.TaskStatusCompleted, CreatedAt: base})
	f.store.addTask(models.Task{ID: "task-9", StationID: "st-2", InviteCodeID: "ic-9", CreatedAt: base})
	ctx := context.Background()

	_, err := f.submissions.Record(ctx, "task-1", submitReq("FANS01", "mika"))
	require.NoError(t, err)

	active, err := f.tasks.ListForStation(ctx, dto.StationTaskQuery{StationID: "st-1"}, opOwner)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "task-2", active[0].ID)
	assert.Equal(t, "task-1", active[1].ID)
	assert.Equal(t, 1, active[1].ParticipantCount)
	assert.Equal(t, 1, active[1].SubmissionCount)

	all, err := f.tasks.ListForStation(ctx, dto.StationTaskQuery{StationID: "st-1", Status: "all"}, opOwner)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "task-3", all[0].ID)

	done, err := f.tasks.ListForStation(ctx, dto.StationTaskQuery{StationID: "st-1", Status: "completed"}, opAdmin)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "task-3", done[0].ID)

	empty, err := f.tasks.ListForStation(ctx, dto.StationTaskQuery{StationID: "st-1", Status: "cancelled"}, opOwner)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = f.tasks.ListForStation(ctx, dto.StationTaskQuery{StationID: "st-1", Status: "archived"}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.tasks.ListForStation(ctx, dto.StationTaskQuery{}, opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.tasks.ListForStation(ctx, dto.StationTaskQuery{StationID: "st-1"}, opOther)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestTaskServiceGet(t *testing.T) {
	f := newFixture()
	f.store.addTask(models.Task{ID: "task-1", StationID: "st-1", InviteCodeID: "ic-1", Title: "Stream", Points: 10})
	ctx := context.Background()

	_, err := f.submissions.Record(ctx, "task-1", submitReq("FANS01", "mika"))
	require.NoError(t, err)
	_, err = f.submissions.Record(ctx, "task-1", submitReq("FANS01", "zed"))
	require.NoError(t, err)

	task, err := f.tasks.Get(ctx, "task-1", opOwner)
	require.NoError(t, err)
	assert.Equal(t, "Stream", task.Title)
	assert.Equal(t, 2, task.ParticipantCount)

	_, err = f.tasks.Get(ctx, "task-1", opOther)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.tasks.Get(ctx, "missing", opOwner)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.tasks.Get(ctx, "task-1", nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
