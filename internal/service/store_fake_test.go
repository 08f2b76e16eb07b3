package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/station-tasks-api/internal/models"
	"github.com/noah-isme/station-tasks-api/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. WithinTx
// holds a store-wide lock, which stands in for row locks, and restores a
// snapshot when the callback fails.
type memStore struct {
	mu           sync.Mutex
	seq          int
	stations     map[string]models.Station
	invites      map[string]models.InviteCode
	tasks        map[string]models.Task
	participants map[string]models.Participant
	submissions  map[string]models.Submission
	txErr        error
	locks        []string
}

func newMemStore() *memStore {
	return &memStore{
		stations:     map[string]models.Station{},
		invites:      map[string]models.InviteCode{},
		tasks:        map[string]models.Task{},
		participants: map[string]models.Participant{},
		submissions:  map[string]models.Submission{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addStation(id, owner string) {
	m.stations[id] = models.Station{ID: id, OwnerID: owner, Name: id, Status: "active"}
}

func (m *memStore) addInvite(code models.InviteCode) {
	if code.Status == "" {
		code.Status = models.InviteCodeStatusActive
	}
	m.invites[code.ID] = code
}

func (m *memStore) addTask(task models.Task) {
	if task.Status == "" {
		task.Status = models.TaskStatusActive
	}
	m.tasks[task.ID] = task
}

func (m *memStore) participant(taskID, nickname string) (models.Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.TaskID == taskID && p.Nickname == nickname {
			return p, true
		}
	}
	return models.Participant{}, false
}

type memSnapshot struct {
	invites      map[string]models.InviteCode
	tasks        map[string]models.Task
	participants map[string]models.Participant
	submissions  map[string]models.Submission
}

func (m *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		invites:      make(map[string]models.InviteCode, len(m.invites)),
		tasks:        make(map[string]models.Task, len(m.tasks)),
		participants: make(map[string]models.Participant, len(m.participants)),
		submissions:  make(map[string]models.Submission, len(m.submissions)),
	}
	for k, v := range m.invites {
		snap.invites[k] = v
	}
	for k, v := range m.tasks {
		snap.tasks[k] = v
	}
	for k, v := range m.participants {
		snap.participants[k] = v
	}
	for k, v := range m.submissions {
		snap.submissions[k] = v
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.invites = snap.invites
	m.tasks = snap.tasks
	m.participants = snap.participants
	m.submissions = snap.submissions
}

func (m *memStore) runTx(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txErr != nil {
		return m.txErr
	}
	snap := m.snapshot()
	if err := fn(); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// ledgerStore

type memLedger struct{ *memStore }

func (l memLedger) WithinTx(ctx context.Context, fn func(repository.LedgerTx) error) error {
	return l.runTx(func() error { return fn(memLedgerTx{l.memStore}) })
}

func (l memLedger) FindParticipant(ctx context.Context, taskID, nickname string) (*models.Participant, error) {
	p, ok := l.participant(taskID, nickname)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

type memLedgerTx struct{ *memStore }

func (t memLedgerTx) LockTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, ok := t.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("lock task: %w", sql.ErrNoRows)
	}
	return &task, nil
}

func (t memLedgerTx) LockParticipant(ctx context.Context, taskID, nickname string, joinedAt time.Time) (*models.Participant, error) {
	for _, p := range t.participants {
		if p.TaskID == taskID && p.Nickname == nickname {
			return &p, nil
		}
	}
	p := models.Participant{ID: t.nextID("p"), TaskID: taskID, Nickname: nickname, JoinedAt: joinedAt}
	t.participants[p.ID] = p
	return &p, nil
}

func (t memLedgerTx) ApplyAward(ctx context.Context, participantID string, award int) (*models.Participant, error) {
	p := t.participants[participantID]
	p.SubmissionCount++
	p.PointsEarned += award
	p.TotalPointsForTask += award
	t.participants[participantID] = p
	return &p, nil
}

func (t memLedgerTx) InsertSubmission(ctx context.Context, submission *models.Submission) error {
	submission.ID = t.nextID("sub")
	t.submissions[submission.ID] = *submission
	return nil
}

func (t memLedgerTx) LockSubmission(ctx context.Context, submissionID string) (*models.Submission, error) {
	sub, ok := t.submissions[submissionID]
	if !ok {
		return nil, fmt.Errorf("lock submission: %w", sql.ErrNoRows)
	}
	return &sub, nil
}

func (t memLedgerTx) ReversePoints(ctx context.Context, participantID string, amount int) (*models.Participant, error) {
	p := t.participants[participantID]
	p.PointsEarned = max(p.PointsEarned-amount, 0)
	p.TotalPointsForTask = max(p.TotalPointsForTask-amount, 0)
	t.participants[participantID] = p
	return &p, nil
}

func (t memLedgerTx) MarkSubmissionAbnormal(ctx context.Context, submissionID, reason, markedBy string, at time.Time) error {
	sub := t.submissions[submissionID]
	if sub.IsAbnormal {
		return repository.ErrAlreadyAbnormal
	}
	sub.IsAbnormal = true
	sub.AbnormalReason = &reason
	sub.MarkedBy = &markedBy
	sub.MarkedAt = &at
	sub.PointsEarned = 0
	t.submissions[submissionID] = sub
	return nil
}

// taskStore

type memTasks struct{ *memStore }

func (s memTasks) WithinTx(ctx context.Context, fn func(repository.TaskTx) error) error {
	return s.runTx(func() error { return fn(memTaskTx{s.memStore}) })
}

func (s memTasks) FindByID(ctx context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("find task: %w", sql.ErrNoRows)
	}
	return &task, nil
}

func (s memTasks) ListActiveByInviteCode(ctx context.Context, inviteCodeID string) ([]models.TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TaskSummary
	for _, task := range s.tasks {
		if task.InviteCodeID != inviteCodeID || task.Status != models.TaskStatusActive {
			continue
		}
		summary := models.TaskSummary{Task: task}
		for _, p := range s.participants {
			if p.TaskID == task.ID {
				summary.ParticipantCount++
				summary.SubmissionCount += p.SubmissionCount
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memTasks) summarize(task models.Task) models.TaskSummary {
	summary := models.TaskSummary{Task: task}
	for _, p := range s.participants {
		if p.TaskID == task.ID {
			summary.ParticipantCount++
			summary.SubmissionCount += p.SubmissionCount
		}
	}
	return summary
}

func (s memTasks) FindSummaryByID(ctx context.Context, id string) (*models.TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("find task summary: %w", sql.ErrNoRows)
	}
	summary := s.summarize(task)
	return &summary, nil
}

func (s memTasks) ListByStation(ctx context.Context, stationID string, status models.TaskStatus) ([]models.TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TaskSummary
	for _, task := range s.tasks {
		if task.StationID != stationID || (status != "" && task.Status != status) {
			continue
		}
		out = append(out, s.summarize(task))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s memTasks) FindActiveFocusByInviteCode(ctx context.Context, inviteCodeID string) (*models.FocusTaskRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.InviteCodeID == inviteCodeID && task.IsFocus && task.Status == models.TaskStatusActive {
			return &models.FocusTaskRef{ID: task.ID, Title: task.Title, CreatedAt: task.CreatedAt}, nil
		}
	}
	return nil, sql.ErrNoRows
}

type memTaskTx struct{ *memStore }

func (t memTaskTx) LockStation(ctx context.Context, stationID string) error {
	if _, ok := t.stations[stationID]; !ok {
		return fmt.Errorf("lock station: %w", sql.ErrNoRows)
	}
	t.locks = append(t.locks, "station:"+stationID)
	return nil
}

func (t memTaskTx) LockTask(ctx context.Context, taskID string) (*models.Task, error) {
	t.locks = append(t.locks, "task:"+taskID)
	task, ok := t.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("lock task: %w", sql.ErrNoRows)
	}
	return &task, nil
}

func (t memTaskTx) LockInviteCode(ctx context.Context, inviteCodeID string) (*models.InviteCode, error) {
	t.locks = append(t.locks, "invite:"+inviteCodeID)
	code, ok := t.invites[inviteCodeID]
	if !ok {
		return nil, fmt.Errorf("lock invite code: %w", sql.ErrNoRows)
	}
	return &code, nil
}

func (t memTaskTx) InsertTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = t.nextID("task")
	}
	t.tasks[task.ID] = *task
	return nil
}

func (t memTaskTx) UpdateTaskFields(ctx context.Context, taskID string, patch models.TaskPatch) error {
	task := t.tasks[taskID]
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Points != nil {
		task.Points = *patch.Points
	}
	if patch.BonusPoints != nil {
		task.BonusPoints = *patch.BonusPoints
	}
	if patch.ClearDueDate {
		task.DueDate = nil
	} else if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.FlameMode != nil {
		task.FlameMode = *patch.FlameMode
	}
	if patch.InviteCodeID != nil {
		task.InviteCodeID = *patch.InviteCodeID
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	t.tasks[taskID] = task
	return nil
}

func (t memTaskTx) SetTaskFocus(ctx context.Context, taskID string, focus bool) error {
	task := t.tasks[taskID]
	task.IsFocus = focus
	t.tasks[taskID] = task
	return nil
}

func (t memTaskTx) ClearStationFocus(ctx context.Context, stationID, exceptTaskID string) (int64, error) {
	var n int64
	for id, task := range t.tasks {
		if task.StationID == stationID && id != exceptTaskID && task.IsFocus && task.Status == models.TaskStatusActive {
			task.IsFocus = false
			t.tasks[id] = task
			n++
		}
	}
	return n, nil
}

func (t memTaskTx) TouchFocusChange(ctx context.Context, inviteCodeID string, at time.Time) error {
	code := t.invites[inviteCodeID]
	code.LastFocusChange = &at
	t.invites[inviteCodeID] = code
	return nil
}

func (t memTaskTx) CompleteTask(ctx context.Context, taskID string, at time.Time) error {
	task := t.tasks[taskID]
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &at
	t.tasks[taskID] = task
	return nil
}

// readers

type memReaders struct{ *memStore }

func (r memReaders) FindByCode(ctx context.Context, code string) (*models.InviteCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, invite := range r.invites {
		if invite.Code == code {
			return &invite, nil
		}
	}
	return nil, fmt.Errorf("find invite code: %w", sql.ErrNoRows)
}

func (r memReaders) FindStation(ctx context.Context, id string) (*models.Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	station, ok := r.stations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &station, nil
}

func (r memReaders) detail(sub models.Submission) models.SubmissionDetail {
	p := r.participants[sub.ParticipantID]
	task := r.tasks[p.TaskID]
	return models.SubmissionDetail{
		Submission:        sub,
		TaskID:            task.ID,
		TaskTitle:         task.Title,
		StationID:         task.StationID,
		Nickname:          p.Nickname,
		ParticipantCount:  p.SubmissionCount,
		ParticipantPoints: p.PointsEarned,
	}
}

func (r memReaders) ListByTask(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SubmissionDetail
	for _, sub := range r.submissions {
		if r.participants[sub.ParticipantID].TaskID == filter.TaskID {
			out = append(out, r.detail(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, len(out), nil
}

func (r memReaders) FindDetail(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.submissions[id]
	if !ok {
		return nil, fmt.Errorf("find submission: %w", sql.ErrNoRows)
	}
	detail := r.detail(sub)
	return &detail, nil
}

type memStations struct{ memReaders }

func (s memStations) FindByID(ctx context.Context, id string) (*models.Station, error) {
	return s.FindStation(ctx, id)
}

// leaderboardReader

type memBoards struct{ *memStore }

func (b memBoards) aggregate(keep func(task models.Task, p models.Participant) bool) []models.LeaderboardRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := map[string]*models.LeaderboardRow{}
	for _, p := range b.participants {
		task := b.tasks[p.TaskID]
		if !keep(task, p) {
			continue
		}
		row, ok := rows[p.Nickname]
		if !ok {
			row = &models.LeaderboardRow{Nickname: p.Nickname}
			rows[p.Nickname] = row
		}
		row.Points += p.PointsEarned
		row.Submissions += p.SubmissionCount
		row.FocusTouched = row.FocusTouched || (task.IsFocus && p.SubmissionCount > 0)
	}
	return sortRows(rows)
}

func (b memBoards) Overall(ctx context.Context, stationID string) ([]models.LeaderboardRow, error) {
	return b.aggregate(func(task models.Task, p models.Participant) bool { return task.StationID == stationID }), nil
}

func (b memBoards) Focus(ctx context.Context, stationID string) ([]models.LeaderboardRow, error) {
	return b.aggregate(func(task models.Task, p models.Participant) bool {
		return task.StationID == stationID && task.IsFocus
	}), nil
}

func (b memBoards) Task(ctx context.Context, taskID string) ([]models.LeaderboardRow, error) {
	return b.aggregate(func(task models.Task, p models.Participant) bool { return task.ID == taskID }), nil
}

func (b memBoards) Window(ctx context.Context, stationID string, start, end time.Time) ([]models.LeaderboardRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := map[string]*models.LeaderboardRow{}
	for _, sub := range b.submissions {
		p := b.participants[sub.ParticipantID]
		task := b.tasks[p.TaskID]
		if task.StationID != stationID || sub.SubmittedAt.Before(start) || !sub.SubmittedAt.Before(end) {
			continue
		}
		row, ok := rows[p.Nickname]
		if !ok {
			row = &models.LeaderboardRow{Nickname: p.Nickname}
			rows[p.Nickname] = row
		}
		row.Points += sub.PointsEarned
		row.Submissions++
		row.FocusTouched = row.FocusTouched || task.IsFocus
	}
	return sortRows(rows), nil
}

func sortRows(rows map[string]*models.LeaderboardRow) []models.LeaderboardRow {
	out := make([]models.LeaderboardRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Nickname < out[j].Nickname
	})
	return out
}

// fixture wires every service against one memStore with a controllable clock.
type fixture struct {
	store        *memStore
	clock        time.Time
	metrics      *MetricsService
	mu           sync.Mutex
	invalidated  []string
	submissions  *SubmissionService
	tasks        *TaskService
	leaderboards *LeaderboardService
}

type recordingInvalidator struct{ f *fixture }

func (r recordingInvalidator) Invalidate(stationID string) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.invalidated = append(r.f.invalidated, stationID)
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		clock:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		metrics: NewMetricsService(),
	}
	now := func() time.Time { return f.clock }
	readers := memReaders{f.store}
	access := NewAccessService(memStations{readers})
	inv := recordingInvalidator{f}

	f.submissions = NewSubmissionService(memLedger{f.store}, readers, readers, memTasks{f.store}, access, inv, f.metrics, nil, nil, SubmissionServiceConfig{MaxImages: 3})
	f.submissions.now = now
	f.tasks = NewTaskService(memTasks{f.store}, readers, memLedger{f.store}, access, NewCooldownGuard(24*time.Hour), inv, f.metrics, nil, nil, TaskServiceConfig{})
	f.tasks.now = now
	f.leaderboards = NewLeaderboardService(memBoards{f.store}, memTasks{f.store}, readers, access, nil, nil, nil, LeaderboardServiceConfig{})
	f.leaderboards.now = now

	f.store.addStation("st-1", "op-1")
	f.store.addStation("st-2", "op-2")
	f.store.addInvite(models.InviteCode{ID: "ic-1", Code: "FANS01", StationID: "st-1", FocusEnabled: true})
	f.store.addInvite(models.InviteCode{ID: "ic-2", Code: "FANS02", StationID: "st-1", FocusEnabled: true})
	f.store.addInvite(models.InviteCode{ID: "ic-9", Code: "OTHER9", StationID: "st-2", FocusEnabled: true})
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

var (
	opOwner = &models.JWTClaims{UserID: "op-1", Role: models.RoleStationAdmin}
	opOther = &models.JWTClaims{UserID: "op-2", Role: models.RoleStationAdmin}
	opAdmin = &models.JWTClaims{UserID: "root", Role: models.RolePlatformAdmin}
)
