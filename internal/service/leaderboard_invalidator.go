package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/station-tasks-api/pkg/jobs"
)

const invalidateJobKind = "leaderboard.invalidate"

// LeaderboardInvalidator drops a station's cached leaderboards off the
// request path. Bursts for one station collapse into a single job. Each run
// advances the station's generation before deleting, so boards written by
// reads that started earlier are never served.
type LeaderboardInvalidator struct {
	cache  *CacheService
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewLeaderboardInvalidator builds the invalidator and its worker queue.
func NewLeaderboardInvalidator(cache *CacheService, cfg jobs.QueueConfig) *LeaderboardInvalidator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	inv := &LeaderboardInvalidator{cache: cache, logger: cfg.Logger}
	inv.queue = jobs.NewQueue("leaderboard-invalidation", inv.handle, cfg)
	return inv
}

// Start launches the workers.
func (i *LeaderboardInvalidator) Start(ctx context.Context) {
	i.queue.Start(ctx)
}

// Stop drains the workers.
func (i *LeaderboardInvalidator) Stop() {
	i.queue.Stop()
}

// Invalidate schedules removal of every cached leaderboard of the station.
func (i *LeaderboardInvalidator) Invalidate(stationID string) {
	if i == nil || !i.cache.Enabled() || stationID == "" {
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s", invalidateJobKind, stationID),
		Kind:    invalidateJobKind,
		Key:     stationID,
		Payload: stationID,
	}
	if err := i.queue.Enqueue(job); err != nil {
		// cached entries still expire through their TTL
		i.logger.Warn("leaderboard invalidation not scheduled", zap.String("station_id", stationID), zap.Error(err))
	}
}

func (i *LeaderboardInvalidator) handle(ctx context.Context, job jobs.Job) error {
	stationID, _ := job.Payload.(string)
	if err := i.cache.Bump(ctx, leaderboardGenerationKey(stationID)); err != nil {
		return err
	}
	return i.cache.Invalidate(ctx, leaderboardPattern(stationID))
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}
