package service

import (
	"time"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

// focusMultiplier scales both base and bonus points on the station's focus task.
const focusMultiplier = 2

// ComputeAward returns the points a submission earns. priorCount is the
// participant's submission count before this submission. Repeat submissions
// earn nothing unless the task runs in flame mode. The bonus only applies
// while a due date is set and still ahead of now.
func ComputeAward(task models.Task, priorCount int, now time.Time) int {
	if priorCount > 0 && !task.FlameMode {
		return 0
	}

	multiplier := 1
	if task.IsFocus {
		multiplier = focusMultiplier
	}

	award := task.Points * multiplier
	if task.BonusPoints > 0 && task.DueDate != nil && now.Before(*task.DueDate) {
		award += task.BonusPoints * multiplier
	}
	return award
}
