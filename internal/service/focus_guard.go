package service

import (
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
	"github.com/noah-isme/station-tasks-api/pkg/response"
)

const defaultFocusCooldown = 24 * time.Hour

// CooldownGuard computes the per-invite-code focus cooldown. The cooling
// state is never stored; it is derived from last_focus_change on every read.
type CooldownGuard struct {
	window time.Duration
}

// NewCooldownGuard builds a guard with the given window, defaulting to 24h.
func NewCooldownGuard(window time.Duration) *CooldownGuard {
	if window <= 0 {
		window = defaultFocusCooldown
	}
	return &CooldownGuard{window: window}
}

// Window returns the configured cooldown length.
func (g *CooldownGuard) Window() time.Duration {
	return g.window
}

// Until returns when the cooldown ends, or nil when the code never changed focus.
func (g *CooldownGuard) Until(code models.InviteCode) *time.Time {
	if code.LastFocusChange == nil {
		return nil
	}
	until := code.LastFocusChange.Add(g.window)
	return &until
}

// Remaining returns the time left before the code may toggle again; zero means open.
func (g *CooldownGuard) Remaining(code models.InviteCode, now time.Time) time.Duration {
	until := g.Until(code)
	if until == nil || !now.Before(*until) {
		return 0
	}
	return until.Sub(now)
}

// State reports the derived cooldown state.
func (g *CooldownGuard) State(code models.InviteCode, now time.Time) models.CooldownState {
	if g.Remaining(code, now) > 0 {
		return models.CooldownCooling
	}
	return models.CooldownOpen
}

// Check returns a Rejected error carrying the remaining wait while the code is cooling.
func (g *CooldownGuard) Check(code models.InviteCode, now time.Time) error {
	remaining := g.Remaining(code, now)
	if remaining <= 0 {
		return nil
	}
	hours := int64(remaining / time.Hour)
	minutes := int64((remaining % time.Hour) / time.Minute)
	seconds := int64(math.Ceil(remaining.Seconds()))
	until := g.Until(code)

	return appErrors.WithDetails(appErrors.ErrRejected,
		fmt.Sprintf("focus task cooldown has %d hours %d minutes remaining", hours, minutes),
		map[string]interface{}{
			"reason":                  "focus_cooldown",
			"invite_code_id":          code.ID,
			"remaining_hours":         hours,
			"remaining_minutes":       minutes,
			"remaining_seconds":       seconds,
			"cooldown_until":          until.UTC().Format(time.RFC3339),
			response.RetryAfterDetail: seconds,
		})
}
