package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

const inviteCodeColumns = `id, code, station_id, status, focus_enabled, last_focus_change, created_at`

// InviteCodeRepository reads invite codes. Codes are managed elsewhere.
type InviteCodeRepository struct {
	db *sqlx.DB
}

// NewInviteCodeRepository constructs the repository.
func NewInviteCodeRepository(db *sqlx.DB) *InviteCodeRepository {
	return &InviteCodeRepository{db: db}
}

// FindByCode looks an invite code up by its shareable string.
func (r *InviteCodeRepository) FindByCode(ctx context.Context, code string) (*models.InviteCode, error) {
	query := `SELECT ` + inviteCodeColumns + ` FROM invite_codes WHERE code = $1`
	var invite models.InviteCode
	if err := r.db.GetContext(ctx, &invite, query, code); err != nil {
		return nil, fmt.Errorf("find invite code: %w", err)
	}
	return &invite, nil
}

// FindByID fetches an invite code by ID.
func (r *InviteCodeRepository) FindByID(ctx context.Context, id string) (*models.InviteCode, error) {
	query := `SELECT ` + inviteCodeColumns + ` FROM invite_codes WHERE id = $1`
	var invite models.InviteCode
	if err := r.db.GetContext(ctx, &invite, query, id); err != nil {
		return nil, fmt.Errorf("find invite code: %w", err)
	}
	return &invite, nil
}
