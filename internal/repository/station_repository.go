package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/station-tasks-api/internal/models"
)

// StationRepository reads station ownership.
type StationRepository struct {
	db *sqlx.DB
}

// NewStationRepository constructs the repository.
func NewStationRepository(db *sqlx.DB) *StationRepository {
	return &StationRepository{db: db}
}

// FindByID fetches a station by ID.
func (r *StationRepository) FindByID(ctx context.Context, id string) (*models.Station, error) {
	const query = `SELECT id, name, owner_id, status FROM stations WHERE id = $1`
	var station models.Station
	if err := r.db.GetContext(ctx, &station, query, id); err != nil {
		return nil, fmt.Errorf("find station: %w", err)
	}
	return &station, nil
}
