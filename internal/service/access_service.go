package service

import (
	"context"

	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
)

type stationReader interface {
	FindByID(ctx context.Context, id string) (*models.Station, error)
}

// AccessService decides whether an operator may act on a station.
type AccessService struct {
	stations stationReader
}

// NewAccessService constructs the access checker.
func NewAccessService(stations stationReader) *AccessService {
	return &AccessService{stations: stations}
}

// AuthorizeStation returns nil when the actor owns the station or is a platform admin.
func (s *AccessService) AuthorizeStation(ctx context.Context, actor *models.JWTClaims, stationID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if stationID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "station_id is required")
	}
	if actor.Role == models.RolePlatformAdmin {
		return nil
	}
	station, err := s.stations.FindByID(ctx, stationID)
	if err != nil {
		return storeError(err, "station not found", "failed to load station")
	}
	if station.OwnerID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "station is managed by another operator")
	}
	return nil
}
