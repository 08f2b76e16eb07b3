package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/station-tasks-api/internal/repository"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
)

const defaultStoreTimeout = 5 * time.Second

// storeError normalises a persistence failure. Typed errors raised inside a
// transaction pass through untouched.
func storeError(err error, notFound, failure string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case notFound != "" && errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case repository.IsTransient(err), repository.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "store temporarily unavailable, retry the request")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, failure)
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
