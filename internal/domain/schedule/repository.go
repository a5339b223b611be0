package schedule

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("schedule not found")

// Repository defines the operations for persisting and retrieving Schedule entities.
// Schedules are read-only to the executor; Create exists for first-start seeding.
type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	// GetByID returns ErrNotFound when no schedule has the id.
	GetByID(ctx context.Context, id int64) (*Schedule, error)
	ListEnabled(ctx context.Context) ([]*Schedule, error)
	ListAll(ctx context.Context) ([]*Schedule, error)
	Count(ctx context.Context) (int, error)
}
