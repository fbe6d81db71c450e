package invoice

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -source=invalidate.go -destination=mocks/mock_invalidate.go -package=mocks

// Invalidator marks every cached rendering of path as stale.
type Invalidator interface {
	Invalidate(ctx context.Context, path string) error
}

// Invalidators fans an invalidation out to several invalidators. All of them
// are called even if one fails.
type Invalidators []Invalidator

func (all Invalidators) Invalidate(ctx context.Context, path string) error {
	var errs []error
	for _, inv := range all {
		if err := inv.Invalidate(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("invalidating %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
