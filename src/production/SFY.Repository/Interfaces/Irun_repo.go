package interfaces

import (
	"context"

	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// Limits for run history queries
const (
	DefaultRunLimit = 20
	MaxRunLimit     = 200
)

// RunRepository stores discovery run summaries. Only run metadata is kept,
// never fetched buoy data.
type RunRepository interface {
	// SaveRun inserts or replaces the record with the same run id
	SaveRun(ctx context.Context, rec sfymodels.RunRecord) error

	// ListRuns returns the most recently started runs first
	ListRuns(ctx context.Context, limit int) ([]sfymodels.RunRecord, error)

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error
}

// NormalizeLimit clamps a requested page size into the accepted range
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRunLimit
	}
	if limit > MaxRunLimit {
		return MaxRunLimit
	}
	return limit
}
