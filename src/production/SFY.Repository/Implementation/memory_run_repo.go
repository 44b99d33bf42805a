package implementation

import (
	"context"
	"slices"
	"sync"

	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
	interfaces "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Interfaces"
)

// MemoryRunRepository keeps the most recent runs of this process only
type MemoryRunRepository struct {
	mu       sync.RWMutex
	runs     []sfymodels.RunRecord
	capacity int
}

func NewMemoryRunRepository(capacity int) *MemoryRunRepository {
	if capacity <= 0 {
		capacity = interfaces.MaxRunLimit
	}
	return &MemoryRunRepository{capacity: capacity}
}

func (r *MemoryRunRepository) SaveRun(_ context.Context, rec sfymodels.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.runs {
		if r.runs[i].RunID == rec.RunID {
			r.runs[i] = rec
			return nil
		}
	}

	r.runs = append(r.runs, rec)
	if len(r.runs) > r.capacity {
		// drop the oldest start
		oldest := 0
		for i := range r.runs {
			if r.runs[i].StartedAt.Before(r.runs[oldest].StartedAt) {
				oldest = i
			}
		}
		r.runs = slices.Delete(r.runs, oldest, oldest+1)
	}
	return nil
}

func (r *MemoryRunRepository) ListRuns(_ context.Context, limit int) ([]sfymodels.RunRecord, error) {
	r.mu.RLock()
	runs := slices.Clone(r.runs)
	r.mu.RUnlock()

	slices.SortStableFunc(runs, func(a, b sfymodels.RunRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if limit = interfaces.NormalizeLimit(limit); len(runs) > limit {
		runs = runs[:limit]
	}
	if runs == nil {
		runs = []sfymodels.RunRecord{}
	}
	return runs, nil
}

func (r *MemoryRunRepository) Ping(context.Context) error {
	return nil
}
