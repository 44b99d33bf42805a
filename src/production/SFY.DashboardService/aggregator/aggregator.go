package aggregator

import (
	"errors"
	"slices"
	"sort"
	"sync"

	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// ErrDuplicate is returned when a device is inserted twice in one run
var ErrDuplicate = errors.New("device already in collection")

// PublishFunc receives the full sorted collection after every insertion.
// The slice is never modified afterwards and must not be modified by the receiver.
type PublishFunc func(buoys []sfymodels.Buoy)

// Aggregator holds the buoys of one discovery run, most recent contact first.
// Buoys with equal last contact keep their insertion order.
type Aggregator struct {
	mu      sync.Mutex
	buoys   []sfymodels.Buoy
	seen    map[string]struct{}
	publish PublishFunc
}

// New creates an empty aggregator; publish may be nil
func New(publish PublishFunc) *Aggregator {
	return &Aggregator{
		buoys:   []sfymodels.Buoy{},
		seen:    make(map[string]struct{}),
		publish: publish,
	}
}

// Before reports whether a sorts ahead of b: more recent last contact first.
func Before(a, b sfymodels.Buoy) bool {
	return a.LastContact().After(b.LastContact())
}

// Insert places b in order, publishes the new collection and returns it
func (a *Aggregator) Insert(b sfymodels.Buoy) ([]sfymodels.Buoy, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[b.Dev]; dup {
		return a.buoys, ErrDuplicate
	}
	a.seen[b.Dev] = struct{}{}

	// First position whose buoy is strictly older; equal keys stay ahead of b.
	at := sort.Search(len(a.buoys), func(i int) bool {
		return Before(b, a.buoys[i])
	})

	next := make([]sfymodels.Buoy, 0, len(a.buoys)+1)
	next = append(next, a.buoys[:at]...)
	next = append(next, b)
	next = append(next, a.buoys[at:]...)
	a.buoys = next

	if a.publish != nil {
		a.publish(next)
	}

	return next, nil
}

// Buoys returns the current collection
func (a *Aggregator) Buoys() []sfymodels.Buoy {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buoys
}

// Len returns the number of buoys collected
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buoys)
}

// SortBuoys returns a stably sorted copy using the same order as Insert
func SortBuoys(buoys []sfymodels.Buoy) []sfymodels.Buoy {
	sorted := slices.Clone(buoys)
	slices.SortStableFunc(sorted, func(a, b sfymodels.Buoy) int {
		return b.LastContact().Compare(a.LastContact())
	})
	return sorted
}
