package sfymodels

import "time"

// RunState is the lifecycle state of a discovery run
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Stage names a step of the enrichment pipeline
type Stage string

const (
	StageList    Stage = "list"
	StageDetail  Stage = "detail"
	StageContent Stage = "content"
)

// DeviceFailure records a per-device fetch failure within a run
type DeviceFailure struct {
	Dev   string    `json:"dev" bson:"dev"`
	Stage Stage     `json:"stage" bson:"stage"`
	Error string    `json:"error" bson:"error"`
	At    time.Time `json:"at" bson:"at"`
}

// Snapshot is the full, sorted fleet view of one run at a point in time.
// Published snapshots are never modified.
type Snapshot struct {
	RunID      string          `json:"run_id"`
	Trigger    string          `json:"trigger,omitempty"`
	State      RunState        `json:"state"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
	Buoys      []Buoy          `json:"-"`
	Failures   []DeviceFailure `json:"failures,omitempty"`
}

// BuoyView is the presentation shape of a buoy
type BuoyView struct {
	Dev            string         `json:"dev"`
	Status         BuoyStatus     `json:"status"`
	Latitude       *float64       `json:"lat,omitempty"`
	Longitude      *float64       `json:"lon,omitempty"`
	PositionSource PositionSource `json:"position_source,omitempty"`
	LastContact    *time.Time     `json:"last_contact,omitempty"`
	Files          int            `json:"files"`
	Error          string         `json:"error,omitempty"`
	Package        *AxlPackage    `json:"package,omitempty"`
}

// View flattens the derived fields of a buoy for display
func (b Buoy) View() BuoyView {
	v := BuoyView{
		Dev:     b.Dev,
		Status:  b.Status,
		Files:   len(b.Files),
		Error:   b.Error,
		Package: b.Package,
	}
	if pos, ok := b.Position(); ok {
		v.Latitude = &pos.Latitude
		v.Longitude = &pos.Longitude
		v.PositionSource = pos.Source
	}
	if lc := b.LastContact(); !lc.IsZero() {
		v.LastContact = &lc
	}
	return v
}

// Views returns the presentation shape of every buoy, preserving order
func (s *Snapshot) Views() []BuoyView {
	views := make([]BuoyView, 0, len(s.Buoys))
	for _, b := range s.Buoys {
		views = append(views, b.View())
	}
	return views
}

// Finished reports whether the run reached a terminal state
func (s *Snapshot) Finished() bool {
	switch s.State {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}
