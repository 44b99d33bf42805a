package sfymodels

import "time"

// Triggers that start a discovery run
const (
	TriggerAPI      = "api"
	TriggerInterval = "interval"
	TriggerStartup  = "startup"
	TriggerCLI      = "cli"
)

// RunRecord is the stored summary of a finished discovery run. It never
// contains fetched buoy data.
type RunRecord struct {
	RunID      string          `json:"run_id" bson:"_id" db:"run_id"`
	Trigger    string          `json:"trigger" bson:"trigger" db:"trigger"`
	State      RunState        `json:"state" bson:"state" db:"state"`
	StartedAt  time.Time       `json:"started_at" bson:"started_at" db:"started_at"`
	FinishedAt time.Time       `json:"finished_at" bson:"finished_at" db:"finished_at"`
	Devices    int             `json:"devices" bson:"devices" db:"devices"`
	Failures   []DeviceFailure `json:"failures,omitempty" bson:"failures,omitempty" db:"failures"`
	Error      string          `json:"error,omitempty" bson:"error,omitempty" db:"error"`
}

// NewRunRecord summarises a finished snapshot
func NewRunRecord(s *Snapshot) RunRecord {
	rec := RunRecord{
		RunID:     s.RunID,
		Trigger:   s.Trigger,
		State:     s.State,
		StartedAt: s.StartedAt,
		Devices:   len(s.Buoys),
		Failures:  s.Failures,
		Error:     s.Error,
	}
	if s.FinishedAt != nil {
		rec.FinishedAt = *s.FinishedAt
	} else {
		rec.FinishedAt = s.UpdatedAt
	}
	return rec
}
