package sfymodels

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrPackageAlreadySet is returned when a buoy's telemetry is written twice in one run.
var ErrPackageAlreadySet = errors.New("telemetry package already set")

// BuoyStatus tells the presentation layer how far enrichment got for a device
type BuoyStatus string

const (
	StatusOK             BuoyStatus = "ok"
	StatusNoTelemetry    BuoyStatus = "no_telemetry"
	StatusTelemetryError BuoyStatus = "telemetry_error"
	StatusUnreachable    BuoyStatus = "unreachable"
)

// PositionSource distinguishes a GPS fix from a hub estimate
type PositionSource string

const (
	PositionGPS PositionSource = "gps"
	PositionHub PositionSource = "hub"
)

// Position is a latitude/longitude pair with its origin
type Position struct {
	Latitude  float64        `json:"lat"`
	Longitude float64        `json:"lon"`
	Source    PositionSource `json:"source"`
}

// DeviceDetail is what the hub knows about a device before any file is loaded
type DeviceDetail struct {
	Dev         string     `json:"dev"`
	Files       []string   `json:"files"`
	Latitude    *float64   `json:"lat,omitempty"`
	Longitude   *float64   `json:"lon,omitempty"`
	LastContact *time.Time `json:"last_contact,omitempty"`
}

// Buoy is one device record of a discovery run
type Buoy struct {
	Dev   string   `json:"dev"`
	Files []string `json:"files"`

	// Package is written at most once per run, by SetPackage.
	Package *AxlPackage `json:"package,omitempty"`

	BaseLatitude    *float64  `json:"-"`
	BaseLongitude   *float64  `json:"-"`
	BaseLastContact time.Time `json:"-"`

	Status BuoyStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// NewBuoy builds the base record from a detail response
func NewBuoy(dev string, detail DeviceDetail) Buoy {
	b := Buoy{
		Dev:           dev,
		Files:         detail.Files,
		BaseLatitude:  detail.Latitude,
		BaseLongitude: detail.Longitude,
		Status:        StatusNoTelemetry,
	}
	if detail.LastContact != nil {
		b.BaseLastContact = detail.LastContact.UTC()
	} else if n := len(detail.Files); n > 0 {
		if ts, ok := ParseFileTimestamp(detail.Files[n-1]); ok {
			b.BaseLastContact = ts
		}
	}
	return b
}

// UnreachableBuoy is the record emitted when the detail fetch failed
func UnreachableBuoy(dev string, err error) Buoy {
	b := Buoy{Dev: dev, Status: StatusUnreachable}
	if err != nil {
		b.Error = err.Error()
	}
	return b
}

// SetPackage merges decoded telemetry into the record
func (b *Buoy) SetPackage(p *AxlPackage) error {
	if b.Package != nil {
		return ErrPackageAlreadySet
	}
	b.Package = p
	b.Status = StatusOK
	b.Error = ""
	return nil
}

// LastContact is the ordering key: package receive time, then the base record
func (b Buoy) LastContact() time.Time {
	if t := b.Package.ReceivedTime(); !t.IsZero() {
		return t
	}
	return b.BaseLastContact
}

// Position returns the best available position for the buoy
func (b Buoy) Position() (Position, bool) {
	if lat, lon, ok := b.Package.GPSPosition(); ok {
		return Position{Latitude: lat, Longitude: lon, Source: PositionGPS}, true
	}
	if lat, lon, ok := b.Package.BestPosition(); ok {
		return Position{Latitude: lat, Longitude: lon, Source: PositionHub}, true
	}
	if b.BaseLatitude != nil && b.BaseLongitude != nil {
		return Position{Latitude: *b.BaseLatitude, Longitude: *b.BaseLongitude, Source: PositionHub}, true
	}
	return Position{}, false
}

// ParseFileTimestamp reads the millisecond receive stamp that prefixes hub file names,
// e.g. 1639578276614-e0c3da0d-..._axl.qo.json.
func ParseFileTimestamp(name string) (time.Time, bool) {
	stamp, _, found := strings.Cut(name, "-")
	if !found || stamp == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
