package sfymodels

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AxlSuffix marks the hub files that carry an accelerometer package with its metadata.
const AxlSuffix = "axl.qo.json"

// AxlPackage is a hub event for one axl.qo note as stored by the data hub
type AxlPackage struct {
	Device string  `json:"device" bson:"device"`
	SN     string  `json:"sn,omitempty" bson:"sn,omitempty"`
	File   string  `json:"file,omitempty" bson:"file,omitempty"`
	Event  string  `json:"event,omitempty" bson:"event,omitempty"`
	When   int64   `json:"when,omitempty" bson:"when,omitempty"`
	// Received is the hub receive time in fractional unix seconds.
	Received float64 `json:"received" bson:"received"`

	BestLat          *float64 `json:"best_lat,omitempty" bson:"best_lat,omitempty"`
	BestLon          *float64 `json:"best_lon,omitempty" bson:"best_lon,omitempty"`
	BestLocationType string   `json:"best_location_type,omitempty" bson:"best_location_type,omitempty"`
	BestLocationWhen int64    `json:"best_location_when,omitempty" bson:"best_location_when,omitempty"`

	Body AxlBody `json:"body" bson:"body"`

	// Payload holds the base64 encoded samples; kept opaque.
	Payload string `json:"payload,omitempty" bson:"payload,omitempty"`
}

// AxlBody mirrors the note template the buoy firmware registers for axl.qo
type AxlBody struct {
	Timestamp      int64    `json:"timestamp" bson:"timestamp"`
	Offset         int      `json:"offset,omitempty" bson:"offset,omitempty"`
	StorageID      *int     `json:"storage_id,omitempty" bson:"storage_id,omitempty"`
	StorageVersion int      `json:"storage_version,omitempty" bson:"storage_version,omitempty"`
	PositionTime   int64    `json:"position_time,omitempty" bson:"position_time,omitempty"`
	Lat            *float64 `json:"lat,omitempty" bson:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty" bson:"lon,omitempty"`
	Temperature    float64  `json:"temperature,omitempty" bson:"temperature,omitempty"`
	Freq           float64  `json:"freq,omitempty" bson:"freq,omitempty"`
	Length         int      `json:"length,omitempty" bson:"length,omitempty"`
}

// DecodeAxlPackage decodes raw file content from the hub
func DecodeAxlPackage(raw []byte) (*AxlPackage, error) {
	var pck AxlPackage
	if err := json.Unmarshal(raw, &pck); err != nil {
		return nil, fmt.Errorf("failed to decode axl package: %w", err)
	}
	return &pck, nil
}

// ReceivedTime returns the hub receive time, zero if unknown
func (p *AxlPackage) ReceivedTime() time.Time {
	if p == nil || p.Received <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(math.Round(p.Received * 1e6))).UTC()
}

// GPSPosition returns the position reported by the buoy's own GPS fix
func (p *AxlPackage) GPSPosition() (lat, lon float64, ok bool) {
	if p == nil || p.Body.Lat == nil || p.Body.Lon == nil {
		return 0, 0, false
	}
	return *p.Body.Lat, *p.Body.Lon, true
}

// BestPosition returns the hub's best known location for the device
func (p *AxlPackage) BestPosition() (lat, lon float64, ok bool) {
	if p == nil || p.BestLat == nil || p.BestLon == nil {
		return 0, 0, false
	}
	return *p.BestLat, *p.BestLon, true
}
