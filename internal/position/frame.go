// Package position holds decoded GPS frames and the documents published for them.
//
// Longitudes are stored eastward-normalized in [0, 360): a western longitude of
// 122.5 degrees is kept as 237.5. Latitudes are signed (south is negative).
package position

import "encoding/json"

// Fields is a set of presence flags for the values carried by a Frame.
type Fields uint8

const (
	FieldTime Fields = 1 << iota
	FieldLatitude
	FieldLongitude
	FieldAltitude
	FieldSpeed
	FieldTrack
)

// Frame is one decoded fix. RMC supplies time, position, speed and track; GGA
// supplies time, position and altitude. A value is meaningful only when its
// flag is present in Set.
type Frame struct {
	Set Fields

	TimeOfDayMillis uint32
	LatitudeDeg     float64
	LongitudeDeg    float64
	AltitudeM       float64
	SpeedMPS        float64
	TrackDeg        float64
}

func (f Frame) Has(fields Fields) bool {
	return f.Set&fields == fields
}

// MarshalJSON writes the present values only, in SI units.
func (f Frame) MarshalJSON() ([]byte, error) {
	var out struct {
		Time      *uint32  `json:"time,omitempty"`
		Latitude  *float64 `json:"latitude,omitempty"`
		Longitude *float64 `json:"longitude,omitempty"`
		Altitude  *float64 `json:"altitude,omitempty"`
		Speed     *float64 `json:"speed,omitempty"`
		Track     *float64 `json:"track,omitempty"`
	}
	if f.Has(FieldTime) {
		out.Time = &f.TimeOfDayMillis
	}
	if f.Has(FieldLatitude) {
		out.Latitude = &f.LatitudeDeg
	}
	if f.Has(FieldLongitude) {
		out.Longitude = &f.LongitudeDeg
	}
	if f.Has(FieldAltitude) {
		out.Altitude = &f.AltitudeM
	}
	if f.Has(FieldSpeed) {
		out.Speed = &f.SpeedMPS
	}
	if f.Has(FieldTrack) {
		out.Track = &f.TrackDeg
	}
	return json.Marshal(out)
}
