package position

import (
	"encoding/json"
	"fmt"
	"math"
)

// Document is the published view of the newest frame in one representation.
//
// Latitude and Longitude hold *float64 (decimal degrees) for WGS84 and *string
// (degrees-minutes-seconds) for the DMS types. Fields missing from the frame are
// nil and omitted from JSON. Documents are shared between readers and must not
// be modified.
type Document struct {
	Type      Type     `json:"type"`
	Time      *uint32  `json:"time,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Track     *float64 `json:"track,omitempty"`
	Latitude  any      `json:"latitude,omitempty"`
	Longitude any      `json:"longitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`

	raw json.RawMessage
}

type documentJSON Document

// MarshalJSON returns the encoding computed when the document was built.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d.raw != nil {
		return d.raw, nil
	}
	return json.Marshal((*documentJSON)(d))
}

func (d *Document) seal() error {
	b, err := json.Marshal((*documentJSON)(d))
	if err != nil {
		return err
	}
	d.raw = b
	return nil
}

// FormatDMS renders an angle as D°M'S.sss"H.
//
// Latitudes use N/S by sign. Longitudes are expected in [0, 360): values up to
// 180 are east, larger values are west of Greenwich at 360-a.
func FormatDMS(a float64, latitude bool) string {
	var hemi byte
	if latitude {
		hemi = 'N'
		if a < 0 {
			a = -a
			hemi = 'S'
		}
	} else {
		hemi = 'E'
		if a > 180 {
			a = 360 - a
			hemi = 'W'
		}
	}
	d := math.Floor(a)
	a = (a - d) * 60
	m := math.Floor(a)
	s := (a - m) * 60
	return fmt.Sprintf("%d°%d'%.3f\"%c", int(d), int(m), s, hemi)
}
