package nmea

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"gps-relay/internal/position"
)

// Kind names a supported sentence.
type Kind string

const (
	KindGGA Kind = "GGA"
	KindRMC Kind = "RMC"
)

var (
	ErrUnsupported = errors.New("nmea: unsupported sentence")
	ErrNoFix       = errors.New("nmea: no fix")
	ErrHemisphere  = errors.New("nmea: invalid hemisphere")
	ErrUnit        = errors.New("nmea: invalid unit")
	ErrNumber      = errors.New("nmea: invalid number")
)

const knotsToMPS = 1852.0 / 3600.0

// Field counts after the sentence tag. RMC grew a mode field in 2.3 and a
// navigational status field in 4.1; all three layouts are accepted.
var (
	ggaArities = []int{14}
	rmcArities = []int{11, 12, 13}
)

// DecodeSentence decodes the text that followed '$' on a line, with any
// checksum suffix already removed. Characters 3-5 select the sentence kind; the
// two talker characters are not interpreted.
func DecodeSentence(text string) (Kind, position.Frame, error) {
	if len(text) < 6 || text[5] != ',' {
		return "", position.Frame{}, ErrUnsupported
	}
	var kind Kind
	var arities []int
	switch text[2:5] {
	case "GGA":
		kind, arities = KindGGA, ggaArities
	case "RMC":
		kind, arities = KindRMC, rmcArities
	default:
		return "", position.Frame{}, ErrUnsupported
	}
	fields, err := SplitFields(text[6:], arities...)
	if err != nil {
		return kind, position.Frame{}, err
	}
	f, err := Decode(kind, fields)
	return kind, f, err
}

// Decode builds a Frame from the fields of one sentence. It is all or nothing:
// any grammar or range violation returns an error and no frame.
func Decode(kind Kind, fields []string) (position.Frame, error) {
	switch kind {
	case KindGGA:
		return decodeGGA(fields)
	case KindRMC:
		return decodeRMC(fields)
	default:
		return position.Frame{}, ErrUnsupported
	}
}

// GGA fields:
//
//	0 time, 1 latitude, 2 N/S, 3 longitude, 4 E/W, 5 fix quality,
//	6 satellites, 7 HDOP, 8 altitude, 9 altitude unit, 10 geoid separation,
//	11 separation unit, 12 DGPS age, 13 DGPS station
//
// Time, both coordinates with their hemispheres and the altitude with its unit
// are required.
func decodeGGA(fields []string) (position.Frame, error) {
	if !arityOK(fields, ggaArities) {
		return position.Frame{}, fmt.Errorf("%w: GGA has %d fields", ErrArity, len(fields))
	}
	// Only an explicit 0 means no fix; an empty quality field is accepted.
	if fields[5] == "0" {
		return position.Frame{}, ErrNoFix
	}
	var f position.Frame
	if err := decodeTime(&f, fields[0]); err != nil {
		return position.Frame{}, err
	}
	if err := decodeLatitude(&f, fields[1], fields[2]); err != nil {
		return position.Frame{}, err
	}
	if err := decodeLongitude(&f, fields[3], fields[4]); err != nil {
		return position.Frame{}, err
	}
	if err := decodeAltitude(&f, fields[8], fields[9]); err != nil {
		return position.Frame{}, err
	}
	return f, nil
}

// RMC fields:
//
//	0 time, 1 status, 2 latitude, 3 N/S, 4 longitude, 5 E/W,
//	6 speed (knots), 7 track (degrees), 8 date, 9 magnetic variation,
//	10 variation E/W, [11 mode], [12 navigational status]
//
// Time and both coordinates with their hemispheres are required. Speed and
// track are optional. The date is accepted but not used.
func decodeRMC(fields []string) (position.Frame, error) {
	if !arityOK(fields, rmcArities) {
		return position.Frame{}, fmt.Errorf("%w: RMC has %d fields", ErrArity, len(fields))
	}
	if fields[1] != "A" {
		return position.Frame{}, ErrNoFix
	}
	var f position.Frame
	if err := decodeTime(&f, fields[0]); err != nil {
		return position.Frame{}, err
	}
	if err := decodeLatitude(&f, fields[2], fields[3]); err != nil {
		return position.Frame{}, err
	}
	if err := decodeLongitude(&f, fields[4], fields[5]); err != nil {
		return position.Frame{}, err
	}
	if fields[6] != "" {
		v, err := parseNumber(fields[6])
		if err != nil {
			return position.Frame{}, err
		}
		f.SpeedMPS = v * knotsToMPS
		f.Set |= position.FieldSpeed
	}
	if fields[7] != "" {
		v, err := parseNumber(fields[7])
		if err != nil {
			return position.Frame{}, err
		}
		f.TrackDeg = v
		f.Set |= position.FieldTrack
	}
	return f, nil
}

func arityOK(fields []string, arities []int) bool {
	for _, n := range arities {
		if len(fields) == n {
			return true
		}
	}
	return false
}

func decodeTime(f *position.Frame, text string) error {
	ms, err := DecodeTimeOfDay(text)
	if err != nil {
		return err
	}
	f.TimeOfDayMillis = ms
	f.Set |= position.FieldTime
	return nil
}

func decodeLatitude(f *position.Frame, value, hemi string) error {
	if hemi != "N" && hemi != "S" {
		return fmt.Errorf("%w: latitude %q", ErrHemisphere, hemi)
	}
	a, err := DecodeAngle(value)
	if err != nil {
		return err
	}
	if hemi == "S" {
		a = -a
	}
	f.LatitudeDeg = a
	f.Set |= position.FieldLatitude
	return nil
}

func decodeLongitude(f *position.Frame, value, hemi string) error {
	if hemi != "E" && hemi != "W" {
		return fmt.Errorf("%w: longitude %q", ErrHemisphere, hemi)
	}
	a, err := DecodeAngle(value)
	if err != nil {
		return err
	}
	if hemi == "W" {
		a = 360 - a
	}
	f.LongitudeDeg = a
	f.Set |= position.FieldLongitude
	return nil
}

func decodeAltitude(f *position.Frame, value, unit string) error {
	if unit != "M" {
		return fmt.Errorf("%w: altitude %q", ErrUnit, unit)
	}
	v, err := parseNumber(value)
	if err != nil {
		return err
	}
	f.AltitudeM = v
	f.Set |= position.FieldAltitude
	return nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNumber, s)
	}
	return v, nil
}
