// Package nmea frames and decodes the NMEA-0183 GGA and RMC sentences.
//
// It is deliberately narrow: sentences are checked for grammar and ranges but
// checksums are stripped without being verified, and every other sentence kind
// is ignored.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrTime  = errors.New("nmea: invalid time of day")
	ErrAngle = errors.New("nmea: invalid angle")
)

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func digitIn(c, lo, hi byte) bool { return c >= lo && c <= hi }

// DecodeTimeOfDay parses hhmmss[.fff[f]] into milliseconds since midnight.
//
// A fourth fractional digit rounds the milliseconds half-up.
func DecodeTimeOfDay(text string) (uint32, error) {
	if len(text) < 6 {
		return 0, fmt.Errorf("%w: %q", ErrTime, text)
	}
	hmax := byte('9')
	if text[0] == '2' {
		hmax = '3'
	}
	if !digitIn(text[0], '0', '2') || !digitIn(text[1], '0', hmax) ||
		!digitIn(text[2], '0', '5') || !isDigit(text[3]) ||
		!digitIn(text[4], '0', '5') || !isDigit(text[5]) {
		return 0, fmt.Errorf("%w: %q", ErrTime, text)
	}

	x := uint32(text[0] - '0')
	x = x*10 + uint32(text[1]-'0')
	x = x*6 + uint32(text[2]-'0')
	x = x*10 + uint32(text[3]-'0')
	x = x*6 + uint32(text[4]-'0')
	x = x*10 + uint32(text[5]-'0')
	x *= 1000

	if len(text) == 6 {
		return x, nil
	}
	if text[6] != '.' {
		return 0, fmt.Errorf("%w: %q", ErrTime, text)
	}
	frac := text[7:]
	if len(frac) > 4 {
		return 0, fmt.Errorf("%w: %q", ErrTime, text)
	}
	scale := uint32(100)
	for i := 0; i < len(frac); i++ {
		c := frac[i]
		if !isDigit(c) {
			return 0, fmt.Errorf("%w: %q", ErrTime, text)
		}
		if i == 3 {
			if c >= '5' {
				x++
			}
			break
		}
		x += uint32(c-'0') * scale
		scale /= 10
	}
	return x, nil
}

// DecodeAngle parses [D]DDMM.MMMM into unsigned decimal degrees.
//
// The two digits before the decimal point are minutes and up to three digits
// before them are whole degrees. The hemisphere is applied by the caller.
func DecodeAngle(text string) (float64, error) {
	dot := len(text)
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			dot = i
			break
		}
	}
	if len(text) == 0 || dot > 5 {
		return 0, fmt.Errorf("%w: %q", ErrAngle, text)
	}
	for i := 0; i < dot; i++ {
		if !isDigit(text[i]) {
			return 0, fmt.Errorf("%w: %q", ErrAngle, text)
		}
	}
	for i := dot + 1; i < len(text); i++ {
		if !isDigit(text[i]) {
			return 0, fmt.Errorf("%w: %q", ErrAngle, text)
		}
	}

	degrees := 0
	minStart := 0
	if dot > 2 {
		minStart = dot - 2
		for i := 0; i < minStart; i++ {
			degrees = degrees*10 + int(text[i]-'0')
		}
	}
	mins := text[minStart:]
	if mins == "." {
		return 0, fmt.Errorf("%w: %q", ErrAngle, text)
	}
	m, err := strconv.ParseFloat(mins, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrAngle, text)
	}
	return float64(degrees) + m/60, nil
}
