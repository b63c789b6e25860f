// Package sim generates a synthetic GPS receiver: a deterministic moving fix
// rendered as NMEA RMC and GGA sentences and served over TCP.
package sim

import (
	"math"
	"time"
)

const (
	defaultPeriod   = 120 * time.Second
	defaultRadiusNm = 0.5
	defaultAltM     = 900.0
)

// Path flies a figure-eight around a center point.
type Path struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltMeters    float64
	RadiusNm     float64
	// Period is the time for one full figure-eight.
	Period time.Duration
}

// Fix is one simulated receiver solution. LonDeg is signed, west negative.
type Fix struct {
	Time       time.Time
	LatDeg     float64
	LonDeg     float64
	AltMeters  float64
	SpeedKnots float64
	TrackDeg   float64
}

func (p Path) period() time.Duration {
	if p.Period <= 0 {
		return defaultPeriod
	}
	return p.Period
}

// At returns the fix for now. The result depends on now only.
//
// The horizontal path is x = cos(wt), y = sin(2wt)/2 in units of the radius;
// altitude follows a slow sinusoid of 150 m around AltMeters.
func (p Path) At(now time.Time) Fix {
	period := p.period()
	radiusNm := p.RadiusNm
	if radiusNm <= 0 {
		radiusNm = defaultRadiusNm
	}
	baseAlt := p.AltMeters
	if baseAlt == 0 {
		baseAlt = defaultAltM
	}

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	// About 60 NM per degree of latitude.
	radiusDeg := radiusNm / 60.0
	lat := p.CenterLatDeg + radiusDeg*y
	lon := p.CenterLonDeg + radiusDeg*x/math.Cos(p.CenterLatDeg*math.Pi/180)

	// Velocity in radii per period, east and north.
	ve := -2 * math.Pi * math.Sin(w)
	vn := 2 * math.Pi * math.Cos(2*w)
	track := math.Mod(math.Atan2(ve, vn)*180/math.Pi+360, 360)
	speedKnots := math.Hypot(ve, vn) * radiusNm / period.Hours()

	vp := max(period/2, 30*time.Second)
	vphase := float64(now.UnixNano()%vp.Nanoseconds()) / float64(vp.Nanoseconds())
	alt := baseAlt + 150*math.Sin(2*math.Pi*vphase)

	return Fix{
		Time:       now.UTC(),
		LatDeg:     lat,
		LonDeg:     normalizeLon(lon),
		AltMeters:  alt,
		SpeedKnots: speedKnots,
		TrackDeg:   track,
	}
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
