package sim

import (
	"math"
	"testing"
	"time"
)

func TestPath_At_Invariants(t *testing.T) {
	p := Path{CenterLatDeg: 45.0, CenterLonDeg: -122.0, RadiusNm: 1.0, Period: 60 * time.Second}
	now := time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		f := p.At(now.Add(time.Duration(i) * time.Second))
		for name, v := range map[string]float64{"lat": f.LatDeg, "lon": f.LonDeg, "track": f.TrackDeg, "speed": f.SpeedKnots, "alt": f.AltMeters} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%s invalid: %v", name, v)
			}
		}
		if f.TrackDeg < 0 || f.TrackDeg >= 360 {
			t.Fatalf("track out of range: %v", f.TrackDeg)
		}
		radiusDeg := p.RadiusNm / 60.0
		if math.Abs(f.LatDeg-p.CenterLatDeg) > radiusDeg*1.01 {
			t.Fatalf("lat offset too large: %f", math.Abs(f.LatDeg-p.CenterLatDeg))
		}
		maxLonDeg := radiusDeg / math.Cos(p.CenterLatDeg*math.Pi/180.0)
		if math.Abs(f.LonDeg-p.CenterLonDeg) > maxLonDeg*1.01 {
			t.Fatalf("lon offset too large: %f", math.Abs(f.LonDeg-p.CenterLonDeg))
		}
		// Between 2π and 2π√2 radii per period, flown in a minute.
		if f.SpeedKnots < 300 || f.SpeedKnots > 600 {
			t.Fatalf("speed=%v", f.SpeedKnots)
		}
		if f.AltMeters < defaultAltM-150.01 || f.AltMeters > defaultAltM+150.01 {
			t.Fatalf("alt=%v", f.AltMeters)
		}
	}
}

func TestPath_At_DeterministicForNow(t *testing.T) {
	p := Path{CenterLatDeg: 1, CenterLonDeg: 2}
	now := time.Date(2025, 12, 20, 19, 0, 0, 123, time.UTC)
	if a, b := p.At(now), p.At(now); a != b {
		t.Fatalf("expected deterministic result: %+v != %+v", a, b)
	}
}

func TestNormalizeLon(t *testing.T) {
	for in, want := range map[float64]float64{0: 0, 179.5: 179.5, 180.5: -179.5, -181: 179, -122: -122} {
		if got := normalizeLon(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("normalizeLon(%v)=%v want %v", in, got, want)
		}
	}
}
