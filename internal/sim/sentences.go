package sim

import (
	"fmt"
	"math"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"
)

// Sentences renders f as an RMC and a GGA line, each terminated by CRLF.
func Sentences(f Fix) []string {
	hms := f.Time.Format("150405.00")
	lat, ns := formatAngle(f.LatDeg, 2, "N", "S")
	lon, ew := formatAngle(f.LonDeg, 3, "E", "W")

	rmc := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		hms, lat, ns, lon, ew, f.SpeedKnots, f.TrackDeg, f.Time.Format("020106"))
	gga := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,%.1f,M,47.0,M,,",
		hms, lat, ns, lon, ew, f.AltMeters)
	return []string{frame(rmc), frame(gga)}
}

func frame(payload string) string {
	return "$" + payload + "*" + gonmea.Checksum(payload) + "\r\n"
}

// formatAngle renders |a| as D..DMM.MMMM with degDigits degree digits.
func formatAngle(a float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if a < 0 {
		hemi = neg
		a = -a
	}
	// Work in 1e-4 minutes so rounding never yields 60 minutes.
	units := int64(math.Round(a * 60 * 10000))
	deg := units / (60 * 10000)
	rem := units % (60 * 10000)
	var b strings.Builder
	fmt.Fprintf(&b, "%0*d%02d.%04d", degDigits, deg, rem/10000, rem%10000)
	return b.String(), hemi
}
