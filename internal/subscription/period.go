package subscription

import (
	"math/bits"
	"time"
)

const (
	MinPeriod     = 100 * time.Millisecond
	MaxPeriod     = 60 * time.Second
	DefaultPeriod = 2 * time.Second

	periodStep = 100 * time.Millisecond
	gridBits   = 5
)

// NormalizePeriod maps a requested refresh period onto the bucket grid.
//
// The request is clamped to [MinPeriod, MaxPeriod] and counted in 100ms steps;
// only the five most significant bits of that count are kept. Short periods
// therefore stay exact while long ones collapse onto fewer buckets. The result
// is monotonic in p, idempotent, and always a multiple of 100ms.
func NormalizePeriod(p time.Duration) time.Duration {
	p = min(max(p, MinPeriod), MaxPeriod)
	steps := uint(p / periodStep)
	if n := bits.Len(steps); n > gridBits {
		shift := n - gridBits
		steps = steps >> shift << shift
	}
	return time.Duration(steps) * periodStep
}
