package nmea

import (
	"errors"
	"fmt"
	"strings"
)

var ErrArity = errors.New("nmea: unexpected field count")

// SplitFields splits s on commas and accepts the result only if its length is
// one of arities. Empty fields are kept, including a trailing one.
func SplitFields(s string, arities ...int) ([]string, error) {
	fields := strings.Split(s, ",")
	for _, n := range arities {
		if len(fields) == n {
			return fields, nil
		}
	}
	return nil, fmt.Errorf("%w: got %d want %v", ErrArity, len(fields), arities)
}
