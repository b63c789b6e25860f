package position

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned for representation names outside the closed set.
var ErrUnknownType = errors.New("unknown-type")

// Type selects how a position is represented: the coordinate format and the
// speed unit.
type Type int

const (
	TypeWGS84 Type = iota
	TypeDMSKmh
	TypeDMSMph
	TypeDMSKn

	typeCount
)

// DefaultType is used when a caller does not name a representation.
const DefaultType = TypeWGS84

var typeNames = [typeCount]string{
	TypeWGS84:  "WGS84",
	TypeDMSKmh: "DMS.km/h",
	TypeDMSMph: "DMS.mph",
	TypeDMSKn:  "DMS.kn",
}

// Types lists every representation in declaration order.
func Types() []Type {
	return []Type{TypeWGS84, TypeDMSKmh, TypeDMSMph, TypeDMSKn}
}

// ParseType maps a wire name to a Type. An empty name selects DefaultType.
func ParseType(name string) (Type, error) {
	if name == "" {
		return DefaultType, nil
	}
	for t, n := range typeNames {
		if n == name {
			return Type(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

func (t Type) Valid() bool { return t >= 0 && t < typeCount }

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type coordSystem int

const (
	coordDecimal coordSystem = iota
	coordDMS
)

type speedUnit int

const (
	unitMPS speedUnit = iota
	unitKmh
	unitMph
	unitKn

	unitCount
)

const (
	mpsToKmh = 3.6
	mpsToMph = 3600 / 1609.344
	mpsToKn  = 3600.0 / 1852.0
)

func (t Type) coords() coordSystem {
	if t == TypeWGS84 {
		return coordDecimal
	}
	return coordDMS
}

func (t Type) unit() speedUnit {
	switch t {
	case TypeDMSKmh:
		return unitKmh
	case TypeDMSMph:
		return unitMph
	case TypeDMSKn:
		return unitKn
	default:
		return unitMPS
	}
}

func (u speedUnit) fromMPS(v float64) float64 {
	switch u {
	case unitKmh:
		return v * mpsToKmh
	case unitMph:
		return v * mpsToMph
	case unitKn:
		return v * mpsToKn
	default:
		return v
	}
}
