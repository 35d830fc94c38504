package models

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

type TideType string

const (
	TideTypeHigh TideType = "HIGH"
	TideTypeLow  TideType = "LOW"
)

// Label returns the French name used in calendar titles and previews.
func (t TideType) Label() string {
	switch t {
	case TideTypeHigh:
		return "Pleine Mer"
	case TideTypeLow:
		return "Basse Mer"
	default:
		return string(t)
	}
}

func (t TideType) Valid() bool {
	return t == TideTypeHigh || t == TideTypeLow
}

// Classification records how an adapter decided between high and low tide.
type Classification string

const (
	// ClassificationExplicit means the upstream states the tide type.
	ClassificationExplicit Classification = "explicit"
	// ClassificationTypographic means the type was inferred from markup emphasis.
	ClassificationTypographic Classification = "typographic"
	// ClassificationFallback means no cue was found and LOW was assumed.
	ClassificationFallback Classification = "fallback"
)

// Estimated reports whether the tide type is a heuristic guess.
func (c Classification) Estimated() bool {
	return c == ClassificationTypographic || c == ClassificationFallback
}

const (
	MinCoefficient = 20
	MaxCoefficient = 130
)

// Coefficient is an optional French tidal coefficient. The zero value is absent.
type Coefficient struct {
	Value int
	Valid bool
}

// NoCoefficient is the absent coefficient.
var NoCoefficient = Coefficient{}

// NewCoefficient rounds v to the nearest integer and checks the [20,130] range.
func NewCoefficient(v float64) (Coefficient, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoCoefficient, fmt.Errorf("coefficient %v is not finite", v)
	}
	n := int(math.Round(v))
	if n < MinCoefficient || n > MaxCoefficient {
		return NoCoefficient, fmt.Errorf("coefficient %d outside [%d,%d]", n, MinCoefficient, MaxCoefficient)
	}
	return Coefficient{Value: n, Valid: true}, nil
}

// String is empty when the coefficient is absent, never "0".
func (c Coefficient) String() string {
	if !c.Valid {
		return ""
	}
	return strconv.Itoa(c.Value)
}

// TideEvent is a single tide extremum. Adapters build it, the normalizer
// returns a copy with Civil attached, and nothing mutates it afterwards.
type TideEvent struct {
	// Observed is a UTC instant, or a wall-clock reading in the publishing
	// zone when Naive is set.
	Observed       time.Time
	Naive          bool
	Civil          time.Time
	Type           TideType
	Height         float64
	HeightText     string
	Coefficient    Coefficient
	Classification Classification
	Source         SourceKind
}

// WithCivil returns a copy of the event localized to civil.
func (e TideEvent) WithCivil(civil time.Time) TideEvent {
	e.Civil = civil
	return e
}

// Instant is the civil instant when attached, the observed one otherwise.
func (e TideEvent) Instant() time.Time {
	if !e.Civil.IsZero() {
		return e.Civil
	}
	return e.Observed
}

// FormattedHeight renders the height with two decimals and a metre suffix.
func (e TideEvent) FormattedHeight() string {
	return fmt.Sprintf("%.2fm", e.Height)
}

func (e TideEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("invalid tide type: %q", e.Type)
	}
	if math.IsNaN(e.Height) || math.IsInf(e.Height, 0) {
		return fmt.Errorf("height is not finite: %v", e.Height)
	}
	if e.Height < 0 {
		return fmt.Errorf("negative height: %.2f", e.Height)
	}
	if e.Observed.IsZero() {
		return fmt.Errorf("missing instant")
	}
	if e.Coefficient.Valid && (e.Coefficient.Value < MinCoefficient || e.Coefficient.Value > MaxCoefficient) {
		return fmt.Errorf("coefficient %d outside [%d,%d]", e.Coefficient.Value, MinCoefficient, MaxCoefficient)
	}
	return nil
}
