// Package scoring holds the fixed dimension catalog, the valid score range, and the one
// formula used to average a vote.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Score range. Scores are half-steps in [Min, Max].
const (
	Min     = 1.0
	Max     = 10.0
	Step    = 0.5
	Default = 5.5
)

// Dimension keys, in catalog order.
const (
	KeyCourage    = "score_courage"
	KeyHonesty    = "score_honesty"
	KeyLoyalty    = "score_loyalty"
	KeyWorkEthic  = "score_work_ethic"
	KeyDiscipline = "score_discipline"
)

// Dimension is one rated personality trait.
type Dimension struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

var catalog = []Dimension{
	{Key: KeyCourage, Title: "Courage and risk taking", Description: "How much courage this person shows when facing difficulty, and how willing they are to take risks."},
	{Key: KeyHonesty, Title: "Honesty and trustworthiness", Description: "How honest, reliable and transparent this person is."},
	{Key: KeyLoyalty, Title: "Commitment and loyalty", Description: "How committed and loyal this person is to the people and causes around them."},
	{Key: KeyWorkEthic, Title: "Work ethic", Description: "How hard-working, productive and persistent this person is."},
	{Key: KeyDiscipline, Title: "Self discipline", Description: "How disciplined, orderly and systematic this person is."},
}

// Dimensions returns a copy of the catalog in display order.
func Dimensions() []Dimension {
	out := make([]Dimension, len(catalog))
	copy(out, catalog)
	return out
}

// Scores are the five raw dimension scores of a vote.
type Scores struct {
	Courage    float64 `json:"score_courage"`
	Honesty    float64 `json:"score_honesty"`
	Loyalty    float64 `json:"score_loyalty"`
	WorkEthic  float64 `json:"score_work_ethic"`
	Discipline float64 `json:"score_discipline"`
}

// Values returns the scores in catalog order.
func (s Scores) Values() []float64 {
	return []float64{s.Courage, s.Honesty, s.Loyalty, s.WorkEthic, s.Discipline}
}

func (s *Scores) field(key string) *float64 {
	switch key {
	case KeyCourage:
		return &s.Courage
	case KeyHonesty:
		return &s.Honesty
	case KeyLoyalty:
		return &s.Loyalty
	case KeyWorkEthic:
		return &s.WorkEthic
	case KeyDiscipline:
		return &s.Discipline
	}
	return nil
}

// ValidationError describes why a set of scores was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// FromMap builds Scores from a key -> value map. Every catalog key must be present,
// unknown keys are rejected, and each value must pass Validate.
func FromMap(m map[string]float64) (Scores, error) {
	var s Scores
	for _, d := range catalog {
		v, ok := m[d.Key]
		if !ok {
			return Scores{}, &ValidationError{Field: d.Key, Reason: "missing"}
		}
		*s.field(d.Key) = v
	}
	if len(m) != len(catalog) {
		var unknown []string
		for k := range m {
			if s.field(k) == nil {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		return Scores{}, &ValidationError{Field: strings.Join(unknown, ","), Reason: "unknown dimension"}
	}
	if err := Validate(s); err != nil {
		return Scores{}, err
	}
	return s, nil
}

// Validate checks every score lies in [Min, Max] on the Step grid.
func Validate(s Scores) error {
	for i, v := range s.Values() {
		key := catalog[i].Key
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: key, Reason: "not a number"}
		}
		if v < Min || v > Max {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("must be between %g and %g", Min, Max)}
		}
		if steps := v / Step; steps != math.Trunc(steps) {
			return &ValidationError{Field: key, Reason: fmt.Sprintf("must be a multiple of %g", Step)}
		}
	}
	return nil
}

// Average is the arithmetic mean of the five scores, rounded to 2 decimal places.
// It is the only place the per-vote average is computed.
func Average(s Scores) decimal.Decimal {
	sum := decimal.Zero
	values := s.Values()
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2)
}

// ApprovalRate is the share of approving verdicts among the votes that carried one, as a
// percentage rounded to 2 decimal places. It is zero when no vote carried a verdict.
func ApprovalRate(approvals, decided int) decimal.Decimal {
	if decided <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(approvals)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(decided))).
		Round(2)
}
