// Package series provides the return-series data model shared by all
// risk estimators: an ordered sequence of (timestamp, percentage return)
// observations, immutable once constructed.
package series

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Shared failure modes. Estimators wrap these with context via fmt.Errorf
// so callers can branch with errors.Is.
var (
	// ErrInvalidInput signals malformed or misaligned caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData signals a statistically valid call with too few
	// observations for a reliable estimate.
	ErrInsufficientData = errors.New("insufficient data")
)

// Point is a single observation: the percentage return for the period
// ending at Time. A return of 1.5 means +1.5%.
type Point struct {
	Time   time.Time `json:"time"`
	Return float64   `json:"return"`
}

// Series is an ordered return series with strictly increasing timestamps
// and no internal missing values. Immutable once built; accessors copy.
type Series struct {
	points []Point
}

// New builds a Series from points. NaN and Inf returns are dropped at
// construction. The remaining timestamps must be strictly increasing.
func New(points []Point) (*Series, error) {
	kept := make([]Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Return) || math.IsInf(p.Return, 0) {
			continue
		}
		if p.Time.IsZero() {
			return nil, fmt.Errorf("point has zero timestamp: %w", ErrInvalidInput)
		}
		kept = append(kept, p)
	}

	for i := 1; i < len(kept); i++ {
		if !kept[i].Time.After(kept[i-1].Time) {
			return nil, fmt.Errorf("timestamps must be strictly increasing (index %d): %w", i, ErrInvalidInput)
		}
	}

	return &Series{points: kept}, nil
}

// FromValues builds a Series from parallel timestamp and return slices.
func FromValues(times []time.Time, returns []float64) (*Series, error) {
	if len(times) != len(returns) {
		return nil, fmt.Errorf("times and returns length mismatch (%d vs %d): %w", len(times), len(returns), ErrInvalidInput)
	}

	points := make([]Point, len(times))
	for i := range times {
		points[i] = Point{Time: times[i], Return: returns[i]}
	}

	return New(points)
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.points)
}

// At returns the observation at index i.
func (s *Series) At(i int) Point {
	return s.points[i]
}

// Values returns a copy of the return values in time order.
func (s *Series) Values() []float64 {
	values := make([]float64, len(s.points))
	for i, p := range s.points {
		values[i] = p.Return
	}
	return values
}

// Times returns a copy of the observation timestamps in time order.
func (s *Series) Times() []time.Time {
	times := make([]time.Time, len(s.points))
	for i, p := range s.points {
		times[i] = p.Time
	}
	return times
}

// Points returns a copy of all observations.
func (s *Series) Points() []Point {
	points := make([]Point, len(s.points))
	copy(points, s.points)
	return points
}

// Align inner-joins two series on their timestamps, preserving order.
// Observations without a matching timestamp in the other series are
// dropped. Returns ErrInvalidInput when the intersection is empty.
func Align(a, b *Series) (*Series, *Series, error) {
	if a == nil || b == nil {
		return nil, nil, fmt.Errorf("nil series: %w", ErrInvalidInput)
	}

	var pa, pb []Point
	i, j := 0, 0
	for i < len(a.points) && j < len(b.points) {
		ta, tb := a.points[i].Time, b.points[j].Time
		switch {
		case ta.Equal(tb):
			pa = append(pa, a.points[i])
			pb = append(pb, b.points[j])
			i++
			j++
		case ta.Before(tb):
			i++
		default:
			j++
		}
	}

	if len(pa) == 0 {
		return nil, nil, fmt.Errorf("no overlapping timestamps: %w", ErrInvalidInput)
	}

	return &Series{points: pa}, &Series{points: pb}, nil
}
