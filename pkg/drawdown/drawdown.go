// Package drawdown derives peak-to-trough loss paths from return series:
// wealth index, running maximum, drawdown percentages, recovery gaps, and
// cross-series divergence points.
package drawdown

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/tailrisk/pkg/series"
)

// Point is one step of a drawdown path.
type Point struct {
	Time time.Time `json:"time"`
	// Wealth is the cumulative product of (1 + r/100), starting from 1.
	Wealth float64 `json:"wealth"`
	// RunningMax is the highest wealth seen so far, never below the
	// starting capital of 1.
	RunningMax float64 `json:"running_max"`
	// Drawdown is (Wealth-RunningMax)/RunningMax*100, always <= 0.
	Drawdown float64 `json:"drawdown"`
}

// Path is a full drawdown history with its worst point.
type Path struct {
	Points          []Point   `json:"points"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	MaxDrawdownTime time.Time `json:"max_drawdown_time"`
}

// RecoveryGap is the calendar span between two consecutive all-time highs.
type RecoveryGap struct {
	Months int       `json:"months"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Divergence marks a timestamp where two drawdown paths differ by at least
// the requested number of percentage points. Gap is the signed spread A-B;
// a negative gap means A is deeper underwater than B.
type Divergence struct {
	Time time.Time `json:"time"`
	A    float64   `json:"a"`
	B    float64   `json:"b"`
	Gap  float64   `json:"gap"`
}

// Compute builds the drawdown path for a return series.
func Compute(s *series.Series) (*Path, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("empty series: %w", series.ErrInvalidInput)
	}

	points := make([]Point, s.Len())
	wealth := 1.0
	peak := 1.0
	maxDrawdown := 0.0
	maxIdx := 0

	for i := 0; i < s.Len(); i++ {
		obs := s.At(i)
		wealth *= 1.0 + obs.Return/100.0

		if wealth > peak {
			peak = wealth
		}
		dd := (wealth - peak) / peak * 100.0

		points[i] = Point{
			Time:       obs.Time,
			Wealth:     wealth,
			RunningMax: peak,
			Drawdown:   dd,
		}
		if dd < maxDrawdown {
			maxDrawdown = dd
			maxIdx = i
		}
	}

	return &Path{
		Points:          points,
		MaxDrawdown:     maxDrawdown,
		MaxDrawdownTime: points[maxIdx].Time,
	}, nil
}

// LongestRecoveryGap reports the widest calendar-month span between
// consecutive all-time highs. The second return is false when the path
// reaches a high fewer than two times, in which case no gap is defined;
// a monotonically declining series has no recovery gap.
func (p *Path) LongestRecoveryGap() (RecoveryGap, bool) {
	var highs []Point
	for _, pt := range p.Points {
		if pt.Drawdown == 0 {
			highs = append(highs, pt)
		}
	}
	if len(highs) < 2 {
		return RecoveryGap{}, false
	}

	best := RecoveryGap{}
	for i := 1; i < len(highs); i++ {
		gap := monthsBetween(highs[i-1].Time, highs[i].Time)
		if gap > best.Months {
			best = RecoveryGap{
				Months: gap,
				Start:  highs[i-1].Time,
				End:    highs[i].Time,
			}
		}
	}
	return best, true
}

// Divergences filters timestamps where the two paths' drawdowns differ by at
// least threshold percentage points in either direction. The paths must be
// aligned to the same timestamps.
func Divergences(a, b *Path, threshold float64) ([]Divergence, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("nil path: %w", series.ErrInvalidInput)
	}
	if len(a.Points) != len(b.Points) {
		return nil, fmt.Errorf("path lengths differ (%d vs %d): %w",
			len(a.Points), len(b.Points), series.ErrInvalidInput)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold %v must be positive: %w", threshold, series.ErrInvalidInput)
	}

	var out []Divergence
	for i := range a.Points {
		pa, pb := a.Points[i], b.Points[i]
		if !pa.Time.Equal(pb.Time) {
			return nil, fmt.Errorf("paths misaligned at index %d: %w", i, series.ErrInvalidInput)
		}

		gap := pa.Drawdown - pb.Drawdown
		if math.Abs(gap) >= threshold {
			out = append(out, Divergence{
				Time: pa.Time,
				A:    pa.Drawdown,
				B:    pb.Drawdown,
				Gap:  gap,
			})
		}
	}
	return out, nil
}

// monthsBetween counts whole calendar months from a to b, ignoring the day
// component. Monthly series never need finer resolution.
func monthsBetween(a, b time.Time) int {
	years := b.Year() - a.Year()
	months := int(b.Month()) - int(a.Month())
	return years*12 + months
}
