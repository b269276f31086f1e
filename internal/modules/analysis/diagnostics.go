package analysis

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/aristath/tailrisk/pkg/series"
)

// RollingVolatility computes the annualized rolling standard deviation of a
// monthly return series. Each point carries the standard deviation of the
// window ending at its timestamp, scaled by sqrt(12).
func RollingVolatility(s *series.Series, window int) ([]VolatilityPoint, error) {
	if s == nil {
		return nil, fmt.Errorf("nil series: %w", series.ErrInvalidInput)
	}
	if window < 2 {
		return nil, fmt.Errorf("window %d too small: %w", window, series.ErrInvalidInput)
	}
	if s.Len() < window {
		return nil, fmt.Errorf("rolling volatility needs %d observations, have %d: %w",
			window, s.Len(), series.ErrInsufficientData)
	}

	values := s.Values()
	times := s.Times()
	stddev := talib.StdDev(values, window, 1.0)

	points := make([]VolatilityPoint, 0, len(values)-window+1)
	for i := window - 1; i < len(stddev); i++ {
		points = append(points, VolatilityPoint{
			Time:       times[i],
			Volatility: stddev[i] * math.Sqrt(12),
		})
	}
	return points, nil
}
