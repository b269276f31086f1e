package universe

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/tailrisk/internal/testing"
	"github.com/aristath/tailrisk/pkg/series"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func closesFrom(start time.Time, prices ...float64) []MonthlyClose {
	closes := make([]MonthlyClose, len(prices))
	for i, p := range prices {
		closes[i] = MonthlyClose{Month: start.AddDate(0, i, 0), Close: p}
	}
	return closes
}

func TestHistoryDBRoundTrip(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h, err := NewHistoryDB(db, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	start := month(2020, time.January)

	// 100 -> 105 -> 99.75 -> 104.7375 is +5%, -5%, +5%.
	err = h.UpsertMonthlyCloses(ctx, "PORTFOLIO", closesFrom(start, 100, 105, 99.75, 104.7375))
	require.NoError(t, err)

	t.Run("returns are derived from consecutive closes", func(t *testing.T) {
		s, err := h.Returns(ctx, "PORTFOLIO")
		require.NoError(t, err)

		require.Equal(t, 3, s.Len())
		assert.InDelta(t, 5.0, s.At(0).Return, 1e-9)
		assert.InDelta(t, -5.0, s.At(1).Return, 1e-9)
		assert.InDelta(t, 5.0, s.At(2).Return, 1e-9)
		assert.True(t, s.At(0).Time.Equal(month(2020, time.February)))
	})

	t.Run("upsert replaces an existing month", func(t *testing.T) {
		err := h.UpsertMonthlyCloses(ctx, "PORTFOLIO", []MonthlyClose{
			{Month: month(2020, time.February), Close: 110},
		})
		require.NoError(t, err)

		s, err := h.Returns(ctx, "PORTFOLIO")
		require.NoError(t, err)
		assert.InDelta(t, 10.0, s.At(0).Return, 1e-9)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := h.Returns(ctx, "MISSING")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("symbols are listed sorted", func(t *testing.T) {
		err := h.UpsertMonthlyCloses(ctx, "BENCH", closesFrom(start, 50, 51))
		require.NoError(t, err)

		symbols, err := h.Symbols(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"BENCH", "PORTFOLIO"}, symbols)
	})

	t.Run("delete removes the series", func(t *testing.T) {
		require.NoError(t, h.Delete(ctx, "BENCH"))

		_, err := h.Returns(ctx, "BENCH")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, h.Delete(ctx, "BENCH"), ErrNotFound)
	})
}

func TestAlignedReturns(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "history")
	defer cleanup()

	h, err := NewHistoryDB(db, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()

	// A covers Jan-May, B covers Feb-Jun: return months overlap Mar-May.
	err = h.UpsertMonthlyCloses(ctx, "A", closesFrom(month(2020, time.January), 100, 101, 102, 103, 104))
	require.NoError(t, err)
	err = h.UpsertMonthlyCloses(ctx, "B", closesFrom(month(2020, time.February), 200, 202, 204, 206, 208))
	require.NoError(t, err)

	a, b, err := h.AlignedReturns(ctx, "A", "B")
	require.NoError(t, err)

	require.Equal(t, 3, a.Len())
	require.Equal(t, 3, b.Len())
	for i := 0; i < a.Len(); i++ {
		assert.True(t, a.At(i).Time.Equal(b.At(i).Time))
	}
	assert.True(t, a.At(0).Time.Equal(month(2020, time.March)))
}

func TestReturnsFromCloses(t *testing.T) {
	start := month(2021, time.January)

	t.Run("skips non-positive closes", func(t *testing.T) {
		closes := []MonthlyClose{
			{Month: start, Close: 100},
			{Month: start.AddDate(0, 1, 0), Close: 0},
			{Month: start.AddDate(0, 2, 0), Close: 110},
		}
		s, err := ReturnsFromCloses(closes)
		require.NoError(t, err)

		require.Equal(t, 1, s.Len())
		assert.InDelta(t, 10.0, s.At(0).Return, 1e-9)
		assert.True(t, s.At(0).Time.Equal(start.AddDate(0, 2, 0)))
	})

	t.Run("needs two positive closes", func(t *testing.T) {
		_, err := ReturnsFromCloses([]MonthlyClose{{Month: start, Close: 100}})
		assert.ErrorIs(t, err, series.ErrInsufficientData)

		_, err = ReturnsFromCloses([]MonthlyClose{
			{Month: start, Close: 100},
			{Month: start.AddDate(0, 1, 0), Close: -3},
		})
		assert.ErrorIs(t, err, series.ErrInsufficientData)
	})
}
