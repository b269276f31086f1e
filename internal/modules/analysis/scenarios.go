package analysis

import "github.com/aristath/tailrisk/pkg/stress"

// BaseScenarios is the standard stress battery in one application mode. The
// identity scenario anchors the grid so stressed rows can be read against an
// untouched baseline; the crisis scenario shifts every mean down by two
// percentage points at unchanged dispersion.
func BaseScenarios(mode stress.Mode, seed uint64) []stress.Scenario {
	return []stress.Scenario{
		{Name: "identity", VolatilityMultiplier: 1.0, MeanShift: 0.0, Mode: mode, Seed: seed},
		{Name: "vol x1.5", VolatilityMultiplier: 1.5, MeanShift: 0.0, Mode: mode, Seed: seed},
		{Name: "vol x2.0", VolatilityMultiplier: 2.0, MeanShift: 0.0, Mode: mode, Seed: seed},
		{Name: "crisis shift -2pp", VolatilityMultiplier: 1.0, MeanShift: -2.0, Mode: mode, Seed: seed},
	}
}
