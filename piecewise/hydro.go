package piecewise

import (
	"fmt"
	"sort"

	"sddp/solve"
)

// HydroConfig describes one stage of the classic single-reservoir
// hydro-thermal scheduling problem: hydro generation is free, thermal
// generation covers the residual demand at a linear cost, and unused water
// above the reservoir capacity spills.
type HydroConfig struct {
	// Capacity is the reservoir volume bound.
	Capacity float64
	// Demand is the energy demand per stage.
	Demand float64
	// ThermalCost is the unit cost of thermal generation.
	ThermalCost float64
}

// StateName is the reservoir volume state of hydro subproblems.
const StateName = "volume"

// NewHydro returns a minimization subproblem for one hydro-thermal stage.
// The noise realization is the stage inflow, a float64.
func NewHydro(cfg HydroConfig) *Subproblem {
	return New(StateName, 0, cfg.Capacity, solve.Minimize, cfg.stage)
}

func (cfg HydroConfig) stage(incoming float64, noise any, ctg CostToGo) (StageResult, error) {
	inflow, ok := noise.(float64)
	if !ok && noise != nil {
		return StageResult{}, fmt.Errorf("hydro stage expects a float64 inflow, got %T", noise)
	}
	water := incoming + inflow
	if water < 0 {
		return StageResult{}, ErrInfeasible
	}
	hydroMax := water
	if hydroMax > cfg.Demand {
		hydroMax = cfg.Demand
	}

	// The outgoing volume determines everything else: generate as much
	// hydro as the balance allows, spill the remainder. The cost profile
	// is piecewise linear in the outgoing volume, so checking the
	// cost-to-go breakpoints plus the hydro saturation point is exact.
	hi := water
	if hi > cfg.Capacity {
		hi = cfg.Capacity
	}
	candidates := ctg.Candidates(0, hi)
	if saturation := water - hydroMax; saturation > 0 && saturation < hi {
		candidates = append(candidates, saturation)
	}
	sort.Float64s(candidates)

	best := StageResult{}
	bestTotal := 0.0
	found := false
	// Scan larger volumes first so cost ties resolve toward storing
	// water instead of spilling it.
	for i := len(candidates) - 1; i >= 0; i-- {
		outgoing := candidates[i]
		if outgoing < 0 || outgoing > hi {
			continue
		}
		hydro := water - outgoing
		if hydro > hydroMax {
			hydro = hydroMax // the excess spills
		}
		stageCost := cfg.ThermalCost * (cfg.Demand - hydro)
		total := stageCost + ctg.Value(outgoing)
		if !found || total < bestTotal {
			found = true
			bestTotal = total
			best = StageResult{StageObjective: stageCost, Outgoing: outgoing}
		}
	}
	if !found {
		return StageResult{}, ErrInfeasible
	}
	return best, nil
}
