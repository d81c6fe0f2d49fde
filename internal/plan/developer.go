package plan

// #region imports
import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
	"github.com/google/uuid"
)

// #endregion

// #region errors

// CapabilityError reports that the monitored system cannot perform a step
// the strategy requires. The cycle treats it as a planning failure for the
// candidate, not an execution failure.
type CapabilityError struct {
	SystemID string
	Action   string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("system %s lacks capability %q", e.SystemID, e.Action)
}

// #endregion

// #region config

// DeveloperConfig tunes the simulation.
type DeveloperConfig struct {
	// IrreversiblePenalty is deducted from the simulated success probability
	// for every step without a rollback binding.
	IrreversiblePenalty float64
	// MinProbability floors the simulated success probability.
	MinProbability float64
	// CostPerMinute converts estimated duration into the cost estimate.
	CostPerMinute float64
}

// DefaultDeveloperConfig returns the baseline simulation knobs.
func DefaultDeveloperConfig() DeveloperConfig {
	return DeveloperConfig{
		IrreversiblePenalty: 0.05,
		MinProbability:      0.05,
		CostPerMinute:       1.0,
	}
}

// #endregion

// #region developer

// Developer expands a strategy into a concrete plan and dry-runs it against
// a model of the system.
type Developer struct {
	config DeveloperConfig
}

// NewDeveloper creates a developer.
func NewDeveloper(config DeveloperConfig) *Developer {
	return &Developer{config: config}
}

// #endregion

// #region develop

// Develop binds the strategy's abstract steps to the system's capability
// inventory and simulates the outcome. It returns a CapabilityError when a
// required operation is unavailable (including a snapshot restore with no
// snapshot to restore).
func (d *Developer) Develop(m entropy.Measurement, strat strategy.Strategy, caps CapabilitySet) (Plan, error) {
	steps := make([]BoundStep, 0, len(strat.Steps))
	for _, desc := range strat.Steps {
		if !caps.Operations[desc.Action] {
			return Plan{}, &CapabilityError{SystemID: caps.SystemID, Action: desc.Action}
		}
		if desc.Action == strategy.ActionRestore && !caps.SnapshotAvailable {
			return Plan{}, &CapabilityError{SystemID: caps.SystemID, Action: desc.Action}
		}

		component := "system"
		if desc.Dimension != "*" {
			component = caps.Components[desc.Dimension]
			if component == "" {
				component = desc.Dimension
			}
		}

		steps = append(steps, BoundStep{
			ID:                uuid.New().String(),
			Action:            desc.Action,
			Component:         component,
			Dimension:         desc.Dimension,
			Rollback:          caps.Rollbacks[desc.Action],
			HealthCheck:       desc.Action + "_health",
			EstimatedDuration: stepDuration(strat, len(strat.Steps)),
		})
	}

	sim := d.simulate(m, strat, steps)

	p := Plan{
		ID:         uuid.New().String(),
		SystemID:   caps.SystemID,
		Strategy:   strat,
		Steps:      steps,
		Simulation: sim,
		CreatedAt:  time.Now().UTC(),
	}

	log.Printf("[DEVELOP] system=%s template=%s steps=%d p=%.2f flags=%d",
		caps.SystemID, strat.TemplateID, len(steps), sim.SuccessProbability, len(sim.RiskFlags))
	return p, nil
}

// #endregion

// #region simulate

// simulate estimates the post-execution entropy per dimension as
// score * (1 - effectiveness), sums the duration across steps, and flags
// every step that has no rollback operation.
func (d *Developer) simulate(m entropy.Measurement, strat strategy.Strategy, steps []BoundStep) SimulationResult {
	targeted := make(map[string]bool, len(strat.Targets))
	for _, t := range strat.Targets {
		targeted[t] = true
	}

	projected := make(map[string]float64, len(m.Scores))
	for _, dim := range sortedDims(m.Scores) {
		score := m.Scores[dim]
		if targeted[dim] {
			projected[dim] = score * (1 - strat.EffectivenessFor(dim))
		} else {
			projected[dim] = score
		}
	}

	var duration time.Duration
	var flags []string
	prob := strat.SuccessProbability
	for _, s := range steps {
		duration += s.EstimatedDuration
		if s.Rollback == "" {
			flags = append(flags, fmt.Sprintf("step %s (%s) has no rollback", s.Action, s.Component))
			prob -= d.config.IrreversiblePenalty
		}
	}
	if prob < d.config.MinProbability {
		prob = d.config.MinProbability
	}

	return SimulationResult{
		SuccessProbability: prob,
		ProjectedScores:    projected,
		EstimatedDuration:  duration,
		EstimatedCost:      duration.Minutes() * d.config.CostPerMinute,
		RiskFlags:          flags,
	}
}

// #endregion

// #region helpers

// stepDuration spreads the strategy's estimated duration across its steps.
func stepDuration(strat strategy.Strategy, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return strat.EstimatedDuration / time.Duration(n)
}

func sortedDims(scores map[string]float64) []string {
	dims := make([]string, 0, len(scores))
	for d := range scores {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

// #endregion
