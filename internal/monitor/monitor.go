package monitor

// #region imports
import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
)

// #endregion

// #region verdict

// Verdict is the control monitor's post-execution decision.
type Verdict string

const (
	VerdictAccept   Verdict = "accept"
	VerdictRollback Verdict = "rollback"
	VerdictEscalate Verdict = "escalate"
)

// #endregion

// #region types

// Divergence records a targeted dimension whose observed post-execution
// score strayed from the simulation beyond tolerance.
type Divergence struct {
	Dimension string  `json:"dimension"`
	Projected float64 `json:"projected"`
	Observed  float64 `json:"observed"`
	Delta     float64 `json:"delta"`
}

// Decision is the monitor's full assessment of one executed plan.
type Decision struct {
	Verdict        Verdict      `json:"verdict"`
	Reason         string       `json:"reason"`
	EntropyDropped bool         `json:"entropy_dropped"`
	CriteriaMet    bool         `json:"criteria_met"`
	Divergences    []Divergence `json:"divergences,omitempty"`
}

// Config tunes the control checks.
type Config struct {
	// ObservationWindow is how long the orchestrator watches the system
	// after execution before the post measurement is taken.
	ObservationWindow time.Duration
	// DivergenceTolerance bounds |observed - simulated| per targeted
	// dimension before a divergence is flagged.
	DivergenceTolerance float64
}

// DefaultConfig returns the baseline control configuration.
func DefaultConfig() Config {
	return Config{
		ObservationWindow:   30 * time.Second,
		DivergenceTolerance: 0.1,
	}
}

// #endregion

// #region monitor

// Monitor runs the statistical control check after plan execution.
type Monitor struct {
	config Config
}

// New creates a monitor.
func New(config Config) *Monitor {
	return &Monitor{config: config}
}

// Window returns the configured observation window.
func (m *Monitor) Window() time.Duration {
	return m.config.ObservationWindow
}

// #endregion

// #region assess

// Assess compares the post-execution measurement against the pre-execution
// one and the charter's success criteria. Acceptance requires a strict
// entropy decrease AND every targeted dimension meeting its criterion;
// anything else is a rollback when a rollback path exists, else escalation.
//
// Divergence between the simulation and reality beyond tolerance does not
// change the verdict by itself, but is flagged and logged so the planner's
// model can be audited.
func (m *Monitor) Assess(pre, post entropy.Measurement, ch charter.Charter, p plan.Plan, rollbackAvailable bool) Decision {
	dropped := post.WeightedScore < pre.WeightedScore

	criteriaMet := true
	for _, dim := range p.Strategy.Targets {
		target, ok := ch.CriterionFor(dim)
		if !ok {
			continue
		}
		if post.Scores[dim] > target {
			criteriaMet = false
		}
	}

	divergences := m.divergences(post, p)
	for _, d := range divergences {
		log.Printf("[MONITOR] system=%s dimension=%s simulated=%.3f observed=%.3f beyond tolerance %.3f",
			post.SystemID, d.Dimension, d.Projected, d.Observed, m.config.DivergenceTolerance)
	}

	if dropped && criteriaMet {
		return Decision{
			Verdict:        VerdictAccept,
			Reason:         fmt.Sprintf("entropy %.3f → %.3f, all criteria met", pre.WeightedScore, post.WeightedScore),
			EntropyDropped: true,
			CriteriaMet:    true,
			Divergences:    divergences,
		}
	}

	reason := fmt.Sprintf("entropy %.3f → %.3f", pre.WeightedScore, post.WeightedScore)
	if !dropped {
		reason += "; entropy did not strictly decrease"
	}
	if !criteriaMet {
		reason += "; success criteria unmet for targeted dimensions"
	}

	verdict := VerdictRollback
	if !rollbackAvailable {
		verdict = VerdictEscalate
		reason += "; no rollback path available"
	}

	return Decision{
		Verdict:        verdict,
		Reason:         reason,
		EntropyDropped: dropped,
		CriteriaMet:    criteriaMet,
		Divergences:    divergences,
	}
}

// #endregion

// #region divergence

func (m *Monitor) divergences(post entropy.Measurement, p plan.Plan) []Divergence {
	var out []Divergence
	for _, dim := range p.Strategy.Targets {
		projected, ok := p.Simulation.ProjectedScores[dim]
		if !ok {
			continue
		}
		delta := math.Abs(post.Scores[dim] - projected)
		if delta > m.config.DivergenceTolerance {
			out = append(out, Divergence{
				Dimension: dim,
				Projected: projected,
				Observed:  post.Scores[dim],
				Delta:     delta,
			})
		}
	}
	return out
}

// #endregion
