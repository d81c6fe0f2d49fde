package plan

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/strategy"
)

// #endregion

// #region capability-set

// CapabilitySet describes what operations the monitored system actually
// supports, as reported by its probe endpoint.
type CapabilitySet struct {
	SystemID string `json:"system_id"`
	// Operations maps action name → available.
	Operations map[string]bool `json:"operations"`
	// Rollbacks maps action name → the action that undoes it. Actions
	// without an entry have no rollback path.
	Rollbacks map[string]string `json:"rollbacks"`
	// Components maps dimension → the component that produces it.
	Components map[string]string `json:"components"`
	// SnapshotAvailable reports whether a known-good snapshot exists.
	SnapshotAvailable bool `json:"snapshot_available"`
}

// #endregion

// #region bound-step

// BoundStep is one abstract strategy step bound to a concrete component and
// operation of the monitored system.
type BoundStep struct {
	ID                string        `json:"id"`
	Action            string        `json:"action"`
	Component         string        `json:"component"`
	Dimension         string        `json:"dimension"`
	Rollback          string        `json:"rollback,omitempty"` // rollback action, "" = none
	HealthCheck       string        `json:"health_check"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// #endregion

// #region simulation-result

// SimulationResult is the deterministic cost/benefit estimate of a plan.
// It is produced entirely offline; the live system is never touched.
type SimulationResult struct {
	SuccessProbability float64            `json:"success_probability"`
	ProjectedScores    map[string]float64 `json:"projected_scores"`
	EstimatedDuration  time.Duration      `json:"estimated_duration"`
	EstimatedCost      float64            `json:"estimated_cost"`
	RiskFlags          []string           `json:"risk_flags"`
}

// #endregion

// #region plan

// Plan is a strategy bound to concrete parameters plus its simulation.
// A plan is owned exclusively by the cycle that developed it; only its
// outcome survives in history.
type Plan struct {
	ID         string            `json:"id"`
	SystemID   string            `json:"system_id"`
	Strategy   strategy.Strategy `json:"strategy"`
	Steps      []BoundStep       `json:"steps"`
	Simulation SimulationResult  `json:"simulation"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RollbackAvailable reports whether every step has a paired rollback, i.e.
// the plan as a whole can be unwound.
func (p Plan) RollbackAvailable() bool {
	for _, s := range p.Steps {
		if s.Rollback == "" {
			return false
		}
	}
	return len(p.Steps) > 0
}

// #endregion
