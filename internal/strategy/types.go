package strategy

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
)

// #endregion

// #region risk-tier

// RiskTier orders remediation strategies by blast radius.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
	RiskVeryHigh
)

// String returns the canonical name of the risk tier.
func (r RiskTier) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskVeryHigh:
		return "very_high"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (r RiskTier) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskTier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "medium":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	case "very_high":
		*r = RiskVeryHigh
	default:
		*r = RiskLow
	}
	return nil
}

// #endregion

// #region step-descriptor

// StepDescriptor is one abstract remediation step before capability binding.
// Dimension "" expands to one step per target dimension; "*" is a single
// system-wide step.
type StepDescriptor struct {
	Action     string `json:"action"`
	Dimension  string `json:"dimension"`
	Reversible bool   `json:"reversible"`
}

// #endregion

// #region strategy

// Strategy is one candidate remediation generated for a single cycle.
// Strategies are never persisted as mutable state; only their outcomes
// survive in the read-only history.
type Strategy struct {
	ID                 string             `json:"id"`
	TemplateID         string             `json:"template_id"`
	Targets            []string           `json:"targets"`
	Steps              []StepDescriptor   `json:"steps"`
	Prior              float64            `json:"prior"`
	SuccessProbability float64            `json:"success_probability"`
	Risk               RiskTier           `json:"risk"`
	EstimatedDuration  time.Duration      `json:"estimated_duration"`
	Effectiveness      map[string]float64 `json:"effectiveness"`
}

// GuaranteedRollback reports whether every step of the strategy is
// reversible at low risk, i.e. the strategy is a guaranteed-safe option.
func (s Strategy) GuaranteedRollback() bool {
	if s.Risk > RiskLow {
		return false
	}
	for _, step := range s.Steps {
		if !step.Reversible {
			return false
		}
	}
	return true
}

// EffectivenessFor returns the per-dimension effectiveness, honoring the
// "*" wildcard entry.
func (s Strategy) EffectivenessFor(dimension string) float64 {
	if v, ok := s.Effectiveness[dimension]; ok {
		return v
	}
	return s.Effectiveness["*"]
}

// #endregion

// #region template

// Template is a built-in strategy shape keyed by the severities it applies to.
type Template struct {
	ID             string
	Description    string
	Severities     []entropy.Severity
	MultiDimension bool // can target every drift dimension at once
	FullReset      bool // rollback-to-last-good; covers all dimensions
	Steps          []StepDescriptor
	Prior          float64
	Risk           RiskTier
	StepDuration   time.Duration // estimate per expanded step
	Effectiveness  map[string]float64
}

// AppliesTo reports whether the template is usable at the given severity.
func (t Template) AppliesTo(sev entropy.Severity) bool {
	for _, s := range t.Severities {
		if s == sev {
			return true
		}
	}
	return false
}

// #endregion

// #region history

// History is the read-only view of past strategy outcomes used to bias
// probability estimates.
type History interface {
	// TemplateSuccessRate returns the historical success rate of a template
	// for one system and the number of outcomes it is based on. n == 0 means
	// no history.
	TemplateSuccessRate(systemID, templateID string) (rate float64, n int, err error)
}

// #endregion
