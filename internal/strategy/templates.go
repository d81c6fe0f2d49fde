package strategy

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
)

// #endregion

// #region actions

// Abstract step actions. The developer binds them to the monitored system's
// capability inventory; the names double as capability keys.
const (
	ActionIsolate     = "isolate_component"
	ActionRegenerate  = "regenerate_component"
	ActionRecalibrate = "recalibrate_dimension"
	ActionQuiesce     = "quiesce_system"
	ActionRebuild     = "rebuild_pipeline"
	ActionRestore     = "restore_snapshot"
	ActionVerify      = "verify_output"
)

// #endregion

// #region template-definitions

// Templates is the built-in strategy template set, keyed by severity via
// each template's Severities list.
var Templates = []Template{
	{
		ID:             "targeted_regen",
		Description:    "isolate and regenerate the single degraded component",
		Severities:     []entropy.Severity{entropy.SeverityMedium, entropy.SeverityHigh},
		MultiDimension: false,
		Steps: []StepDescriptor{
			{Action: ActionIsolate, Reversible: true},
			{Action: ActionRegenerate, Reversible: true},
			{Action: ActionVerify, Reversible: true},
		},
		Prior:         0.80,
		Risk:          RiskLow,
		StepDuration:  2 * time.Minute,
		Effectiveness: map[string]float64{"*": 0.60},
	},
	{
		ID:             "recalibrate",
		Description:    "recalibrate scoring inputs for one dimension without touching components",
		Severities:     []entropy.Severity{entropy.SeverityMedium},
		MultiDimension: false,
		Steps: []StepDescriptor{
			{Action: ActionRecalibrate, Reversible: true},
			{Action: ActionVerify, Reversible: true},
		},
		Prior:         0.70,
		Risk:          RiskLow,
		StepDuration:  time.Minute,
		Effectiveness: map[string]float64{"*": 0.45},
	},
	{
		ID:             "multi_regen",
		Description:    "regenerate every drifting component in one pass",
		Severities:     []entropy.Severity{entropy.SeverityHigh, entropy.SeverityCritical},
		MultiDimension: true,
		Steps: []StepDescriptor{
			{Action: ActionIsolate, Reversible: true},
			{Action: ActionRegenerate, Reversible: true},
			{Action: ActionVerify, Reversible: true},
		},
		Prior:         0.65,
		Risk:          RiskMedium,
		StepDuration:  3 * time.Minute,
		Effectiveness: map[string]float64{"*": 0.55},
	},
	{
		ID:             "staged_rebuild",
		Description:    "quiesce the system and rebuild the generation pipeline",
		Severities:     []entropy.Severity{entropy.SeverityHigh, entropy.SeverityCritical},
		MultiDimension: true,
		Steps: []StepDescriptor{
			{Action: ActionQuiesce, Dimension: "*", Reversible: true},
			{Action: ActionRebuild, Dimension: "*", Reversible: false},
			{Action: ActionVerify, Dimension: "*", Reversible: true},
		},
		Prior:         0.55,
		Risk:          RiskHigh,
		StepDuration:  5 * time.Minute,
		Effectiveness: map[string]float64{"*": 0.70},
	},
	{
		ID:          "snapshot_restore",
		Description: "restore the last known-good snapshot",
		Severities:  []entropy.Severity{entropy.SeverityCritical},
		FullReset:   true,
		Steps: []StepDescriptor{
			{Action: ActionQuiesce, Dimension: "*", Reversible: true},
			{Action: ActionRestore, Dimension: "*", Reversible: true},
			{Action: ActionVerify, Dimension: "*", Reversible: true},
		},
		Prior:         0.90,
		Risk:          RiskLow,
		StepDuration:  4 * time.Minute,
		Effectiveness: map[string]float64{"*": 0.85},
	},
}

// #endregion
