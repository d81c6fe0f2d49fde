package plan

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
)

func fullCaps() CapabilitySet {
	return CapabilitySet{
		SystemID: "sys-a",
		Operations: map[string]bool{
			strategy.ActionIsolate:     true,
			strategy.ActionRegenerate:  true,
			strategy.ActionRecalibrate: true,
			strategy.ActionQuiesce:     true,
			strategy.ActionRebuild:     true,
			strategy.ActionRestore:     true,
			strategy.ActionVerify:      true,
		},
		Rollbacks: map[string]string{
			strategy.ActionIsolate:    "release_component",
			strategy.ActionRegenerate: "restore_component",
			strategy.ActionQuiesce:    "resume_system",
			strategy.ActionRestore:    "restore_snapshot",
			strategy.ActionVerify:     "noop",
		},
		Components:        map[string]string{"validation": "validator", "semantic": "semantic-engine"},
		SnapshotAvailable: true,
	}
}

func targetedStrategy() strategy.Strategy {
	return strategy.Strategy{
		ID:         "s-1",
		TemplateID: "targeted_regen",
		Targets:    []string{"validation"},
		Steps: []strategy.StepDescriptor{
			{Action: strategy.ActionIsolate, Dimension: "validation", Reversible: true},
			{Action: strategy.ActionRegenerate, Dimension: "validation", Reversible: true},
			{Action: strategy.ActionVerify, Dimension: "validation", Reversible: true},
		},
		Prior:              0.8,
		SuccessProbability: 0.8,
		Risk:               strategy.RiskLow,
		EstimatedDuration:  6 * time.Minute,
		Effectiveness:      map[string]float64{"*": 0.6},
	}
}

func preMeasurement() entropy.Measurement {
	return entropy.Measurement{
		SystemID: "sys-a",
		Scores:   map[string]float64{"validation": 0.8, "semantic": 0.3},
		Severity: entropy.SeverityHigh,
	}
}

func TestDevelopBindsStepsToComponents(t *testing.T) {
	d := NewDeveloper(DefaultDeveloperConfig())

	p, err := d.Develop(preMeasurement(), targetedStrategy(), fullCaps())
	if err != nil {
		t.Fatalf("develop failed: %v", err)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("expected 3 bound steps, got %d", len(p.Steps))
	}
	if p.Steps[0].Component != "validator" {
		t.Fatalf("expected component binding 'validator', got %q", p.Steps[0].Component)
	}
	if p.Steps[0].Rollback != "release_component" {
		t.Fatalf("expected rollback binding, got %q", p.Steps[0].Rollback)
	}
	if !p.RollbackAvailable() {
		t.Fatal("fully reversible plan should report rollback available")
	}
}

func TestDevelopRejectsMissingCapability(t *testing.T) {
	d := NewDeveloper(DefaultDeveloperConfig())
	caps := fullCaps()
	caps.Operations[strategy.ActionRegenerate] = false

	_, err := d.Develop(preMeasurement(), targetedStrategy(), caps)

	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if capErr.Action != strategy.ActionRegenerate {
		t.Fatalf("expected missing regenerate, got %q", capErr.Action)
	}
}

func TestDevelopRejectsRestoreWithoutSnapshot(t *testing.T) {
	d := NewDeveloper(DefaultDeveloperConfig())
	caps := fullCaps()
	caps.SnapshotAvailable = false

	strat := targetedStrategy()
	strat.Steps = []strategy.StepDescriptor{{Action: strategy.ActionRestore, Dimension: "*", Reversible: true}}

	_, err := d.Develop(preMeasurement(), strat, caps)

	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError for missing snapshot, got %v", err)
	}
}

func TestSimulationProjectsTargetedDimensionsOnly(t *testing.T) {
	d := NewDeveloper(DefaultDeveloperConfig())

	p, err := d.Develop(preMeasurement(), targetedStrategy(), fullCaps())
	if err != nil {
		t.Fatalf("develop failed: %v", err)
	}

	// validation: 0.8 * (1 - 0.6) = 0.32; semantic untouched.
	if math.Abs(p.Simulation.ProjectedScores["validation"]-0.32) > 1e-9 {
		t.Fatalf("expected projected 0.32, got %.4f", p.Simulation.ProjectedScores["validation"])
	}
	if p.Simulation.ProjectedScores["semantic"] != 0.3 {
		t.Fatalf("untargeted dimension must not move, got %.4f", p.Simulation.ProjectedScores["semantic"])
	}
}

func TestSimulationFlagsIrreversibleSteps(t *testing.T) {
	d := NewDeveloper(DefaultDeveloperConfig())
	caps := fullCaps()
	delete(caps.Rollbacks, strategy.ActionRegenerate)

	p, err := d.Develop(preMeasurement(), targetedStrategy(), caps)
	if err != nil {
		t.Fatalf("develop failed: %v", err)
	}

	if len(p.Simulation.RiskFlags) != 1 {
		t.Fatalf("expected one risk flag, got %d", len(p.Simulation.RiskFlags))
	}
	want := 0.8 - 0.05
	if math.Abs(p.Simulation.SuccessProbability-want) > 1e-9 {
		t.Fatalf("expected penalized probability %.2f, got %.4f", want, p.Simulation.SuccessProbability)
	}
	if p.RollbackAvailable() {
		t.Fatal("plan with an irreversible step must not report rollback available")
	}
}

func TestSimulationDurationAndCost(t *testing.T) {
	d := NewDeveloper(DefaultDeveloperConfig())

	p, err := d.Develop(preMeasurement(), targetedStrategy(), fullCaps())
	if err != nil {
		t.Fatalf("develop failed: %v", err)
	}

	if p.Simulation.EstimatedDuration != 6*time.Minute {
		t.Fatalf("expected 6m total duration, got %s", p.Simulation.EstimatedDuration)
	}
	if math.Abs(p.Simulation.EstimatedCost-6.0) > 1e-9 {
		t.Fatalf("expected cost 6.0, got %.2f", p.Simulation.EstimatedCost)
	}
}
