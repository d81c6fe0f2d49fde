package charter

import "testing"

func testCharter() Charter {
	return Default("sys-a", map[string]float64{"validation": 0.4, "semantic": 0.5})
}

func TestDefaultCharterValid(t *testing.T) {
	c := testCharter()
	if err := c.Validate(); err != nil {
		t.Fatalf("default charter should validate: %v", err)
	}
	if c.Version != 1 {
		t.Fatalf("expected version 1, got %d", c.Version)
	}
	if len(c.Triggers) != 2 {
		t.Fatalf("expected one trigger per dimension, got %d", len(c.Triggers))
	}
}

func TestValidateRejectsThresholdOutsideRange(t *testing.T) {
	c := testCharter()
	c.Thresholds["validation"] = 1.2
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for threshold > 1")
	}

	c = testCharter()
	c.Thresholds["validation"] = -0.1
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for threshold < 0")
	}
}

func TestValidateRejectsEmptyCriteria(t *testing.T) {
	c := testCharter()
	c.SuccessCriteria = map[string]float64{}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for empty criteria")
	}
}

func TestWithDeltasDoesNotMutateOriginal(t *testing.T) {
	c := testCharter()
	revised := c.WithDeltas(RevisionDeltas{
		Thresholds: map[string]float64{"validation": 0.3},
	})

	if revised.Version != 2 {
		t.Fatalf("expected version 2, got %d", revised.Version)
	}
	if revised.Thresholds["validation"] != 0.3 {
		t.Fatalf("delta not applied: %.2f", revised.Thresholds["validation"])
	}
	if c.Thresholds["validation"] != 0.4 {
		t.Fatalf("original charter mutated: %.2f", c.Thresholds["validation"])
	}
	if revised.Thresholds["semantic"] != 0.5 {
		t.Fatal("untouched threshold should carry over")
	}
}

func TestCriterionFallsBackToThreshold(t *testing.T) {
	c := testCharter()
	delete(c.SuccessCriteria, "semantic")

	v, ok := c.CriterionFor("semantic")
	if !ok || v != 0.5 {
		t.Fatalf("expected threshold fallback 0.5, got %.2f ok=%v", v, ok)
	}
	if _, ok := c.CriterionFor("unknown"); ok {
		t.Fatal("unknown dimension should have no criterion")
	}
}

func TestTriggerFires(t *testing.T) {
	ge := Trigger{Dimension: "validation", Op: ">=", Value: 0.4}
	if !ge.Fires(0.4) {
		t.Fatal(">= trigger should fire at the boundary")
	}
	gt := Trigger{Dimension: "validation", Op: ">", Value: 0.4}
	if gt.Fires(0.4) {
		t.Fatal("> trigger should not fire at the boundary")
	}
}

func TestFiredAnyTriggerSuffices(t *testing.T) {
	c := testCharter()

	if c.Fired(map[string]float64{"validation": 0.1, "semantic": 0.1}) {
		t.Fatal("no trigger should fire for calm scores")
	}
	if !c.Fired(map[string]float64{"validation": 0.1, "semantic": 0.5}) {
		t.Fatal("one firing trigger is enough")
	}
}

func TestFiredWithoutTriggersAlwaysFires(t *testing.T) {
	c := testCharter()
	c.Triggers = nil

	if !c.Fired(map[string]float64{"validation": 0.0}) {
		t.Fatal("charters without triggers must not gate")
	}
}
