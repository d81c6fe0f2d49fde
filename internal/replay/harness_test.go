package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
)

func degradedSamples() map[string]entropy.DimensionSample {
	return map[string]entropy.DimensionSample{
		"validation": {Errors: 10, Total: 10, QualityRatio: 0},
		"semantic":   {Errors: 10, Total: 10, QualityRatio: 0},
		"latency":    {Total: 10, QualityRatio: 1},
		"loops":      {Total: 10, QualityRatio: 1},
	}
}

func healthySamples() map[string]entropy.DimensionSample {
	return map[string]entropy.DimensionSample{
		"validation": {Total: 10, QualityRatio: 1},
		"semantic":   {Total: 10, QualityRatio: 1},
		"latency":    {Total: 10, QualityRatio: 1},
		"loops":      {Total: 10, QualityRatio: 1},
	}
}

func testFixture() Fixture {
	return Fixture{
		Name:     "three-cycle",
		SystemID: "sys-a",
		Thresholds: map[string]float64{
			"validation": 0.4, "semantic": 0.5, "latency": 0.6, "loops": 0.5,
		},
		Capabilities: plan.CapabilitySet{
			Operations: map[string]bool{
				strategy.ActionIsolate:    true,
				strategy.ActionRegenerate: true,
				strategy.ActionVerify:     true,
			},
			Rollbacks: map[string]string{
				strategy.ActionIsolate:    "release_component",
				strategy.ActionRegenerate: "restore_component",
				strategy.ActionVerify:     "noop",
			},
		},
		Cycles: []FixtureCycle{
			{Pre: healthySamples(), ExpectedVerdict: cycle.VerdictNoAction},
			{Pre: degradedSamples(), Post: healthySamples(), ExpectedVerdict: cycle.VerdictAccepted},
			{
				Pre:             degradedSamples(),
				FailActions:     []string{strategy.ActionRegenerate},
				ExpectedVerdict: cycle.VerdictRolledBack,
			},
		},
	}
}

func TestRunReplaysFixtureInOrder(t *testing.T) {
	results, summary, err := Run(context.Background(), testFixture())
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, cycle.VerdictNoAction, results[0].Record.Verdict)
	require.Equal(t, cycle.VerdictAccepted, results[1].Record.Verdict)
	require.Equal(t, cycle.VerdictRolledBack, results[2].Record.Verdict)

	for _, r := range results {
		require.True(t, r.Match, "cycle %d: expected %s, got %s", r.Index, r.Expected, r.Record.Verdict)
	}

	require.Equal(t, 3, summary.Total)
	require.Equal(t, 3, summary.Matches)
	require.Zero(t, summary.Mismatches)
	require.Equal(t, 1, summary.ByVerdict[cycle.VerdictAccepted])
}

func TestRunCountsMismatches(t *testing.T) {
	f := testFixture()
	// Claim the healthy first cycle should have been accepted.
	f.Cycles[0].ExpectedVerdict = cycle.VerdictAccepted

	_, summary, err := Run(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Mismatches)
	require.Equal(t, 2, summary.Matches)
}

func TestRunEmptyExpectationAlwaysMatches(t *testing.T) {
	f := testFixture()
	f.Cycles = f.Cycles[:1]
	f.Cycles[0].ExpectedVerdict = ""

	results, _, err := Run(context.Background(), f)
	require.NoError(t, err)
	require.True(t, results[0].Match)
}

func TestParseFixtureValidates(t *testing.T) {
	_, err := ParseFixture([]byte(`{"system_id":"","thresholds":{"validation":0.4}}`))
	require.Error(t, err)

	_, err = ParseFixture([]byte(`{"system_id":"sys-a","thresholds":{}}`))
	require.Error(t, err)

	_, err = ParseFixture([]byte(`{"system_id":"sys-a","thresholds":{"validation":0.4},"cycles":[]}`))
	require.Error(t, err)

	good := `{
		"name": "minimal",
		"system_id": "sys-a",
		"thresholds": {"validation": 0.4},
		"capabilities": {"operations": {"verify_output": true}},
		"cycles": [
			{"pre": {"validation": {"errors": 0, "total": 10, "quality_ratio": 1}},
			 "expected_verdict": "no_action"}
		]
	}`
	f, err := ParseFixture([]byte(good))
	require.NoError(t, err)
	require.Equal(t, "sys-a", f.SystemID)
	require.Len(t, f.Cycles, 1)
	require.Equal(t, cycle.VerdictNoAction, f.Cycles[0].ExpectedVerdict)
}
