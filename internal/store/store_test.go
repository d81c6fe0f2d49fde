package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCharter(systemID string) charter.Charter {
	return charter.Default(systemID, map[string]float64{"validation": 0.4, "semantic": 0.5})
}

func TestEnsureCharterSeedsVersionOne(t *testing.T) {
	s := newTestStore(t)

	ch, err := s.EnsureCharter("sys-a", testCharter("sys-a"))
	require.NoError(t, err)
	require.Equal(t, 1, ch.Version)

	// Second call returns the stored charter, not a fresh seed.
	again, err := s.EnsureCharter("sys-a", testCharter("sys-a"))
	require.NoError(t, err)
	require.Equal(t, ch.Thresholds, again.Thresholds)
	require.Equal(t, 1, again.Version)
}

func TestActiveCharterUnknownSystem(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ActiveCharter("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCommitCharterSwapsActivePointer(t *testing.T) {
	s := newTestStore(t)
	ch, err := s.EnsureCharter("sys-a", testCharter("sys-a"))
	require.NoError(t, err)

	rev := ch.WithDeltas(charter.RevisionDeltas{
		Thresholds: map[string]float64{"validation": 0.35},
	})
	require.NoError(t, s.CommitCharter(rev, ""))

	active, err := s.ActiveCharter("sys-a")
	require.NoError(t, err)
	require.Equal(t, 2, active.Version)
	require.InDelta(t, 0.35, active.Thresholds["validation"], 1e-9)

	versions, err := s.CharterVersions("sys-a", 10)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, 2, versions[0].Version)
}

func TestCommitCharterRejectedWhileLeaseHeldByAnother(t *testing.T) {
	s := newTestStore(t)
	ch, err := s.EnsureCharter("sys-a", testCharter("sys-a"))
	require.NoError(t, err)

	token, err := s.AcquireLease("sys-a")
	require.NoError(t, err)

	rev := ch.WithDeltas(charter.RevisionDeltas{
		Thresholds: map[string]float64{"validation": 0.3},
	})

	// Operator-side commit (no token) must be rejected mid-cycle.
	require.ErrorIs(t, s.CommitCharter(rev, ""), ErrCycleActive)

	// The cycle itself may commit with its own token.
	require.NoError(t, s.CommitCharter(rev, token))

	s.ReleaseLease("sys-a", token)
}

func TestLeaseSingleWriter(t *testing.T) {
	s := newTestStore(t)

	token, err := s.AcquireLease("sys-a")
	require.NoError(t, err)

	_, err = s.AcquireLease("sys-a")
	require.ErrorIs(t, err, ErrCycleActive)

	// A different system is unaffected.
	other, err := s.AcquireLease("sys-b")
	require.NoError(t, err)
	s.ReleaseLease("sys-b", other)

	// Stale token release is a no-op.
	s.ReleaseLease("sys-a", "bogus")
	_, err = s.AcquireLease("sys-a")
	require.ErrorIs(t, err, ErrCycleActive)

	s.ReleaseLease("sys-a", token)
	token2, err := s.AcquireLease("sys-a")
	require.NoError(t, err)
	s.ReleaseLease("sys-a", token2)
}

func TestCycleRecordsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	payload, err := json.Marshal(map[string]string{"verdict": "accepted"})
	require.NoError(t, err)

	_, err = s.LatestCycleRecord("sys-a")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AppendCycleRecord(CycleRow{
		CycleID: "cyc-1", SystemID: "sys-a", Verdict: "no_action",
		FailureClass: "none", RecordJSON: string(payload),
		StartedAt: now.Add(-time.Minute), EndedAt: now.Add(-50 * time.Second),
	}))
	require.NoError(t, s.AppendCycleRecord(CycleRow{
		CycleID: "cyc-2", SystemID: "sys-a", Verdict: "accepted",
		FailureClass: "none", RecordJSON: string(payload),
		StartedAt: now.Add(-30 * time.Second), EndedAt: now,
	}))

	latest, err := s.LatestCycleRecord("sys-a")
	require.NoError(t, err)
	require.Equal(t, "cyc-2", latest.CycleID)
	require.Equal(t, "accepted", latest.Verdict)

	rows, err := s.ListCycleRecords("sys-a", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "cyc-2", rows[0].CycleID)
	require.Equal(t, "cyc-1", rows[1].CycleID)
}

func TestTemplateSuccessRateDecayWeighted(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	rate, n, err := s.TemplateSuccessRate("sys-a", "targeted_regen")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, rate)

	// One recent success, one recent failure → roughly even weights.
	require.NoError(t, s.RecordStrategyOutcome(OutcomeRow{
		SystemID: "sys-a", CycleID: "cyc-1", TemplateID: "targeted_regen",
		Severity: "high", Probability: 0.8, Accepted: true, CreatedAt: now,
	}))
	require.NoError(t, s.RecordStrategyOutcome(OutcomeRow{
		SystemID: "sys-a", CycleID: "cyc-2", TemplateID: "targeted_regen",
		Severity: "high", Probability: 0.8, Accepted: false, CreatedAt: now,
	}))

	rate, n, err = s.TemplateSuccessRate("sys-a", "targeted_regen")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.InDelta(t, 0.5, rate, 0.01)

	// An ancient failure barely moves the decayed rate.
	require.NoError(t, s.RecordStrategyOutcome(OutcomeRow{
		SystemID: "sys-a", CycleID: "cyc-0", TemplateID: "targeted_regen",
		Severity: "high", Probability: 0.8, Accepted: false,
		CreatedAt: now.Add(-90 * 24 * time.Hour),
	}))

	rate, n, err = s.TemplateSuccessRate("sys-a", "targeted_regen")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.InDelta(t, 0.5, rate, 0.01)

	// A failure exactly one half-life old carries half the weight of a
	// fresh success: 1 / (1 + 0.5).
	require.NoError(t, s.RecordStrategyOutcome(OutcomeRow{
		SystemID: "sys-c", CycleID: "cyc-1", TemplateID: "targeted_regen",
		Severity: "high", Probability: 0.8, Accepted: true, CreatedAt: now,
	}))
	require.NoError(t, s.RecordStrategyOutcome(OutcomeRow{
		SystemID: "sys-c", CycleID: "cyc-2", TemplateID: "targeted_regen",
		Severity: "high", Probability: 0.8, Accepted: false,
		CreatedAt: now.Add(-7 * 24 * time.Hour),
	}))
	rate, n, err = s.TemplateSuccessRate("sys-c", "targeted_regen")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.InDelta(t, 1.0/1.5, rate, 0.01)

	// Other templates and systems are isolated.
	rate, n, err = s.TemplateSuccessRate("sys-a", "recalibrate")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, rate)

	rate, n, err = s.TemplateSuccessRate("sys-b", "targeted_regen")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, rate)
}

func TestCommitCharterValidates(t *testing.T) {
	s := newTestStore(t)

	bad := charter.Charter{SystemID: "", Version: 1}
	err := s.CommitCharter(bad, "")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrCycleActive))
}
