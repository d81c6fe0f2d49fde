package replay

// #region imports
import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/executor"
	"github.com/danielpatrickdp/regen-loop/internal/monitor"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
	"github.com/danielpatrickdp/regen-loop/internal/store"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
)

// #endregion

// #region scripted-system

// scriptedSystem plays the role of the probe: it serves the current cycle's
// telemetry, the fixture's capability set, and scripted step outcomes.
type scriptedSystem struct {
	caps plan.CapabilitySet

	mu       sync.Mutex
	pre      map[string]entropy.DimensionSample
	post     map[string]entropy.DimensionSample
	measured bool
	fail     map[string]bool
}

func (s *scriptedSystem) load(c FixtureCycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre = c.Pre
	s.post = c.Post
	s.measured = false
	s.fail = make(map[string]bool, len(c.FailActions))
	for _, a := range c.FailActions {
		s.fail[a] = true
	}
}

// Measure serves the pre batch first, then the post batch.
func (s *scriptedSystem) Measure(ctx context.Context, systemID string) (entropy.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.pre
	if s.measured {
		if len(s.post) == 0 {
			return entropy.Batch{}, fmt.Errorf("replay: cycle has no post telemetry")
		}
		samples = s.post
	}
	s.measured = true

	return entropy.Batch{SystemID: systemID, Samples: samples, TakenAt: time.Now().UTC()}, nil
}

func (s *scriptedSystem) Capabilities(ctx context.Context, systemID string) (plan.CapabilitySet, error) {
	caps := s.caps
	caps.SystemID = systemID
	return caps, nil
}

func (s *scriptedSystem) ExecuteStep(ctx context.Context, systemID string, step plan.BoundStep) (executor.StepResult, error) {
	s.mu.Lock()
	failed := s.fail[step.Action]
	s.mu.Unlock()
	if failed {
		return executor.StepResult{StepID: step.ID, OK: false, Detail: "scripted failure"}, nil
	}
	return executor.StepResult{StepID: step.ID, OK: true, Healthy: true}, nil
}

func (s *scriptedSystem) RollbackStep(ctx context.Context, systemID string, step plan.BoundStep) (executor.StepResult, error) {
	return executor.StepResult{StepID: step.ID, OK: true, Healthy: true}, nil
}

// #endregion

// #region result-types

// Result is one replayed cycle against its expectation.
type Result struct {
	Index    int               `json:"index"`
	Record   cycle.CycleRecord `json:"record"`
	Expected cycle.Verdict     `json:"expected"`
	Match    bool              `json:"match"`
}

// Summary aggregates a replay run.
type Summary struct {
	Fixture    string                `json:"fixture"`
	Total      int                   `json:"total"`
	Matches    int                   `json:"matches"`
	Mismatches int                   `json:"mismatches"`
	ByVerdict  map[cycle.Verdict]int `json:"by_verdict"`
}

// #endregion

// #region run

// Run replays every cycle of the fixture in order through a fresh in-memory
// controller. State accumulated across cycles (trend history, strategy
// outcomes, charter adaptation) carries forward exactly as it would live.
func Run(ctx context.Context, f Fixture) ([]Result, Summary, error) {
	st, err := store.NewStore(":memory:")
	if err != nil {
		return nil, Summary{}, fmt.Errorf("replay: open store: %w", err)
	}
	defer st.Close()

	system := &scriptedSystem{caps: f.Capabilities}

	cfg := cycle.DefaultConfig(f.Thresholds)
	cfg.MeasureTimeout = 5 * time.Second

	orch := cycle.New(cfg,
		entropy.NewEvaluator(entropy.DefaultEvaluatorConfig()),
		strategy.NewExplorer(st),
		plan.NewDeveloper(plan.DefaultDeveloperConfig()),
		executor.New(system, time.Minute),
		monitor.New(monitor.Config{ObservationWindow: 0, DivergenceTolerance: 0.1}),
		st, system, system,
	)

	results := make([]Result, 0, len(f.Cycles))
	for i, c := range f.Cycles {
		system.load(c)

		trigger := c.Trigger
		if trigger == "" {
			trigger = "replay"
		}

		rec, err := orch.TriggerCycle(ctx, f.SystemID, trigger)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("replay: cycle %d: %w", i, err)
		}

		results = append(results, Result{
			Index:    i,
			Record:   rec,
			Expected: c.ExpectedVerdict,
			Match:    c.ExpectedVerdict == "" || rec.Verdict == c.ExpectedVerdict,
		})
	}

	return results, Summarize(f.Name, results), nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(fixture string, results []Result) Summary {
	s := Summary{
		Fixture:   fixture,
		Total:     len(results),
		ByVerdict: make(map[cycle.Verdict]int),
	}
	for _, r := range results {
		if r.Match {
			s.Matches++
		} else {
			s.Mismatches++
		}
		s.ByVerdict[r.Record.Verdict]++
	}
	return s
}

// #endregion
