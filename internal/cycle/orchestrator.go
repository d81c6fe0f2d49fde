// Package cycle runs the regeneration state machine end to end:
// measure, explore, develop, implement, monitor, record.
package cycle

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/regen-loop/internal/audit"
	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/executor"
	"github.com/danielpatrickdp/regen-loop/internal/monitor"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
	"github.com/danielpatrickdp/regen-loop/internal/store"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
	"github.com/danielpatrickdp/regen-loop/internal/telemetry"
)

// #endregion

// #region config

// Config tunes the orchestrator.
type Config struct {
	// AcceptanceFloor is the minimum simulated success probability; the
	// floor itself is acceptable.
	AcceptanceFloor float64
	// MaxDevelopRetries bounds how many further candidates are tried after
	// the first develop rejection.
	MaxDevelopRetries int
	MeasureTimeout    time.Duration
	// DevelopTimeout bounds the planning stage's capability discovery call.
	DevelopTimeout time.Duration
	// AdaptThresholds enables post-success charter threshold adaptation.
	AdaptThresholds bool
	// DefaultThresholds seed the charter for systems seen for the first time.
	DefaultThresholds map[string]float64
}

// DefaultConfig returns the baseline orchestrator configuration.
func DefaultConfig(thresholds map[string]float64) Config {
	return Config{
		AcceptanceFloor:   0.6,
		MaxDevelopRetries: 2,
		MeasureTimeout:    10 * time.Second,
		DevelopTimeout:    15 * time.Second,
		AdaptThresholds:   true,
		DefaultThresholds: thresholds,
	}
}

// #endregion

// #region orchestrator

// CapabilityProvider exposes the monitored system's capability inventory.
type CapabilityProvider interface {
	Capabilities(ctx context.Context, systemID string) (plan.CapabilitySet, error)
}

// Orchestrator owns one full cycle per trigger. Cycles are single-writer
// per system: a second trigger while one runs fails with ErrCycleActive.
type Orchestrator struct {
	config    Config
	evaluator *entropy.Evaluator
	explorer  *strategy.Explorer
	developer *plan.Developer
	exec      *executor.Executor
	monitor   *monitor.Monitor
	store     *store.Store
	sources   []telemetry.Source
	caps      CapabilityProvider
}

// ErrCycleActive is re-exported so callers need not import the store.
var ErrCycleActive = store.ErrCycleActive

// New wires an orchestrator.
func New(config Config, evaluator *entropy.Evaluator, explorer *strategy.Explorer,
	developer *plan.Developer, exec *executor.Executor, mon *monitor.Monitor,
	st *store.Store, caps CapabilityProvider, sources ...telemetry.Source) *Orchestrator {
	return &Orchestrator{
		config:    config,
		evaluator: evaluator,
		explorer:  explorer,
		developer: developer,
		exec:      exec,
		monitor:   mon,
		store:     st,
		sources:   sources,
		caps:      caps,
	}
}

// #endregion

// #region trigger-cycle

// TriggerCycle runs one complete cycle for a system and returns its record.
// The call is synchronous; it blocks through execution and the observation
// window. Exactly one record is persisted whatever terminal state the cycle
// reaches. ErrCycleActive is returned, with no record, when the system
// already has a cycle in flight.
func (o *Orchestrator) TriggerCycle(ctx context.Context, systemID, trigger string) (CycleRecord, error) {
	token, err := o.store.AcquireLease(systemID)
	if err != nil {
		return CycleRecord{}, err
	}
	defer o.store.ReleaseLease(systemID, token)

	rec := CycleRecord{
		CycleID:   uuid.New().String(),
		SystemID:  systemID,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	log.Printf("[ORCH] cycle=%s system=%s trigger=%s started", rec.CycleID, systemID, trigger)

	// DEFINE: load or seed the charter.
	ch, err := o.store.EnsureCharter(systemID, charter.Default(systemID, o.config.DefaultThresholds))
	if err != nil {
		return o.finish(rec, StateEndNoop, VerdictNoAction, FailureMeasurement,
			fmt.Sprintf("charter unavailable: %v", err))
	}
	rec.Charter = ch

	// MEASURE, with one retry.
	pre, err := o.measure(ctx, systemID, ch)
	if err != nil {
		o.logDecision(rec, string(StateMeasure), "abort", err.Error(), nil)
		return o.finish(rec, StateEndNoop, VerdictNoAction, FailureMeasurement,
			fmt.Sprintf("measurement failed: %v", err))
	}
	rec.Pre = &pre
	o.logDecision(rec, string(StateMeasure), pre.Severity.String(), "", pre)

	if pre.Severity == entropy.SeverityLow {
		return o.finish(rec, StateEndNoop, VerdictNoAction, FailureNone,
			fmt.Sprintf("weighted score %.3f below action bands", pre.WeightedScore))
	}
	if !ch.Fired(pre.Scores) {
		return o.finish(rec, StateEndNoop, VerdictNoAction, FailureNone,
			"no charter trigger fired for the measured scores")
	}

	// EXPLORE.
	candidates := o.explorer.Explore(pre, ch)
	rec.Candidates = candidates
	o.logDecision(rec, string(StateExplore), fmt.Sprintf("%d candidates", len(candidates)), "", nil)
	if len(candidates) == 0 {
		return o.finish(rec, StateHumanEscalation, VerdictEscalated, FailurePlanning,
			"no strategy covers the drifting dimensions")
	}

	devCtx := ctx
	if o.config.DevelopTimeout > 0 {
		var cancel context.CancelFunc
		devCtx, cancel = context.WithTimeout(ctx, o.config.DevelopTimeout)
		defer cancel()
	}
	caps, err := o.caps.Capabilities(devCtx, systemID)
	if err != nil {
		return o.finish(rec, StateHumanEscalation, VerdictEscalated, FailurePlanning,
			fmt.Sprintf("capability discovery failed: %v", err))
	}

	// DEVELOP: walk the ranked candidates, bounded by the retry budget.
	p, strat, ok := o.develop(&rec, pre, candidates, caps)
	if !ok {
		return o.finish(rec, StateHumanEscalation, VerdictEscalated, FailurePlanning,
			"no candidate produced an acceptable plan")
	}
	rec.Strategy = &strat
	rec.Plan = &p

	// IMPLEMENT.
	execRes := o.exec.Execute(ctx, p)
	rec.Execution = &execRes
	o.logDecision(rec, string(StateImplement), fmt.Sprintf("success=%t", execRes.Success), execRes.Err, execRes)
	if execRes.EscalationRequired {
		o.recordOutcome(rec, strat, pre, false)
		return o.finish(rec, StateHumanEscalation, VerdictEscalated, FailureExecution,
			"step failed without a usable rollback: "+execRes.Err)
	}
	if !execRes.Success {
		// The failed step was already rolled back in place.
		o.recordOutcome(rec, strat, pre, false)
		return o.finish(rec, StateRecordFailure, VerdictRolledBack, FailureExecution, execRes.Err)
	}

	// MONITOR: observe, re-measure, assess.
	decision, post, err := o.observe(ctx, systemID, ch, p, pre)
	if err != nil {
		if p.RollbackAvailable() {
			rec.RollbackOutcomes = o.exec.RollbackPlan(ctx, systemID, p.Steps)
			o.recordOutcome(rec, strat, pre, false)
			return o.finish(rec, StateRecordFailure, VerdictRolledBack, FailureMeasurement,
				fmt.Sprintf("post-execution measurement failed, plan rolled back: %v", err))
		}
		o.recordOutcome(rec, strat, pre, false)
		return o.finish(rec, StateHumanEscalation, VerdictEscalated, FailureMeasurement,
			fmt.Sprintf("post-execution measurement failed, no rollback path: %v", err))
	}
	rec.Post = &post
	rec.MonitorDecision = &decision
	o.logDecision(rec, string(StateMonitor), string(decision.Verdict), decision.Reason, decision)

	switch decision.Verdict {
	case monitor.VerdictAccept:
		o.recordOutcome(rec, strat, pre, true)
		o.adaptThresholds(ch, post, strat.Targets, token)
		return o.finish(rec, StateRecordSuccess, VerdictAccepted, FailureNone, decision.Reason)
	case monitor.VerdictRollback:
		rec.RollbackOutcomes = o.exec.RollbackPlan(ctx, systemID, p.Steps)
		o.recordOutcome(rec, strat, pre, false)
		return o.finish(rec, StateRecordFailure, VerdictRolledBack, FailureControl, decision.Reason)
	default:
		o.recordOutcome(rec, strat, pre, false)
		return o.finish(rec, StateHumanEscalation, VerdictEscalated, FailureControl, decision.Reason)
	}
}

// #endregion

// #region measure

func (o *Orchestrator) measure(ctx context.Context, systemID string, ch charter.Charter) (entropy.Measurement, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		batch, err := telemetry.Collect(ctx, systemID, o.config.MeasureTimeout, o.sources...)
		if err != nil {
			lastErr = err
			log.Printf("[ORCH] system=%s measurement attempt %d failed: %v", systemID, attempt+1, err)
			continue
		}
		return o.evaluator.Evaluate(batch, ch.Thresholds), nil
	}
	return entropy.Measurement{}, lastErr
}

// #endregion

// #region develop

// develop walks the ranked candidates until one yields a plan at or above
// the acceptance floor. The budget covers rejections: the first attempt is
// free and each rejection consumes one retry.
func (o *Orchestrator) develop(rec *CycleRecord, pre entropy.Measurement,
	candidates []strategy.Strategy, caps plan.CapabilitySet) (plan.Plan, strategy.Strategy, bool) {

	attempts := o.config.MaxDevelopRetries + 1
	for i, cand := range candidates {
		if i >= attempts {
			break
		}

		p, err := o.developer.Develop(pre, cand, caps)
		if err != nil {
			var capErr *plan.CapabilityError
			reason := err.Error()
			if errors.As(err, &capErr) {
				reason = fmt.Sprintf("missing capability %q", capErr.Action)
			}
			rec.Rejections = append(rec.Rejections, RejectedStrategy{
				StrategyID: cand.ID, TemplateID: cand.TemplateID, Reason: reason,
			})
			o.logDecision(*rec, string(StateDevelop), "reject "+cand.TemplateID, reason, nil)
			continue
		}

		if p.Simulation.SuccessProbability < o.config.AcceptanceFloor {
			reason := fmt.Sprintf("simulated probability %.2f below floor %.2f",
				p.Simulation.SuccessProbability, o.config.AcceptanceFloor)
			rec.Rejections = append(rec.Rejections, RejectedStrategy{
				StrategyID: cand.ID, TemplateID: cand.TemplateID, Reason: reason,
			})
			o.logDecision(*rec, string(StateDevelop), "reject "+cand.TemplateID, reason, p.Simulation)
			continue
		}

		o.logDecision(*rec, string(StateDevelop), "accept "+cand.TemplateID, "", p.Simulation)
		return p, cand, true
	}
	return plan.Plan{}, strategy.Strategy{}, false
}

// #endregion

// #region observe

// observe waits out the observation window, takes the post measurement,
// and runs the control check.
func (o *Orchestrator) observe(ctx context.Context, systemID string, ch charter.Charter,
	p plan.Plan, pre entropy.Measurement) (monitor.Decision, entropy.Measurement, error) {

	if window := o.monitor.Window(); window > 0 {
		select {
		case <-time.After(window):
		case <-ctx.Done():
			return monitor.Decision{}, entropy.Measurement{}, ctx.Err()
		}
	}

	post, err := o.measure(ctx, systemID, ch)
	if err != nil {
		return monitor.Decision{}, entropy.Measurement{}, err
	}

	return o.monitor.Assess(pre, post, ch, p, p.RollbackAvailable()), post, nil
}

// #endregion

// #region adaptation

// adaptThresholds nudges each targeted dimension's threshold toward the
// observed post-remediation score after an accepted cycle:
// 0.9*old + 0.1*observed, clamped to [0.05, 0.95]. The revision is
// committed under the cycle's own lease token.
func (o *Orchestrator) adaptThresholds(ch charter.Charter, post entropy.Measurement, targets []string, token string) {
	if !o.config.AdaptThresholds {
		return
	}

	deltas := charter.RevisionDeltas{Thresholds: make(map[string]float64)}
	for _, dim := range targets {
		old, ok := ch.Thresholds[dim]
		if !ok {
			continue
		}
		observed, ok := post.Scores[dim]
		if !ok {
			continue
		}
		next := 0.9*old + 0.1*observed
		if next < 0.05 {
			next = 0.05
		}
		if next > 0.95 {
			next = 0.95
		}
		deltas.Thresholds[dim] = next
	}
	if len(deltas.Thresholds) == 0 {
		return
	}

	rev := ch.WithDeltas(deltas)
	if err := o.store.CommitCharter(rev, token); err != nil {
		log.Printf("[ORCH] system=%s threshold adaptation not committed: %v", ch.SystemID, err)
		return
	}
	log.Printf("[ORCH] system=%s charter adapted to version %d", ch.SystemID, rev.Version)
}

// #endregion

// #region finish

// finish stamps the terminal state, persists the record, and returns it.
func (o *Orchestrator) finish(rec CycleRecord, state State, verdict Verdict,
	class FailureClass, reason string) (CycleRecord, error) {

	rec.State = state
	rec.Verdict = verdict
	rec.FailureClass = class
	rec.Reason = reason
	rec.EndedAt = time.Now().UTC()

	payload, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("marshal cycle record: %w", err)
	}
	if err := o.store.AppendCycleRecord(store.CycleRow{
		CycleID:      rec.CycleID,
		SystemID:     rec.SystemID,
		Verdict:      string(rec.Verdict),
		FailureClass: string(rec.FailureClass),
		RecordJSON:   string(payload),
		StartedAt:    rec.StartedAt,
		EndedAt:      rec.EndedAt,
	}); err != nil {
		return rec, fmt.Errorf("persist cycle record: %w", err)
	}

	log.Printf("[ORCH] cycle=%s system=%s %s verdict=%s class=%s",
		rec.CycleID, rec.SystemID, rec.State, rec.Verdict, rec.FailureClass)
	return rec, nil
}

// recordOutcome appends the strategy outcome row that feeds future
// probability estimates. Failures here must not fail the cycle.
func (o *Orchestrator) recordOutcome(rec CycleRecord, strat strategy.Strategy,
	pre entropy.Measurement, accepted bool) {
	if err := o.store.RecordStrategyOutcome(store.OutcomeRow{
		SystemID:    rec.SystemID,
		CycleID:     rec.CycleID,
		TemplateID:  strat.TemplateID,
		Severity:    pre.Severity.String(),
		Probability: strat.SuccessProbability,
		Accepted:    accepted,
	}); err != nil {
		log.Printf("[ORCH] cycle=%s outcome not recorded: %v", rec.CycleID, err)
	}
}

// logDecision appends a stage decision to the audit log, best effort.
func (o *Orchestrator) logDecision(rec CycleRecord, stage, decision, reason string, detail interface{}) {
	var detailJSON string
	if detail != nil {
		if data, err := json.Marshal(detail); err == nil {
			detailJSON = string(data)
		}
	}
	if err := audit.LogDecision(o.store.DB(), audit.Entry{
		CycleID:    rec.CycleID,
		SystemID:   rec.SystemID,
		Stage:      stage,
		Decision:   decision,
		Reason:     reason,
		DetailJSON: detailJSON,
	}); err != nil {
		log.Printf("[ORCH] cycle=%s audit entry dropped: %v", rec.CycleID, err)
	}
}

// #endregion

// #region queries

// Status reports the controller's current view of a system.
func (o *Orchestrator) Status(systemID string) (Status, error) {
	ch, err := o.store.ActiveCharter(systemID)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		SystemID:    systemID,
		Charter:     ch,
		CycleActive: o.store.LeaseHeld(systemID),
	}

	row, err := o.store.LatestCycleRecord(systemID)
	if errors.Is(err, store.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return Status{}, err
	}

	var rec CycleRecord
	if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
		return Status{}, fmt.Errorf("unmarshal cycle record: %w", err)
	}
	st.LastRecord = &rec
	return st, nil
}

// ActiveCharter returns the active charter, seeding the default when the
// system is unknown.
func (o *Orchestrator) ActiveCharter(systemID string) (charter.Charter, error) {
	return o.store.EnsureCharter(systemID, charter.Default(systemID, o.config.DefaultThresholds))
}

// ProposeCharter applies operator deltas to the active charter and commits
// the revision. Proposals are rejected while a cycle is running.
func (o *Orchestrator) ProposeCharter(systemID string, deltas charter.RevisionDeltas) (charter.Charter, error) {
	ch, err := o.ActiveCharter(systemID)
	if err != nil {
		return charter.Charter{}, err
	}
	rev := ch.WithDeltas(deltas)
	if err := o.store.CommitCharter(rev, ""); err != nil {
		return charter.Charter{}, err
	}
	return rev, nil
}

// #endregion
