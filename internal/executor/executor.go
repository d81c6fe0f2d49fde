package executor

// #region imports
import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/plan"
)

// #endregion

// #region runner

// StepResult is the monitored system's report for one executed or rolled
// back step. Healthy is the step-local health check outcome.
type StepResult struct {
	StepID     string `json:"step_id"`
	OK         bool   `json:"ok"`
	Healthy    bool   `json:"healthy"`
	Detail     string `json:"detail"`
	DurationMs int64  `json:"duration_ms"`
}

// Runner executes and rolls back individual steps against the live system.
type Runner interface {
	ExecuteStep(ctx context.Context, systemID string, step plan.BoundStep) (StepResult, error)
	RollbackStep(ctx context.Context, systemID string, step plan.BoundStep) (StepResult, error)
}

// #endregion

// #region result-types

// StepStatus is the terminal state of one plan step.
type StepStatus string

const (
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepRolledBack StepStatus = "rolled_back"
	StepSkipped    StepStatus = "skipped"
)

// StepOutcome records what happened to one step.
type StepOutcome struct {
	StepID   string        `json:"step_id"`
	Action   string        `json:"action"`
	Status   StepStatus    `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ExecutionResult is the write-once outcome of running a plan.
type ExecutionResult struct {
	PlanID   string        `json:"plan_id"`
	Success  bool          `json:"success"`
	Steps    []StepOutcome `json:"steps"`
	Duration time.Duration `json:"duration"`
	// EscalationRequired is set when a failed step had no rollback and the
	// system must be handed to a human instead of continuing automatically.
	EscalationRequired bool   `json:"escalation_required"`
	Err                string `json:"err,omitempty"`
}

// #endregion

// #region executor

// rollbackGrace bounds rollback calls issued after the plan deadline or an
// external cancellation, so the unwind itself cannot hang forever.
const rollbackGrace = 30 * time.Second

// Executor runs approved plans against the live system, step by step.
type Executor struct {
	runner  Runner
	timeout time.Duration
}

// New creates an executor. timeout bounds one full plan execution.
func New(runner Runner, timeout time.Duration) *Executor {
	return &Executor{runner: runner, timeout: timeout}
}

// #endregion

// #region execute

// Execute runs the plan's steps strictly in order, verifying the step-local
// health check after each one. The first failing step stops the run and is
// rolled back via its paired rollback when present; partial progress past a
// verified step is never unwound here (that is the monitor's plan-level
// rollback). Exceeding the timeout or an external cancellation follows the
// same failure path.
func (e *Executor) Execute(ctx context.Context, p plan.Plan) ExecutionResult {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result := ExecutionResult{PlanID: p.ID}

	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			e.failStep(&result, p, i, fmt.Sprintf("execution cancelled: %v", err))
			result.Duration = time.Since(start)
			return result
		}

		stepStart := time.Now()
		res, err := e.runner.ExecuteStep(ctx, p.SystemID, step)
		switch {
		case err != nil:
			e.failStep(&result, p, i, fmt.Sprintf("step error: %v", err))
			result.Duration = time.Since(start)
			return result
		case !res.OK:
			e.failStep(&result, p, i, "step reported failure: "+res.Detail)
			result.Duration = time.Since(start)
			return result
		case !res.Healthy:
			e.failStep(&result, p, i, "step health check failed: "+res.Detail)
			result.Duration = time.Since(start)
			return result
		}

		result.Steps = append(result.Steps, StepOutcome{
			StepID:   step.ID,
			Action:   step.Action,
			Status:   StepCompleted,
			Duration: time.Since(stepStart),
		})
		log.Printf("[EXEC] plan=%s step %d/%d %s on %s completed",
			p.ID, i+1, len(p.Steps), step.Action, step.Component)
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// #endregion

// #region fail-step

// failStep records the failing step, rolls back its effect when a paired
// rollback exists, marks the rest skipped, and flags escalation otherwise.
func (e *Executor) failStep(result *ExecutionResult, p plan.Plan, idx int, detail string) {
	step := p.Steps[idx]
	result.Err = detail
	log.Printf("[EXEC] plan=%s step %s failed: %s", p.ID, step.Action, detail)

	outcome := StepOutcome{StepID: step.ID, Action: step.Action, Status: StepFailed, Detail: detail}

	if step.Rollback != "" {
		rbCtx, cancel := context.WithTimeout(context.Background(), rollbackGrace)
		res, err := e.runner.RollbackStep(rbCtx, p.SystemID, step)
		cancel()
		if err == nil && res.OK {
			outcome.Status = StepRolledBack
			log.Printf("[EXEC] plan=%s step %s rolled back", p.ID, step.Action)
		} else {
			result.EscalationRequired = true
			outcome.Detail = detail + "; rollback failed"
			log.Printf("[EXEC] plan=%s rollback of %s failed, escalation required", p.ID, step.Action)
		}
	} else {
		result.EscalationRequired = true
		log.Printf("[EXEC] plan=%s step %s has no rollback, escalation required", p.ID, step.Action)
	}

	result.Steps = append(result.Steps, outcome)
	for _, rest := range p.Steps[idx+1:] {
		result.Steps = append(result.Steps, StepOutcome{StepID: rest.ID, Action: rest.Action, Status: StepSkipped})
	}
}

// #endregion

// #region rollback-plan

// RollbackPlan unwinds completed steps in reverse order. It is invoked by
// the orchestrator when the control monitor returns a rollback verdict.
// Steps without a rollback binding are skipped and reported as such.
func (e *Executor) RollbackPlan(ctx context.Context, systemID string, steps []plan.BoundStep) []StepOutcome {
	outcomes := make([]StepOutcome, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.Rollback == "" {
			outcomes = append(outcomes, StepOutcome{StepID: step.ID, Action: step.Action, Status: StepSkipped,
				Detail: "no rollback operation"})
			continue
		}

		rbCtx, cancel := context.WithTimeout(ctx, rollbackGrace)
		res, err := e.runner.RollbackStep(rbCtx, systemID, step)
		cancel()
		if err != nil || !res.OK {
			detail := "rollback failed"
			if err != nil {
				detail = fmt.Sprintf("rollback failed: %v", err)
			}
			outcomes = append(outcomes, StepOutcome{StepID: step.ID, Action: step.Action, Status: StepFailed, Detail: detail})
			continue
		}
		outcomes = append(outcomes, StepOutcome{StepID: step.ID, Action: step.Action, Status: StepRolledBack})
	}
	return outcomes
}

// #endregion
