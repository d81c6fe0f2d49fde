package cycle

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/executor"
	"github.com/danielpatrickdp/regen-loop/internal/monitor"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
)

// #endregion

// #region states

// State names the stage a cycle is in. The four terminal states are the
// only ones that appear on persisted records.
type State string

const (
	StateDefine    State = "DEFINE"
	StateMeasure   State = "MEASURE"
	StateExplore   State = "EXPLORE"
	StateDevelop   State = "DEVELOP"
	StateImplement State = "IMPLEMENT"
	StateMonitor   State = "MONITOR"

	StateEndNoop         State = "END_NOOP"
	StateRecordSuccess   State = "RECORD_SUCCESS"
	StateRecordFailure   State = "RECORD_FAILURE"
	StateHumanEscalation State = "HUMAN_ESCALATION"
)

// #endregion

// #region verdict

// Verdict is the cycle's overall outcome.
type Verdict string

const (
	VerdictAccepted   Verdict = "accepted"
	VerdictRolledBack Verdict = "rolled_back"
	VerdictEscalated  Verdict = "escalated"
	VerdictNoAction   Verdict = "no_action"
)

// FailureClass names which stage is responsible for a non-success verdict.
type FailureClass string

const (
	FailureNone        FailureClass = "none"
	FailureMeasurement FailureClass = "measurement"
	FailurePlanning    FailureClass = "planning"
	FailureExecution   FailureClass = "execution"
	FailureControl     FailureClass = "control"
)

// #endregion

// #region record

// RejectedStrategy records one candidate the develop stage turned down.
type RejectedStrategy struct {
	StrategyID string `json:"strategy_id"`
	TemplateID string `json:"template_id"`
	Reason     string `json:"reason"`
}

// CycleRecord is the full immutable audit trail of one cycle. Exactly one
// is persisted per cycle, whatever terminal state it reaches.
type CycleRecord struct {
	CycleID  string `json:"cycle_id"`
	SystemID string `json:"system_id"`
	Trigger  string `json:"trigger"`

	Charter charter.Charter `json:"charter"`

	Pre  *entropy.Measurement `json:"pre,omitempty"`
	Post *entropy.Measurement `json:"post,omitempty"`

	Candidates []strategy.Strategy `json:"candidates,omitempty"`
	Rejections []RejectedStrategy  `json:"rejections,omitempty"`
	Strategy   *strategy.Strategy  `json:"strategy,omitempty"`
	Plan       *plan.Plan          `json:"plan,omitempty"`

	Execution        *executor.ExecutionResult `json:"execution,omitempty"`
	RollbackOutcomes []executor.StepOutcome    `json:"rollback_outcomes,omitempty"`
	MonitorDecision  *monitor.Decision         `json:"monitor_decision,omitempty"`

	State        State        `json:"state"`
	Verdict      Verdict      `json:"verdict"`
	FailureClass FailureClass `json:"failure_class"`
	Reason       string       `json:"reason,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// #endregion

// #region status

// Status is the controller's current view of one system.
type Status struct {
	SystemID    string          `json:"system_id"`
	Charter     charter.Charter `json:"charter"`
	CycleActive bool            `json:"cycle_active"`
	LastRecord  *CycleRecord    `json:"last_record,omitempty"`
}

// #endregion
