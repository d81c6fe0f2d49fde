// Package replay runs recorded telemetry fixtures through the full cycle
// pipeline offline, against an in-memory store and a scripted system.
package replay

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
)

// #endregion

// #region types

// FixtureCycle scripts one cycle: the telemetry before and after execution,
// which step actions fail, and the verdict the cycle is expected to reach.
type FixtureCycle struct {
	Trigger string `json:"trigger"`
	// Pre is the degraded telemetry the cycle measures first.
	Pre map[string]entropy.DimensionSample `json:"pre"`
	// Post is the telemetry observed after execution. Cycles that never
	// execute (noop, escalation) leave it empty.
	Post map[string]entropy.DimensionSample `json:"post,omitempty"`
	// FailActions lists step actions the scripted system fails.
	FailActions []string `json:"fail_actions,omitempty"`

	ExpectedVerdict cycle.Verdict `json:"expected_verdict"`
}

// Fixture is one recorded scenario for a single system.
type Fixture struct {
	Name       string             `json:"name"`
	SystemID   string             `json:"system_id"`
	Thresholds map[string]float64 `json:"thresholds"`

	Capabilities plan.CapabilitySet `json:"capabilities"`

	Cycles []FixtureCycle `json:"cycles"`
}

// #endregion

// #region load

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("replay: read %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture JSON.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("replay: parse fixture: %w", err)
	}
	if f.SystemID == "" {
		return Fixture{}, fmt.Errorf("replay: fixture missing system_id")
	}
	if len(f.Thresholds) == 0 {
		return Fixture{}, fmt.Errorf("replay: fixture missing thresholds")
	}
	if len(f.Cycles) == 0 {
		return Fixture{}, fmt.Errorf("replay: fixture has no cycles")
	}
	for i, c := range f.Cycles {
		if len(c.Pre) == 0 {
			return Fixture{}, fmt.Errorf("replay: cycle %d missing pre telemetry", i)
		}
	}
	return f, nil
}

// #endregion
