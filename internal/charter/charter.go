package charter

// #region imports
import (
	"fmt"
	"sort"
	"time"
)

// #endregion

// #region trigger

// Trigger is a predicate over one dimension score that can start a cycle.
type Trigger struct {
	Dimension string  `json:"dimension"`
	Op        string  `json:"op"` // ">=" or ">"
	Value     float64 `json:"value"`
}

// Fires reports whether the trigger predicate holds for the given score.
func (t Trigger) Fires(score float64) bool {
	switch t.Op {
	case ">":
		return score > t.Value
	default:
		return score >= t.Value
	}
}

// #endregion

// #region fired

// Fired reports whether any trigger predicate holds for the measured
// scores. Charters without triggers always fire, leaving the severity
// bands as the only gate.
func (c Charter) Fired(scores map[string]float64) bool {
	if len(c.Triggers) == 0 {
		return true
	}
	for _, t := range c.Triggers {
		if t.Fires(scores[t.Dimension]) {
			return true
		}
	}
	return false
}

// #endregion

// #region charter

// Charter is the static policy for one monitored system: per-dimension
// thresholds, trigger predicates, and success criteria. It is immutable
// until revised; revisions produce a new value with a bumped version.
type Charter struct {
	SystemID        string             `json:"system_id"`
	Version         int                `json:"version"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Triggers        []Trigger          `json:"triggers"`
	SuccessCriteria map[string]float64 `json:"success_criteria"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Default builds a version-1 charter from per-dimension thresholds.
// Success criteria start equal to the thresholds: a remediation succeeds
// for a dimension when it brings the score back under the threshold.
func Default(systemID string, thresholds map[string]float64) Charter {
	th := make(map[string]float64, len(thresholds))
	crit := make(map[string]float64, len(thresholds))
	triggers := make([]Trigger, 0, len(thresholds))

	for _, dim := range sortedKeys(thresholds) {
		th[dim] = thresholds[dim]
		crit[dim] = thresholds[dim]
		triggers = append(triggers, Trigger{Dimension: dim, Op: ">=", Value: thresholds[dim]})
	}

	return Charter{
		SystemID:        systemID,
		Version:         1,
		Thresholds:      th,
		Triggers:        triggers,
		SuccessCriteria: crit,
		CreatedAt:       time.Now().UTC(),
	}
}

// #endregion

// #region validate

// Validate rejects structurally invalid charters: thresholds outside [0, 1],
// empty success criteria, or criteria outside [0, 1].
func (c Charter) Validate() error {
	if c.SystemID == "" {
		return fmt.Errorf("charter: system id required")
	}
	if len(c.Thresholds) == 0 {
		return fmt.Errorf("charter: at least one threshold required")
	}
	for dim, v := range c.Thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("charter: threshold %s=%.4f outside [0,1]", dim, v)
		}
	}
	if len(c.SuccessCriteria) == 0 {
		return fmt.Errorf("charter: success criteria must not be empty")
	}
	for name, v := range c.SuccessCriteria {
		if v < 0 || v > 1 {
			return fmt.Errorf("charter: success criterion %s=%.4f outside [0,1]", name, v)
		}
	}
	return nil
}

// #endregion

// #region revision

// RevisionDeltas are the per-key replacements of a proposed revision.
// Keys absent from a map keep their current value.
type RevisionDeltas struct {
	Thresholds      map[string]float64 `json:"thresholds,omitempty"`
	SuccessCriteria map[string]float64 `json:"success_criteria,omitempty"`
}

// WithDeltas returns a revised copy with the deltas applied and the version
// bumped. The receiver is never mutated.
func (c Charter) WithDeltas(d RevisionDeltas) Charter {
	next := c.Clone()
	next.Version = c.Version + 1
	next.CreatedAt = time.Now().UTC()

	for dim, v := range d.Thresholds {
		next.Thresholds[dim] = v
	}
	for name, v := range d.SuccessCriteria {
		next.SuccessCriteria[name] = v
	}
	return next
}

// Clone deep-copies the charter.
func (c Charter) Clone() Charter {
	next := c
	next.Thresholds = make(map[string]float64, len(c.Thresholds))
	for k, v := range c.Thresholds {
		next.Thresholds[k] = v
	}
	next.SuccessCriteria = make(map[string]float64, len(c.SuccessCriteria))
	for k, v := range c.SuccessCriteria {
		next.SuccessCriteria[k] = v
	}
	next.Triggers = append([]Trigger(nil), c.Triggers...)
	return next
}

// CriterionFor returns the success target for a dimension, falling back to
// the dimension threshold when no explicit criterion exists.
func (c Charter) CriterionFor(dimension string) (float64, bool) {
	if v, ok := c.SuccessCriteria[dimension]; ok {
		return v, true
	}
	if v, ok := c.Thresholds[dimension]; ok {
		return v, true
	}
	return 0, false
}

// #endregion

// #region helpers

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion
