package strategy

// #region imports
import (
	"log"
	"sort"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/google/uuid"
)

// #endregion

// #region constants

const (
	maxCandidates = 5

	// Blend of template prior and historical success rate.
	emaPriorWeight   = 0.7
	emaHistoryWeight = 0.3
)

// #endregion

// #region explorer

// Explorer generates ranked candidate strategies for one measurement.
type Explorer struct {
	templates []Template
	history   History // nil = priors only
}

// NewExplorer creates an explorer over the built-in template set.
func NewExplorer(history History) *Explorer {
	return &Explorer{templates: Templates, history: history}
}

// NewExplorerWithTemplates creates an explorer over a custom template set.
func NewExplorerWithTemplates(templates []Template, history History) *Explorer {
	return &Explorer{templates: templates, history: history}
}

// #endregion

// #region explore

// Explore returns 1-5 ranked candidate strategies for the measurement, or an
// empty list when no template's targets cover the drift indicators. An empty
// list is a valid "no viable option" result, not an error.
//
// Ranking: success probability descending, ties broken by lower risk tier,
// then shorter estimated duration. At critical severity the result always
// includes at least one guaranteed-rollback strategy.
func (e *Explorer) Explore(m entropy.Measurement, ch charter.Charter) []Strategy {
	targetDims := driftDimensions(m)
	allDims := sortedScoreDims(m)

	var candidates []Strategy
	for _, tpl := range e.templates {
		if !tpl.AppliesTo(m.Severity) {
			continue
		}

		var targets []string
		switch {
		case tpl.FullReset:
			targets = allDims
		case tpl.MultiDimension:
			targets = targetDims
		default:
			// Single-dimension templates only cover a single drift indicator.
			if len(targetDims) != 1 {
				continue
			}
			targets = targetDims
		}
		if !covers(targets, targetDims) {
			continue
		}

		steps, duration := tpl.instantiate(targets)
		prob := e.estimateProbability(m.SystemID, tpl)

		candidates = append(candidates, Strategy{
			ID:                 uuid.New().String(),
			TemplateID:         tpl.ID,
			Targets:            targets,
			Steps:              steps,
			Prior:              tpl.Prior,
			SuccessProbability: prob,
			Risk:               tpl.Risk,
			EstimatedDuration:  duration,
			Effectiveness:      tpl.Effectiveness,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SuccessProbability != b.SuccessProbability {
			return a.SuccessProbability > b.SuccessProbability
		}
		if a.Risk != b.Risk {
			return a.Risk < b.Risk
		}
		if a.EstimatedDuration != b.EstimatedDuration {
			return a.EstimatedDuration < b.EstimatedDuration
		}
		return a.TemplateID < b.TemplateID
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	// A guaranteed-safe option is mandatory at the worst severity,
	// regardless of where it ranks on estimated cost.
	if m.Severity == entropy.SeverityCritical {
		candidates = e.ensureGuaranteedRollback(candidates, allDims, m.SystemID)
	}

	log.Printf("[EXPLORE] system=%s severity=%s drift=%v → %d candidates",
		m.SystemID, m.Severity, targetDims, len(candidates))
	return candidates
}

// #endregion

// #region probability

// estimateProbability blends the template prior with the decay-weighted
// historical success rate: 0.7*prior + 0.3*rate, or the prior alone when no
// history exists.
func (e *Explorer) estimateProbability(systemID string, tpl Template) float64 {
	if e.history == nil {
		return tpl.Prior
	}
	rate, n, err := e.history.TemplateSuccessRate(systemID, tpl.ID)
	if err != nil {
		log.Printf("[EXPLORE] history lookup failed for %s: %v", tpl.ID, err)
		return tpl.Prior
	}
	if n == 0 {
		return tpl.Prior
	}
	return emaPriorWeight*tpl.Prior + emaHistoryWeight*rate
}

// #endregion

// #region guaranteed-rollback

func (e *Explorer) ensureGuaranteedRollback(candidates []Strategy, allDims []string, systemID string) []Strategy {
	for _, c := range candidates {
		if c.GuaranteedRollback() {
			return candidates
		}
	}
	for _, tpl := range e.templates {
		if !tpl.FullReset || !tpl.AppliesTo(entropy.SeverityCritical) {
			continue
		}
		steps, duration := tpl.instantiate(allDims)
		safe := Strategy{
			ID:                 uuid.New().String(),
			TemplateID:         tpl.ID,
			Targets:            allDims,
			Steps:              steps,
			Prior:              tpl.Prior,
			SuccessProbability: e.estimateProbability(systemID, tpl),
			Risk:               tpl.Risk,
			EstimatedDuration:  duration,
			Effectiveness:      tpl.Effectiveness,
		}
		if !safe.GuaranteedRollback() {
			continue
		}
		if len(candidates) >= maxCandidates {
			candidates[len(candidates)-1] = safe
		} else {
			candidates = append(candidates, safe)
		}
		return candidates
	}
	return candidates
}

// #endregion

// #region instantiate

// instantiate expands the template's abstract steps for the given targets.
// Templates with explicit "*" dimensions stay system-wide; templates with
// empty dimensions expand once per target.
func (t Template) instantiate(targets []string) ([]StepDescriptor, time.Duration) {
	if len(t.Steps) > 0 && t.Steps[0].Dimension == "*" {
		steps := append([]StepDescriptor(nil), t.Steps...)
		return steps, time.Duration(len(steps)) * t.StepDuration
	}

	var steps []StepDescriptor
	for _, target := range targets {
		for _, desc := range t.Steps {
			step := desc
			step.Dimension = target
			steps = append(steps, step)
		}
	}
	return steps, time.Duration(len(steps)) * t.StepDuration
}

// #endregion

// #region helpers

// driftDimensions returns the sorted drift dimensions, falling back to the
// single worst-scoring dimension when nothing crossed its threshold.
func driftDimensions(m entropy.Measurement) []string {
	if len(m.Drift) > 0 {
		dims := make([]string, 0, len(m.Drift))
		for _, d := range m.Drift {
			dims = append(dims, d.Dimension)
		}
		sort.Strings(dims)
		return dims
	}

	var worst string
	var worstScore float64 = -1
	for _, dim := range sortedScoreDims(m) {
		if m.Scores[dim] > worstScore {
			worst = dim
			worstScore = m.Scores[dim]
		}
	}
	if worst == "" {
		return nil
	}
	return []string{worst}
}

func sortedScoreDims(m entropy.Measurement) []string {
	dims := make([]string, 0, len(m.Scores))
	for d := range m.Scores {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

// covers reports whether targets is a superset of required.
func covers(targets, required []string) bool {
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	for _, r := range required {
		if !set[r] {
			return false
		}
	}
	return true
}

// #endregion
