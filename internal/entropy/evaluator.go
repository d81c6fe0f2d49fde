package entropy

// #region imports
import (
	"sort"
	"sync"
	"time"
)

// #endregion

// #region config

// Weights are the published per-term weights of the dimension score.
// They must sum to 1.0 so scores stay in [0, 1] and stay reproducible.
type Weights struct {
	Error   float64 `json:"error"`
	Quality float64 `json:"quality"`
	Trend   float64 `json:"trend"`
}

// EvaluatorConfig fixes the scoring function for one controller instance.
type EvaluatorConfig struct {
	// DimensionWeights is the published aggregate weight per dimension (sums to 1.0).
	DimensionWeights map[string]float64
	ScoreWeights     Weights
	Bands            Bands
	// TrendWindow is the rolling-average sample count per system+dimension.
	TrendWindow int
}

// DefaultEvaluatorConfig returns the baseline scoring configuration.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		DimensionWeights: map[string]float64{
			"validation": 0.4,
			"semantic":   0.3,
			"latency":    0.2,
			"loops":      0.1,
		},
		ScoreWeights: Weights{Error: 0.5, Quality: 0.3, Trend: 0.2},
		Bands:        DefaultBands(),
		TrendWindow:  8,
	}
}

// #endregion

// #region evaluator

// Evaluator turns raw telemetry batches into entropy measurements.
// It keeps an in-memory rolling average per system+dimension for the trend
// term and has no other side effects; it never touches the charter.
type Evaluator struct {
	config EvaluatorConfig

	mu      sync.Mutex
	history map[string][]float64 // systemID + "/" + dimension → recent base scores
}

// NewEvaluator creates an evaluator with empty trend history.
func NewEvaluator(config EvaluatorConfig) *Evaluator {
	if config.TrendWindow <= 0 {
		config.TrendWindow = 8
	}
	return &Evaluator{
		config:  config,
		history: make(map[string][]float64),
	}
}

// Dimensions returns the configured dimension names in sorted order.
func (e *Evaluator) Dimensions() []string {
	dims := make([]string, 0, len(e.config.DimensionWeights))
	for d := range e.config.DimensionWeights {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

// #endregion

// #region evaluate

// Evaluate scores one batch against the given per-dimension charter thresholds.
// Score per dimension: we*errorRate + wq*(1-quality) + wt*max(0, base-rollingAvg),
// clamped to [0, 1]. Drift indicators fire per dimension independently of the
// aggregate severity.
func (e *Evaluator) Evaluate(batch Batch, thresholds map[string]float64) Measurement {
	scores := make(map[string]float64, len(e.config.DimensionWeights))
	var weighted float64
	var drift []DriftIndicator

	for _, dim := range e.Dimensions() {
		sample, ok := batch.Samples[dim]
		if !ok {
			// No data for this dimension: treat as ideal rather than degraded.
			sample = DimensionSample{QualityRatio: 1}
		}

		base := e.baseScore(sample)
		avg := e.observeBase(batch.SystemID, dim, base)

		trend := base - avg
		if trend < 0 {
			trend = 0
		}

		score := clamp01(base + e.config.ScoreWeights.Trend*trend)
		scores[dim] = score
		weighted += e.config.DimensionWeights[dim] * score

		if th, ok := thresholds[dim]; ok && score > th {
			drift = append(drift, DriftIndicator{Dimension: dim, Score: score, Threshold: th})
		}
	}

	takenAt := batch.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	return Measurement{
		SystemID:      batch.SystemID,
		Scores:        scores,
		WeightedScore: weighted,
		Severity:      SeverityFromScore(weighted, e.config.Bands),
		Drift:         drift,
		TakenAt:       takenAt,
	}
}

// #endregion

// #region base-score

// baseScore combines the error-rate and quality-degradation terms.
func (e *Evaluator) baseScore(sample DimensionSample) float64 {
	var errRate float64
	switch {
	case sample.Total > 0:
		errRate = float64(sample.Errors) / float64(sample.Total)
	case sample.Errors > 0:
		errRate = 1
	}
	if errRate > 1 {
		errRate = 1
	}

	degradation := 1 - clamp01(sample.QualityRatio)

	return clamp01(e.config.ScoreWeights.Error*errRate + e.config.ScoreWeights.Quality*degradation)
}

// observeBase records a base score into the rolling window and returns the
// average of the window as it stood before this sample. An empty window
// returns the sample itself so the first measurement carries no trend penalty.
func (e *Evaluator) observeBase(systemID, dim string, base float64) float64 {
	key := systemID + "/" + dim

	e.mu.Lock()
	defer e.mu.Unlock()

	window := e.history[key]
	avg := base
	if len(window) > 0 {
		var sum float64
		for _, v := range window {
			sum += v
		}
		avg = sum / float64(len(window))
	}

	window = append(window, base)
	if len(window) > e.config.TrendWindow {
		window = window[len(window)-e.config.TrendWindow:]
	}
	e.history[key] = window

	return avg
}

// #endregion

// #region helpers

// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion
