package entropy

// #region imports
import "time"

// #endregion

// #region severity

// Severity is the ordered overall degradation level of a measurement.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the canonical lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler so severities serialize by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		*s = SeverityLow
	}
	return nil
}

// #endregion

// #region bands

// Bands holds the weighted-score cutoffs for each severity level.
// A weighted score below Medium is SeverityLow.
type Bands struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// DefaultBands returns the published severity cutoffs.
func DefaultBands() Bands {
	return Bands{Medium: 0.3, High: 0.5, Critical: 0.7}
}

// SeverityFromScore maps a weighted score to its severity band.
func SeverityFromScore(weighted float64, bands Bands) Severity {
	switch {
	case weighted >= bands.Critical:
		return SeverityCritical
	case weighted >= bands.High:
		return SeverityHigh
	case weighted >= bands.Medium:
		return SeverityMedium
	}
	return SeverityLow
}

// #endregion

// #region batch

// DimensionSample is the raw telemetry for one dimension in one batch.
type DimensionSample struct {
	Errors        int     `json:"errors"`
	Total         int     `json:"total"`
	QualityRatio  float64 `json:"quality_ratio"` // 0..1, 1 = ideal
	LoopCount     int     `json:"loop_count"`
	TimingDeltaMs float64 `json:"timing_delta_ms"`
}

// Batch is one raw telemetry pull from the monitored system.
type Batch struct {
	SystemID string                     `json:"system_id"`
	Samples  map[string]DimensionSample `json:"samples"`
	TakenAt  time.Time                  `json:"taken_at"`
}

// #endregion

// #region measurement

// DriftIndicator marks a single dimension that crossed its charter threshold.
type DriftIndicator struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

// Measurement is one immutable entropy snapshot. Higher scores are worse.
type Measurement struct {
	SystemID      string             `json:"system_id"`
	Scores        map[string]float64 `json:"scores"`
	WeightedScore float64            `json:"weighted_score"`
	Severity      Severity           `json:"severity"`
	Drift         []DriftIndicator   `json:"drift"`
	TakenAt       time.Time          `json:"taken_at"`
}

// #endregion
