// Package config loads and validates the controller configuration.
package config

// #region imports
import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// #endregion

// #region duration

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// #endregion

// #region types

// Dimension configures one entropy dimension.
type Dimension struct {
	Weight    float64 `yaml:"weight"`
	Threshold float64 `yaml:"threshold"`
}

// ScoreWeights configures how error rate, quality degradation, and trend
// combine into a dimension score.
type ScoreWeights struct {
	Error   float64 `yaml:"error"`
	Quality float64 `yaml:"quality"`
	Trend   float64 `yaml:"trend"`
}

// Config is the full controller configuration.
type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	ProbeBaseURL string `yaml:"probe_base_url"`
	DBPath       string `yaml:"db_path"`

	SamplerInterval  Duration `yaml:"sampler_interval"`
	MeasureTimeout   Duration `yaml:"measure_timeout"`
	DevelopTimeout   Duration `yaml:"develop_timeout"`
	ImplementTimeout Duration `yaml:"implement_timeout"`

	ObservationWindow   Duration `yaml:"observation_window"`
	DivergenceTolerance float64  `yaml:"divergence_tolerance"`

	AcceptanceFloor   float64 `yaml:"acceptance_floor"`
	MaxDevelopRetries int     `yaml:"max_develop_retries"`
	AdaptThresholds   bool    `yaml:"adapt_thresholds"`

	Systems      []string             `yaml:"systems"`
	Dimensions   map[string]Dimension `yaml:"dimensions"`
	ScoreWeights ScoreWeights         `yaml:"score_weights"`
	TrendWindow  int                  `yaml:"trend_window"`
}

// #endregion

// #region default

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ListenAddr:   ":8085",
		ProbeBaseURL: "http://127.0.0.1:8086",
		DBPath:       "regen-loop.db",

		SamplerInterval:  Duration(60 * time.Second),
		MeasureTimeout:   Duration(10 * time.Second),
		DevelopTimeout:   Duration(15 * time.Second),
		ImplementTimeout: Duration(5 * time.Minute),

		ObservationWindow:   Duration(30 * time.Second),
		DivergenceTolerance: 0.1,

		AcceptanceFloor:   0.6,
		MaxDevelopRetries: 2,
		AdaptThresholds:   true,

		Systems: []string{"default"},
		Dimensions: map[string]Dimension{
			"validation": {Weight: 0.4, Threshold: 0.4},
			"semantic":   {Weight: 0.3, Threshold: 0.5},
			"latency":    {Weight: 0.2, Threshold: 0.6},
			"loops":      {Weight: 0.1, Threshold: 0.5},
		},
		ScoreWeights: ScoreWeights{Error: 0.5, Quality: 0.3, Trend: 0.2},
		TrendWindow:  8,
	}
}

// #endregion

// #region load

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	// A file that declares its own dimensions replaces the default set
	// wholesale; without this, YAML decoding merges into the default map.
	var keys map[string]yaml.Node
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if _, ok := keys["dimensions"]; ok {
		cfg.Dimensions = make(map[string]Dimension)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// #endregion

// #region validate

// Validate rejects configurations the controller cannot safely run with.
func (c Config) Validate() error {
	if len(c.Dimensions) == 0 {
		return fmt.Errorf("config: at least one dimension required")
	}
	var dimSum float64
	for name, d := range c.Dimensions {
		if d.Weight < 0 {
			return fmt.Errorf("config: dimension %s has negative weight", name)
		}
		if d.Threshold < 0 || d.Threshold > 1 {
			return fmt.Errorf("config: dimension %s threshold %.4f outside [0,1]", name, d.Threshold)
		}
		dimSum += d.Weight
	}
	if math.Abs(dimSum-1.0) > 1e-6 {
		return fmt.Errorf("config: dimension weights sum to %.4f, want 1.0", dimSum)
	}

	scoreSum := c.ScoreWeights.Error + c.ScoreWeights.Quality + c.ScoreWeights.Trend
	if math.Abs(scoreSum-1.0) > 1e-6 {
		return fmt.Errorf("config: score weights sum to %.4f, want 1.0", scoreSum)
	}

	if c.AcceptanceFloor < 0 || c.AcceptanceFloor > 1 {
		return fmt.Errorf("config: acceptance floor %.4f outside [0,1]", c.AcceptanceFloor)
	}
	if c.MaxDevelopRetries < 0 {
		return fmt.Errorf("config: max develop retries must be >= 0")
	}
	if c.TrendWindow <= 0 {
		return fmt.Errorf("config: trend window must be positive")
	}
	if len(c.Systems) == 0 {
		return fmt.Errorf("config: at least one system required")
	}
	return nil
}

// #endregion

// #region derived

// Thresholds returns the per-dimension thresholds as a plain map, suitable
// for seeding a system charter.
func (c Config) Thresholds() map[string]float64 {
	out := make(map[string]float64, len(c.Dimensions))
	for name, d := range c.Dimensions {
		out[name] = d.Threshold
	}
	return out
}

// DimensionWeights returns the per-dimension weights as a plain map.
func (c Config) DimensionWeights() map[string]float64 {
	out := make(map[string]float64, len(c.Dimensions))
	for name, d := range c.Dimensions {
		out[name] = d.Weight
	}
	return out
}

// #endregion
