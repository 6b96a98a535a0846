// Package config provides configuration loading for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/shoal/perception"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Predictor kinds.
const (
	PredictorHold = "hold"
	PredictorFFNN = "ffnn"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all simulation configuration parameters.
type Config struct {
	Swarm      SwarmConfig      `yaml:"swarm"`
	Vision     VisionConfig     `yaml:"vision"`
	Arena      ArenaConfig      `yaml:"arena"`
	Simulation SimulationConfig `yaml:"simulation"`
	Predictor  PredictorConfig  `yaml:"predictor"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Output     OutputConfig     `yaml:"output"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SwarmConfig describes the agents.
type SwarmConfig struct {
	Fish  int      `yaml:"fish"`  // Number of agents
	Nodes []string `yaml:"nodes"` // Body node names; head first, center second

	// Synthetic start used when no tracks are given
	BodyLength float64 `yaml:"body_length"` // Head to last node
	Speed      float64 `yaml:"speed"`       // Forward step per frame
}

// VisionConfig holds wall raycasting parameters.
type VisionConfig struct {
	Rays     int     `yaml:"rays"`
	FOV      float64 `yaml:"fov"`       // Degrees, centred on the heading
	MaxRange float64 `yaml:"max_range"` // Distance reported when a ray hits nothing
}

// PointConfig is one inline wall point.
type PointConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ArenaConfig selects the wall point source. An image takes precedence over a
// points file, which takes precedence over inline points.
type ArenaConfig struct {
	Points          []PointConfig `yaml:"points"`
	PointsFile      string        `yaml:"points_file"`      // CSV with x,y columns
	Image           string        `yaml:"image"`            // PNG/JPEG with red wall markers
	RedMin          int           `yaml:"red_min"`          // Red channel threshold for markers
	ClusterDistance float64       `yaml:"cluster_distance"` // Marker pixels closer than this merge
}

// SimulationConfig holds loop parameters.
type SimulationConfig struct {
	Frames            int `yaml:"frames"`
	Workers           int `yaml:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int `yaml:"parallel_threshold"` // Below this many agents, run inline
	LogEvery          int `yaml:"log_every"`          // Progress log interval in frames (0 = off)
}

// PredictorConfig selects the built-in predictor.
type PredictorConfig struct {
	Kind         string `yaml:"kind"`          // hold | ffnn
	Weights      string `yaml:"weights"`       // JSON weights for ffnn; random init when empty
	HiddenLayers []int  `yaml:"hidden_layers"` // Used for random init only
	Seed         uint64 `yaml:"seed"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow     int  `yaml:"stats_window"`     // Frames per stats.csv row
	PerfWindow      int  `yaml:"perf_window"`      // Frames in the perf rolling window
	BookmarkHistory int  `yaml:"bookmark_history"` // Stats windows compared by the bookmark detector
	Snapshots       bool `yaml:"snapshots"`        // Save a snapshot on every bookmark
}

// OutputConfig holds output settings.
type OutputConfig struct {
	Dir string `yaml:"dir"` // Empty disables file output
}

// DerivedConfig holds values computed from other config values.
type DerivedConfig struct {
	NNodes int // Nodes per agent
	NViews int // (fish-1) * nodes * 2
	DLoc   int // 2*nodes + 1
	DObs   int // NViews + rays + DLoc
}

// Load reads configuration from a YAML file, using embedded defaults as base.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// MustDefaults is Defaults for tests and tools; it panics on a broken embed.
func MustDefaults() *Config {
	cfg, err := Defaults()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Refresh recomputes derived values after fields were changed in code, for
// example by command-line overrides, and validates the result.
func (c *Config) Refresh() error {
	c.computeDerived()
	return c.Validate()
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	l := c.Layout()
	c.Derived.NNodes = l.Nodes
	c.Derived.NViews = l.NViews()
	c.Derived.DLoc = l.DLoc()
	c.Derived.DObs = l.Len()
}

// Layout returns the observation layout for this configuration.
func (c *Config) Layout() perception.Layout {
	return perception.Layout{Fish: c.Swarm.Fish, Nodes: len(c.Swarm.Nodes), Rays: c.Vision.Rays}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Swarm.Fish < 1:
		return fmt.Errorf("%w: swarm.fish = %d, need at least 1", ErrInvalid, c.Swarm.Fish)
	case len(c.Swarm.Nodes) < 2:
		return fmt.Errorf("%w: swarm.nodes has %d entries, need head and center", ErrInvalid, len(c.Swarm.Nodes))
	case c.Swarm.BodyLength <= 0:
		return fmt.Errorf("%w: swarm.body_length = %v", ErrInvalid, c.Swarm.BodyLength)
	case c.Swarm.Speed < 0:
		return fmt.Errorf("%w: swarm.speed = %v", ErrInvalid, c.Swarm.Speed)
	case c.Vision.Rays < 1:
		return fmt.Errorf("%w: vision.rays = %d", ErrInvalid, c.Vision.Rays)
	case c.Vision.FOV < 0 || c.Vision.FOV > 360:
		return fmt.Errorf("%w: vision.fov = %v, want [0, 360]", ErrInvalid, c.Vision.FOV)
	case c.Vision.MaxRange <= 0:
		return fmt.Errorf("%w: vision.max_range = %v", ErrInvalid, c.Vision.MaxRange)
	case c.Arena.RedMin < 0 || c.Arena.RedMin > 255:
		return fmt.Errorf("%w: arena.red_min = %d, want [0, 255]", ErrInvalid, c.Arena.RedMin)
	case c.Arena.ClusterDistance < 0:
		return fmt.Errorf("%w: arena.cluster_distance = %v", ErrInvalid, c.Arena.ClusterDistance)
	case c.Simulation.Frames < 0:
		return fmt.Errorf("%w: simulation.frames = %d", ErrInvalid, c.Simulation.Frames)
	case c.Simulation.Workers < 0:
		return fmt.Errorf("%w: simulation.workers = %d", ErrInvalid, c.Simulation.Workers)
	case c.Simulation.LogEvery < 0:
		return fmt.Errorf("%w: simulation.log_every = %d", ErrInvalid, c.Simulation.LogEvery)
	case c.Predictor.Kind != PredictorHold && c.Predictor.Kind != PredictorFFNN:
		return fmt.Errorf("%w: predictor.kind = %q, want %q or %q", ErrInvalid, c.Predictor.Kind, PredictorHold, PredictorFFNN)
	case c.Telemetry.StatsWindow < 1:
		return fmt.Errorf("%w: telemetry.stats_window = %d", ErrInvalid, c.Telemetry.StatsWindow)
	case c.Telemetry.PerfWindow < 1:
		return fmt.Errorf("%w: telemetry.perf_window = %d", ErrInvalid, c.Telemetry.PerfWindow)
	case c.Telemetry.BookmarkHistory < 5:
		return fmt.Errorf("%w: telemetry.bookmark_history = %d, need at least 5", ErrInvalid, c.Telemetry.BookmarkHistory)
	}
	for _, h := range c.Predictor.HiddenLayers {
		if h < 1 {
			return fmt.Errorf("%w: predictor.hidden_layers contains %d", ErrInvalid, h)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.MarshalYAMLBytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// MarshalYAMLBytes returns the YAML encoding of the configuration.
func (c *Config) MarshalYAMLBytes() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
