package telemetry

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/neural"
)

// RunInfo is the metadata written to run.yaml.
type RunInfo struct {
	ID           string `yaml:"run_id"`
	ConfigDigest string `yaml:"config_digest"`
	Predictor    string `yaml:"predictor"`
	StartSource  string `yaml:"start_source"`

	Agents     int      `yaml:"agents"`
	Nodes      []string `yaml:"nodes"`
	Rays       int      `yaml:"rays"`
	StartFrame int      `yaml:"start_frame"` // frame of the start source
	Frames     int      `yaml:"frames"`      // frames simulated

	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at,omitempty"`
	Error      string    `yaml:"error,omitempty"`

	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`
}

// ConfigDigest returns a stable hash of the configuration, so runs with
// identical settings can be grouped.
func ConfigDigest(cfg *config.Config) (string, error) {
	data, err := cfg.MarshalYAMLBytes()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// NewRunInfo starts the metadata of a run with a fresh run id.
func NewRunInfo(cfg *config.Config, startSource string, startFrame int, now time.Time) (RunInfo, error) {
	digest, err := ConfigDigest(cfg)
	if err != nil {
		return RunInfo{}, err
	}
	return RunInfo{
		ID:           uuid.NewString(),
		ConfigDigest: digest,
		Predictor:    cfg.Predictor.Kind,
		StartSource:  startSource,
		Agents:       cfg.Swarm.Fish,
		Nodes:        append([]string(nil), cfg.Swarm.Nodes...),
		Rays:         cfg.Vision.Rays,
		StartFrame:   startFrame,
		StartedAt:    now,
		Inputs:       neural.IDs(neural.InputDescriptors(cfg.Layout(), cfg.Swarm.Nodes)),
		Outputs:      neural.IDs(neural.OutputDescriptors(cfg.Swarm.Nodes)),
	}, nil
}

// Finish records the end of the run.
func (r *RunInfo) Finish(frames int, now time.Time, err error) {
	r.Frames = frames
	r.FinishedAt = now
	if err != nil {
		r.Error = err.Error()
	}
}
