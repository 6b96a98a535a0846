package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/shoal/geom"
	"github.com/pthm-cable/shoal/locomotion"
	"github.com/pthm-cable/shoal/sim"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds one frame of the swarm, enough to resume a run from it.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	Frame   int    `json:"frame"`

	Nodes  []string     `json:"nodes"`
	Agents []AgentState `json:"agents"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// AgentState holds one agent's pose and the locomotion that produced it.
type AgentState struct {
	Index      int          `json:"index"`
	Pose       [][2]float64 `json:"pose"`
	Heading    float64      `json:"heading"`
	Locomotion []float64    `json:"locomotion"`
}

// NewSnapshot captures frame f. nodes names the body nodes in pose order.
func NewSnapshot(runID string, nodes []string, f *sim.Frame, bookmark *Bookmark) *Snapshot {
	s := &Snapshot{
		Version:  SnapshotVersion,
		RunID:    runID,
		Frame:    f.Index,
		Nodes:    append([]string(nil), nodes...),
		Agents:   make([]AgentState, len(f.State.Poses)),
		Bookmark: bookmark,
	}
	for i, pose := range f.State.Poses {
		a := AgentState{
			Index:      i,
			Pose:       make([][2]float64, len(pose)),
			Locomotion: append([]float64(nil), f.Locomotion[i]...),
		}
		for n, p := range pose {
			a.Pose[n] = [2]float64{p.X, p.Y}
		}
		if i < len(f.Orientations) {
			a.Heading = f.Orientations[i].Heading
		}
		s.Agents[i] = a
	}
	return s
}

// Start converts the snapshot back into a simulation start state.
func (s *Snapshot) Start() (sim.Start, error) {
	var start sim.Start
	for i, a := range s.Agents {
		if len(a.Pose) != len(s.Nodes) {
			return sim.Start{}, fmt.Errorf("snapshot agent %d: %d nodes, want %d", i, len(a.Pose), len(s.Nodes))
		}
		pose := make([]geom.Vec, len(a.Pose))
		for n, p := range a.Pose {
			pose[n] = geom.V(p[0], p[1])
		}
		v, err := locomotion.Unflatten(a.Locomotion, len(s.Nodes))
		if err != nil {
			return sim.Start{}, fmt.Errorf("snapshot agent %d: %w", i, err)
		}
		start.Poses = append(start.Poses, pose)
		start.Locomotion = append(start.Locomotion, v)
	}
	return start, nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Frame)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Frame, sanitized)
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	return &snapshot, nil
}
