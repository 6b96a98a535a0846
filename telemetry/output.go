package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/sim"
	"github.com/pthm-cable/shoal/tracks"
)

// csvFile is one CSV output stream. The header is written with the first
// batch of records.
type csvFile struct {
	name          string
	f             *os.File
	w             *bufio.Writer
	headerWritten bool
}

func createCSV(dir, name string) (*csvFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvFile{name: name, f: f, w: bufio.NewWriter(f)}, nil
}

// write appends records, a slice of csv-tagged structs.
func (c *csvFile) write(records interface{}) error {
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.w); err != nil {
			return fmt.Errorf("writing %s: %w", c.name, err)
		}
		c.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, c.w); err != nil {
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	return nil
}

func (c *csvFile) close() error {
	return errors.Join(c.w.Flush(), c.f.Close())
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir      string
	locNames []string

	tracksFile      *csvFile
	orientationFile *csvFile
	locomotionFile  *csvFile
	statsFile       *csvFile
	perfFile        *csvFile
	bookmarkFile    *csvFile

	// Reused per-frame row buffers
	poseRows   []tracks.PoseRow
	orientRows []tracks.OrientationRow
	locoRows   []tracks.LocomotionRow
}

// NewOutputManager creates a new output manager and initializes the output
// directory. locNames labels the locomotion vector entries in locomotion.csv.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string, locNames []string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, locNames: locNames}
	for _, out := range []struct {
		file **csvFile
		name string
	}{
		{&om.tracksFile, "tracks.csv"},
		{&om.orientationFile, "orientation.csv"},
		{&om.locomotionFile, "locomotion.csv"},
		{&om.statsFile, "stats.csv"},
		{&om.perfFile, "perf.csv"},
		{&om.bookmarkFile, "bookmarks.csv"},
	} {
		f, err := createCSV(dir, out.name)
		if err != nil {
			om.Close()
			return nil, err
		}
		*out.file = f
	}
	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteFrame appends the poses, orientations and locomotion of one frame.
// Its signature matches sim.FrameObserver.
func (om *OutputManager) WriteFrame(f *sim.Frame) error {
	if om == nil {
		return nil
	}

	om.poseRows = tracks.PoseRows(om.poseRows[:0], f.Index, f.State.Poses)
	if err := om.tracksFile.write(&om.poseRows); err != nil {
		return err
	}
	om.orientRows = tracks.OrientationRows(om.orientRows[:0], f.Index, f.Orientations)
	if err := om.orientationFile.write(&om.orientRows); err != nil {
		return err
	}
	om.locoRows = tracks.LocomotionRows(om.locoRows[:0], f.Index, f.Locomotion, om.locNames)
	return om.locomotionFile.write(&om.locoRows)
}

// WriteStats writes a window stats record to stats.csv.
func (om *OutputManager) WriteStats(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.statsFile.write([]WindowStats{stats})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int) error {
	if om == nil {
		return nil
	}
	return om.perfFile.write([]PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarkFile.write([]Bookmark{b})
}

// WriteAgents writes per-agent run statistics to agents.csv.
func (om *OutputManager) WriteAgents(stats []LifetimeStats) error {
	if om == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(om.dir, "agents.csv"))
	if err != nil {
		return fmt.Errorf("creating agents.csv: %w", err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&stats, f); err != nil {
		return fmt.Errorf("writing agents.csv: %w", err)
	}
	return nil
}

// WriteRunInfo saves the run metadata as run.yaml.
func (om *OutputManager) WriteRunInfo(info RunInfo) error {
	if om == nil {
		return nil
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling run info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "run.yaml"), data, 0644); err != nil {
		return fmt.Errorf("writing run.yaml: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var errs []error
	for _, f := range []*csvFile{
		om.tracksFile, om.orientationFile, om.locomotionFile,
		om.statsFile, om.perfFile, om.bookmarkFile,
	} {
		if f != nil {
			errs = append(errs, f.close())
		}
	}
	return errors.Join(errs...)
}
