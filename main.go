package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pthm-cable/shoal/arena"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/neural"
	"github.com/pthm-cable/shoal/raycast"
	"github.com/pthm-cable/shoal/sim"
	"github.com/pthm-cable/shoal/telemetry"
)

// options holds the CLI flags that override the config file.
type options struct {
	configPath string
	frames     int
	startPath  string
	startLoc   string
	startFrame int
	resume     string
	walls      string
	outputDir  string
	predictor  string
	weights    string
	seed       uint64
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	flag.IntVar(&opts.frames, "frames", -1, "Frames to simulate (-1 = use config)")
	flag.StringVar(&opts.startPath, "start", "", "Tracks CSV (frame,agent,node,x,y) with the start poses")
	flag.StringVar(&opts.startLoc, "start-loc", "", "Locomotion CSV (frame,agent,index,value) with the start locomotion")
	flag.IntVar(&opts.startFrame, "start-frame", 0, "Frame of the start files to begin from")
	flag.StringVar(&opts.resume, "resume", "", "Snapshot JSON to resume from")
	flag.StringVar(&opts.walls, "walls", "", "Wall points as CSV (x,y) or a PNG/JPEG arena image")
	flag.StringVar(&opts.outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	flag.StringVar(&opts.predictor, "predictor", "", "Predictor kind: hold or ffnn (empty = use config)")
	flag.StringVar(&opts.weights, "weights", "", "FFNN weights JSON (empty = use config)")
	flag.Uint64Var(&opts.seed, "seed", 0, "RNG seed for random FFNN weights (0 = use config)")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) (err error) {
	cfg, err := loadWithFlags(opts)
	if err != nil {
		return err
	}

	walls, err := buildWalls(cfg.Arena)
	if err != nil {
		return fmt.Errorf("building arena: %w", err)
	}
	caster, err := raycast.New(walls, cfg.Vision.Rays, cfg.Vision.FOV, cfg.Vision.MaxRange)
	if err != nil {
		return err
	}

	predictor, err := buildPredictor(cfg)
	if err != nil {
		return fmt.Errorf("building predictor: %w", err)
	}

	start, source, err := buildStart(cfg, opts, walls)
	if err != nil {
		return fmt.Errorf("building start state: %w", err)
	}

	info, err := telemetry.NewRunInfo(cfg, source, opts.startFrame, time.Now())
	if err != nil {
		return err
	}

	out, err := telemetry.NewOutputManager(cfg.Output.Dir, neural.IDs(neural.OutputDescriptors(cfg.Swarm.Nodes)))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := writeInputs(out, cfg, walls, predictor); err != nil {
		return err
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	s, err := sim.New(cfg, caster, predictor, start, sim.WithLogger(logger), sim.WithTimer(perf))
	if err != nil {
		return err
	}

	rec := telemetry.NewRecorder(cfg, out, perf, info.ID, logger)
	first := s.History().At(0)
	if err := rec.Begin(&first); err != nil {
		return err
	}

	logger.Info("starting simulation",
		"run_id", info.ID,
		"agents", cfg.Swarm.Fish,
		"nodes", len(cfg.Swarm.Nodes),
		"rays", cfg.Vision.Rays,
		"walls", len(walls),
		"predictor", cfg.Predictor.Kind,
		"start", source,
		"frames", cfg.Simulation.Frames,
		"workers", cfg.Simulation.Workers,
	)

	runErr := s.Run(ctx, cfg.Simulation.Frames, rec.Observe)
	if runErr == nil {
		runErr = rec.Finish()
	}

	info.Finish(s.Frame(), time.Now(), runErr)
	if err := out.WriteRunInfo(info); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("simulation finished", "frames", s.Frame(), "output_dir", out.Dir())
	return nil
}

// loadWithFlags loads the config file and applies the CLI overrides.
func loadWithFlags(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, opts); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides config values with the CLI flags that were set and
// revalidates.
func applyFlags(cfg *config.Config, opts options) error {
	if opts.frames >= 0 {
		cfg.Simulation.Frames = opts.frames
	}
	if opts.walls != "" {
		switch filepath.Ext(opts.walls) {
		case ".png", ".jpg", ".jpeg":
			cfg.Arena.Image = opts.walls
		default:
			cfg.Arena.PointsFile = opts.walls
		}
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.predictor != "" {
		cfg.Predictor.Kind = opts.predictor
	}
	if opts.weights != "" {
		cfg.Predictor.Weights = opts.weights
	}
	if opts.seed != 0 {
		cfg.Predictor.Seed = opts.seed
	}
	return cfg.Refresh()
}

// writeInputs saves what the run was built from: the config, the wall points
// and the weights of a randomly initialized network.
func writeInputs(out *telemetry.OutputManager, cfg *config.Config, walls arena.Walls, p sim.Predictor) error {
	if out == nil {
		return nil
	}
	if err := out.WriteConfig(cfg); err != nil {
		return err
	}
	if err := arena.SavePointsCSV(filepath.Join(out.Dir(), "walls.csv"), walls.WallPoints()); err != nil {
		return err
	}
	if nn, ok := p.(*neural.FFNN); ok && cfg.Predictor.Weights == "" {
		return nn.SaveWeights(filepath.Join(out.Dir(), "weights.json"))
	}
	return nil
}
