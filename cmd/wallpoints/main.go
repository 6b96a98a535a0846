// Wall point extraction tool - turns an arena image with red wall markers
// into a points CSV usable as arena.points_file, and reports the boundary.
//
// Usage: go run ./cmd/wallpoints -image tank.png -out walls.csv
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pthm-cable/shoal/arena"
	"github.com/pthm-cable/shoal/config"
)

func main() {
	cfg := config.MustDefaults()

	imagePath := flag.String("image", "", "Arena image (PNG/JPEG) with red wall markers")
	outPath := flag.String("out", "walls.csv", "Output CSV with x,y columns")
	redMin := flag.Int("red-min", cfg.Arena.RedMin, "Red channel threshold for marker pixels")
	cluster := flag.Float64("cluster-distance", cfg.Arena.ClusterDistance, "Marker pixels closer than this merge into one point")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if *imagePath == "" {
		logger.Error("missing -image")
		os.Exit(2)
	}
	if *redMin < 0 || *redMin > 255 {
		logger.Error("red-min out of range", "red_min", *redMin)
		os.Exit(2)
	}

	points, err := arena.LoadImagePoints(*imagePath, uint8(*redMin), *cluster)
	if err != nil {
		logger.Error("reading image", "error", err)
		os.Exit(1)
	}

	// Build the boundary to check the points form a loop before saving them.
	walls, err := arena.BuildWalls(points)
	if err != nil {
		logger.Error("building walls", "points", len(points), "error", err)
		os.Exit(1)
	}
	if err := arena.SavePointsCSV(*outPath, walls.WallPoints()); err != nil {
		logger.Error("writing points", "error", err)
		os.Exit(1)
	}

	lo, hi := walls.Bounds()
	logger.Info("walls extracted",
		"points", len(points),
		"segments", len(walls),
		"perimeter", walls.Perimeter(),
		"min_x", lo.X, "min_y", lo.Y,
		"max_x", hi.X, "max_y", hi.Y,
		"out", *outPath,
	)
}
