package arena

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for arena photos
	_ "image/png"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/shoal/geom"
)

// Defaults for red-marker extraction from arena images.
const (
	DefaultRedMin          = 200
	DefaultClusterDistance = 25
)

// PointRow is one wall point in a points CSV file.
type PointRow struct {
	X float64 `csv:"x"`
	Y float64 `csv:"y"`
}

// PointsFromImage collects the pixels whose red channel exceeds redMin and
// clusters them so each wall marker contributes a single point. Pixels are
// scanned row by row, so x is the column and y is the row.
func PointsFromImage(img image.Image, redMin uint8, clusterDistance float64) []geom.Vec {
	b := img.Bounds()
	var raw []geom.Vec
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if uint8(r>>8) > redMin {
				raw = append(raw, geom.V(float64(x-b.Min.X), float64(y-b.Min.Y)))
			}
		}
	}
	return geom.ClusterPoints(raw, clusterDistance)
}

// LoadImagePoints decodes a PNG or JPEG arena image and extracts its wall points.
func LoadImagePoints(path string, redMin uint8, clusterDistance float64) ([]geom.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening arena image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding arena image %s: %w", path, err)
	}
	return PointsFromImage(img, redMin, clusterDistance), nil
}

// LoadPointsCSV reads wall points from a CSV file with an x,y header.
func LoadPointsCSV(path string) ([]geom.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening points file: %w", err)
	}
	defer f.Close()

	var rows []PointRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing points file %s: %w", path, err)
	}
	points := make([]geom.Vec, len(rows))
	for i, r := range rows {
		points[i] = geom.V(r.X, r.Y)
	}
	return points, nil
}

// SavePointsCSV writes points in the format LoadPointsCSV reads.
func SavePointsCSV(path string, points []geom.Vec) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating points file: %w", err)
	}
	rows := make([]PointRow, len(points))
	for i, p := range points {
		rows[i] = PointRow{X: p.X, Y: p.Y}
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing points file: %w", err)
	}
	return f.Close()
}

// WallPoints returns the segment start points in wall order.
func (w Walls) WallPoints() []geom.Vec {
	out := make([]geom.Vec, len(w))
	for i, s := range w {
		out[i] = s.P1
	}
	return out
}
