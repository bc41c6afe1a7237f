// Package grid loads gridded radar and model volumes into a time series of
// column-maximum reflectivity composites on a fixed projection grid.
package grid

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"time"

	"github.com/banshee-data/celltrack/internal/geo"
)

// Composite is a time series of 2-D reflectivity fields sharing one grid.
type Composite struct {
	Source string // NEXRAD, POLARRIS or NUWRF
	Site   string
	Files  []string

	Times []time.Time
	X, Y  []float64     // projection coordinates, metres, ascending
	Refl  [][][]float64 // [time][y][x], NaN where missing or masked
	Lon   [][]float64   // [y][x], nil when the projection is unavailable
	Lat   [][]float64   // [y][x]

	Mapping geo.GridMapping

	DxyKm     float64
	DtMinutes float64
	Date      string // YYYYMMDD
}

// NumFrames returns the number of timesteps.
func (c *Composite) NumFrames() int { return len(c.Refl) }

// Shape returns the number of rows (y) and columns (x).
func (c *Composite) Shape() (ny, nx int) { return len(c.Y), len(c.X) }

// Projector returns the projector for the composite grid. Grids whose
// point coordinates came straight from the file (NUWRF) still carry a
// mapping so boundaries can be projected onto them.
func (c *Composite) Projector() (geo.Projector, error) {
	return geo.NewProjector(c.Mapping)
}

// LonLatAt returns the geographic position of the nearest grid point to the
// fractional row/column, or NaN when coordinates are unavailable.
func (c *Composite) LonLatAt(row, col float64) (lon, lat float64) {
	if c.Lon == nil || c.Lat == nil {
		return math.NaN(), math.NaN()
	}
	j := clampIndex(int(math.Round(row)), len(c.Lat))
	i := clampIndex(int(math.Round(col)), len(c.Lat[j]))
	return c.Lon[j][i], c.Lat[j][i]
}

// Validate checks the composite is internally consistent.
func (c *Composite) Validate() error {
	if len(c.Refl) == 0 {
		return fmt.Errorf("composite has no frames")
	}
	if len(c.Times) != len(c.Refl) {
		return fmt.Errorf("composite has %d times but %d frames", len(c.Times), len(c.Refl))
	}
	ny, nx := c.Shape()
	for k, f := range c.Refl {
		if len(f) != ny {
			return fmt.Errorf("frame %d has %d rows, want %d", k, len(f), ny)
		}
		for j, row := range f {
			if len(row) != nx {
				return fmt.Errorf("frame %d row %d has %d columns, want %d", k, j, len(row), nx)
			}
		}
	}
	return nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// QC holds the dual-polarisation quality control thresholds. A gate is
// masked when its correlation coefficient is below RhohvMin and its
// reflectivity is below ReflMin.
type QC struct {
	RhohvMin float64
	ReflMin  float64
}

// ColumnMax reduces a (z, y, x) reflectivity volume to its column maximum,
// ignoring QC-masked and missing gates. rhohv may be nil to skip QC.
func ColumnMax(refl, rhohv []float64, nz, ny, nx int, qc QC) [][]float64 {
	out := make([][]float64, ny)
	for j := 0; j < ny; j++ {
		out[j] = make([]float64, nx)
		for i := 0; i < nx; i++ {
			best := math.NaN()
			for k := 0; k < nz; k++ {
				idx := (k*ny+j)*nx + i
				v := refl[idx]
				if math.IsNaN(v) {
					continue
				}
				if rhohv != nil && rhohv[idx] < qc.RhohvMin && v < qc.ReflMin {
					continue
				}
				if math.IsNaN(best) || v > best {
					best = v
				}
			}
			out[j][i] = best
		}
	}
	return out
}

// GridSpacingKm returns |mean(diff(x))| truncated to whole metres, in km.
func GridSpacingKm(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(x); i++ {
		sum += x[i-1] - x[i]
	}
	mean := math.Trunc(sum / float64(len(x)-1))
	return math.Abs(mean) / 1000
}

// TimeStepMinutes returns the mean spacing of times in whole minutes, each
// interval truncated to whole minutes first. A single time yields 0.
func TimeStepMinutes(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(times); i++ {
		sum += math.Trunc(times[i-1].Sub(times[i]).Minutes())
	}
	return math.Abs(math.Trunc(sum / float64(len(times)-1)))
}

var dateDir = regexp.MustCompile(`^\d{8}$`)

// DateFromPath returns the final path component when it is a YYYYMMDD
// directory name.
func DateFromPath(path string) (string, bool) {
	base := filepath.Base(filepath.Clean(path))
	if !dateDir.MatchString(base) {
		return "", false
	}
	if _, err := time.Parse("20060102", base); err != nil {
		return "", false
	}
	return base, true
}

// DateStamp formats t as YYYYMMDD.
func DateStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}
