package grid

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// polarrisTimeLayout matches the 16 characters before ".nc" in POLARRIS
// file names, e.g. 2011_0520_103000.
const polarrisTimeLayout = "2006_0102_150405"

// polarrisSource reads POLARRIS-f simulated radar grids.
type polarrisSource struct{}

func (polarrisSource) Name() string    { return "POLARRIS" }
func (polarrisSource) Pattern() string { return "*.nc" }

func (polarrisSource) Load(ctx context.Context, files []string, opts Options) (*Composite, error) {
	vars := radarVars{refl: "CZ", rhohv: "RH"}
	c, err := assembleRadar(ctx, files, vars, opts.QC, func(path string, vol *radarVolume) ([]time.Time, error) {
		t, err := PolarrisFileTime(path)
		if err != nil {
			return nil, err
		}
		times := make([]time.Time, len(vol.frames))
		for i := range times {
			times[i] = t
		}
		return times, nil
	})
	if err != nil {
		return nil, err
	}
	c.Date = DateStamp(c.Times[0])
	return c, nil
}

// PolarrisFileTime parses the scan time embedded in a POLARRIS file name.
func PolarrisFileTime(path string) (time.Time, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, ".nc")
	if stem == base || len(stem) < len(polarrisTimeLayout) {
		return time.Time{}, fmt.Errorf("%s: name does not end in a %s timestamp", base, polarrisTimeLayout)
	}
	t, err := time.Parse(polarrisTimeLayout, stem[len(stem)-len(polarrisTimeLayout):])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", base, err)
	}
	return t, nil
}
