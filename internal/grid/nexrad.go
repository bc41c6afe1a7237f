package grid

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/ncfile"
)

// nexradSource reads Py-ART style gridded NEXRAD volumes, one file per
// scan.
type nexradSource struct{}

func (nexradSource) Name() string    { return "NEXRAD" }
func (nexradSource) Pattern() string { return "*.nc" }

func (nexradSource) Load(ctx context.Context, files []string, opts Options) (*Composite, error) {
	warnConventions(files[0])
	vars := radarVars{refl: "reflectivity", rhohv: "cross_correlation_ratio"}
	c, err := assembleRadar(ctx, files, vars, opts.QC, func(path string, vol *radarVolume) ([]time.Time, error) {
		if len(vol.times) == 0 {
			return nil, fmt.Errorf("%s: no time variable", path)
		}
		return vol.times, nil
	})
	if err != nil {
		return nil, err
	}
	if d, ok := DateFromPath(opts.Dir); ok {
		c.Date = d
	} else {
		c.Date = DateStamp(c.Times[0])
	}
	return c, nil
}

// warnConventions logs when the first file declares a convention other
// than CF. The file is still read.
func warnConventions(path string) {
	ds, err := ncfile.Open(path)
	if err != nil {
		return
	}
	defer ds.Close()
	conv, ok := ncfile.AttrString(ds.Attrs(), "Conventions")
	if msg := conventionsWarning(conv, ok); msg != "" {
		monitoring.Logf("warning: %s: %s", filepath.Base(path), msg)
	}
}

// conventionsWarning describes an unexpected Conventions attribute, or
// returns "" when it is absent or names CF.
func conventionsWarning(conv string, ok bool) string {
	if !ok || strings.Contains(conv, "CF/Radial") || strings.Contains(conv, "CF-") {
		return ""
	}
	return fmt.Sprintf("Conventions %q is not CF, reading it as gridded radar anyway", conv)
}
