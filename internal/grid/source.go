package grid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/celltrack/internal/fsutil"
	"github.com/banshee-data/celltrack/internal/monitoring"
)

var (
	// ErrUnknownSource is returned for a data-type tag with no loader.
	ErrUnknownSource = errors.New("unknown data source")
	// ErrNoFiles is returned when the input directory holds no matching files.
	ErrNoFiles = errors.New("no input files")
)

// Options control how a source is loaded.
type Options struct {
	Site string
	QC   QC
	// Dir is the input directory; NEXRAD takes its date stamp from it.
	Dir string
}

// Source loads one family of gridded files.
type Source interface {
	// Name is the data-type tag, e.g. NEXRAD.
	Name() string
	// Pattern is the glob matched against file names in the input directory.
	Pattern() string
	// Load reads files (sorted chronologically) into a composite.
	Load(ctx context.Context, files []string, opts Options) (*Composite, error)
}

var registry = map[string]Source{}

// Register adds a source to the registry, replacing any source with the
// same tag.
func Register(s Source) {
	registry[strings.ToUpper(s.Name())] = s
}

func init() {
	Register(nexradSource{})
	Register(polarrisSource{})
	Register(nuwrfSource{})
}

// Lookup returns the source for a case-insensitive data-type tag.
func Lookup(tag string) (Source, error) {
	s, ok := registry[strings.ToUpper(strings.TrimSpace(tag))]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownSource, tag, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names lists the registered tags.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load lists the files of the given source in dir and loads them.
func Load(ctx context.Context, fsys fsutil.FileSystem, tag, dir string, opts Options) (*Composite, error) {
	src, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	files, err := fsutil.ListInputs(fsys, dir, src.Pattern())
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoFiles, dir, src.Pattern())
	}
	opts.Dir = dir
	monitoring.Logf("loading %d %s files from %s", len(files), src.Name(), dir)

	c, err := src.Load(ctx, files, opts)
	if err != nil {
		return nil, err
	}
	c.Source = src.Name()
	c.Site = opts.Site
	c.Files = files
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s composite: %w", src.Name(), err)
	}
	monitoring.Logf("loaded %d frames of %dx%d, dxy=%.3f km, dt=%.0f min, date=%s",
		c.NumFrames(), len(c.Y), len(c.X), c.DxyKm, c.DtMinutes, c.Date)
	return c, nil
}
