// Package lanal provides access to LANAL forecast output stored as one
// NetCDF file per forecast hour.
package lanal

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meteogrid/lanal-api/internal/domain"
)

// minFileSizeBytes is the corruption heuristic: files smaller than this are
// skipped during discovery.
const minFileSizeBytes = 1 << 20

// defaultCellSpacingM is the LANAL grid spacing.
const defaultCellSpacingM = 5000.0

// JST is the fixed civil time zone all request and file timestamps are
// expressed in. No DST, no ambiguity.
var JST = time.FixedZone("JST", 9*60*60)

// fileTimePattern matches LANAL_YYYYMMDDHH.nc; the embedded hour is UTC.
var fileTimePattern = regexp.MustCompile(`^LANAL_(\d{10})\.nc$`)

// LANAL grid constants: the documented reference point (30 °N, 140 °E) sits at
// 0-based grid [360, 448] of the 521×633 grid, with standard parallels at
// 30 °N / 60 °N and the central meridian at 140 °E.
const (
	lanalRows         = 521
	lanalCols         = 633
	lanalReferenceLat = 30.0
	lanalReferenceLon = 140.0
	lanalReferenceRow = 360.0
	lanalReferenceCol = 448.0
)

// Store indexes the NetCDF files under a data directory and serves raw value
// reads. The file index is the only mutable state and is rebuilt by Rescan
// behind an RWMutex; everything else is read-only.
type Store struct {
	dataDir string
	log     logrus.FieldLogger

	mu       sync.RWMutex
	files    map[time.Time]string // UTC forecast hour -> path.
	varNames map[string]bool      // Lazily cached from the first file.
}

// NewStore creates a store rooted at dataDir. Call Rescan before use.
func NewStore(dataDir string, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		dataDir: dataDir,
		log:     log.WithField("component", "lanal-store"),
		files:   make(map[time.Time]string),
	}
}

// Rescan rebuilds the file index from the data directory. Files that do not
// match the naming convention or fall below the size floor are skipped.
func (s *Store) Rescan() error {
	files := make(map[time.Time]string)

	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		m := fileTimePattern.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() < minFileSizeBytes {
			s.log.WithFields(logrus.Fields{"file": d.Name(), "size": info.Size()}).
				Warn("skipping undersized file, possible corruption")
			return nil
		}

		t, err := time.ParseInLocation("2006010215", m[1], time.UTC)
		if err != nil {
			s.log.WithField("file", d.Name()).Warn("skipping file with unparseable timestamp")
			return nil
		}

		files[t] = path
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", s.dataDir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no usable NetCDF files found in %s", s.dataDir)
	}

	s.mu.Lock()
	s.files = files
	s.varNames = nil // Re-probe variable names on next use.
	s.mu.Unlock()

	s.log.WithField("files", len(files)).Info("dataset index rebuilt")
	return nil
}

// Times returns the available forecast hours sorted ascending, in JST.
func (s *Store) Times() []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	times := make([]time.Time, 0, len(s.files))
	for t := range s.files {
		times = append(times, t.In(JST))
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// anyPath returns the path of one indexed file.
func (s *Store) anyPath() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, path := range s.files {
		return path, nil
	}
	return "", fmt.Errorf("dataset index is empty, call Rescan first")
}

// pathFor resolves the file holding the given forecast hour.
func (s *Store) pathFor(t time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.files[t.UTC().Truncate(time.Hour)]
	return path, ok
}

// HasVariable reports whether the dataset carries a physical variable.
func (s *Store) HasVariable(name string) bool {
	names, err := s.variableNames()
	if err != nil {
		s.log.WithError(err).Warn("failed to probe dataset variables")
		return false
	}
	return names[name]
}

// variableNames returns the cached variable name set, probing the first file
// on demand.
func (s *Store) variableNames() (map[string]bool, error) {
	s.mu.RLock()
	cached := s.varNames
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	path, err := s.anyPath()
	if err != nil {
		return nil, err
	}
	names, err := readVariableNames(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.varNames = names
	s.mu.Unlock()
	return names, nil
}

// Coordinates reads the 2-D latitude and longitude arrays from the dataset.
func (s *Store) Coordinates() (lat2d, lon2d [][]float64, err error) {
	path, err := s.anyPath()
	if err != nil {
		return nil, nil, err
	}
	return readCoordinates(path)
}

// Metadata assembles the grid metadata the projection is derived from. For
// the documented LANAL grid shape the known reference point and projection
// attributes are attached; other shapes fall back to a center-cell reference
// and leave the parallels to estimation.
func (s *Store) Metadata() (domain.GridMetadata, error) {
	lat2d, lon2d, err := s.Coordinates()
	if err != nil {
		return domain.GridMetadata{}, err
	}

	rows := len(lat2d)
	cols := 0
	if rows > 0 {
		cols = len(lat2d[0])
	}

	meta := domain.GridMetadata{
		Rows:         rows,
		Cols:         cols,
		CellSpacingM: defaultCellSpacingM,
		LatMin:       lat2d[0][0],
		LatMax:       lat2d[0][0],
		LonMin:       lon2d[0][0],
		LonMax:       lon2d[0][0],
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if lat2d[i][j] < meta.LatMin {
				meta.LatMin = lat2d[i][j]
			}
			if lat2d[i][j] > meta.LatMax {
				meta.LatMax = lat2d[i][j]
			}
			if lon2d[i][j] < meta.LonMin {
				meta.LonMin = lon2d[i][j]
			}
			if lon2d[i][j] > meta.LonMax {
				meta.LonMax = lon2d[i][j]
			}
		}
	}

	if rows == lanalRows && cols == lanalCols {
		sp1, sp2, cm := 30.0, 60.0, 140.0
		meta.HasReference = true
		meta.ReferenceLat = lanalReferenceLat
		meta.ReferenceLon = lanalReferenceLon
		meta.ReferenceRow = lanalReferenceRow
		meta.ReferenceCol = lanalReferenceCol
		meta.StandardParallel1 = &sp1
		meta.StandardParallel2 = &sp2
		meta.CentralMeridian = &cm
		return meta, nil
	}

	// Unknown shape: anchor at the center cell and let estimation pick the
	// parallels from the extent.
	ci, cj := rows/2, cols/2
	meta.HasReference = true
	meta.ReferenceLat = lat2d[ci][cj]
	meta.ReferenceLon = lon2d[ci][cj]
	meta.ReferenceRow = float64(ci)
	meta.ReferenceCol = float64(cj)
	return meta, nil
}

// ValuesAt reads the raw values of one physical variable at the given grid
// cells for one forecast hour. Fill values come back as NaN.
func (s *Store) ValuesAt(ctx context.Context, name string, t time.Time, rows, cols []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) != len(cols) {
		return nil, fmt.Errorf("mismatched cell index lengths: %d rows, %d cols", len(rows), len(cols))
	}

	path, ok := s.pathFor(t)
	if !ok {
		return nil, fmt.Errorf("no file indexed for %s", t.UTC().Format(time.RFC3339))
	}

	slab, nCols, err := readSlab(path, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", name, filepath.Base(path), err)
	}

	values := make([]float64, len(rows))
	for i := range rows {
		k := rows[i]*nCols + cols[i]
		if k < 0 || k >= len(slab) {
			return nil, fmt.Errorf("cell [%d, %d] outside the %s grid", rows[i], cols[i], name)
		}
		values[i] = slab[k]
	}
	return values, nil
}
