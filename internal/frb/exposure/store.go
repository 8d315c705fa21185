package exposure

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chord-frb/sifter/internal/fsutil"
)

const (
	filePrefix = "exposure-"
	fileSuffix = ".gob.gz"
	dateLayout = "20060102"
)

// gridFile is the on-disk record of one day's grid.
type gridFile struct {
	Date     string
	Beams    []int
	Bins     int
	Observed []bool
}

// Store persists one grid per UTC date under a directory.
type Store struct {
	dir string
	fs  fsutil.FileSystem
}

// NewStore returns a store rooted at dir. A nil fsys uses the OS filesystem.
func NewStore(dir string, fsys fsutil.FileSystem) *Store {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Store{dir: dir, fs: fsys}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path used for date.
func (s *Store) Path(date time.Time) string {
	return filepath.Join(s.dir, filePrefix+date.UTC().Format(dateLayout)+fileSuffix)
}

// Save writes g as the grid for date. The file is written to a temporary
// name and renamed into place.
func (s *Store) Save(date time.Time, g *Grid) error {
	blob, err := encodeGrid(date, g)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create exposure dir: %w", err)
	}
	path := s.Path(date)
	tmp := path + ".tmp"
	if err := s.fs.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("failed to write exposure file: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move exposure file into place: %w", err)
	}
	return nil
}

// Load reads the grid stored for date.
func (s *Store) Load(date time.Time) (*Grid, error) {
	blob, err := s.fs.ReadFile(s.Path(date))
	if err != nil {
		return nil, err
	}
	return decodeGrid(blob)
}

// Dates returns every date with a stored grid, oldest first.
func (s *Store) Dates() ([]time.Time, error) {
	matches, err := s.fs.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), filePrefix), fileSuffix)
		d, err := time.Parse(dateLayout, name)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// encodeGrid compresses the grid using gob encoding and gzip compression.
func encodeGrid(date time.Time, g *Grid) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("nil exposure grid")
	}
	rec := gridFile{
		Date:     date.UTC().Format(dateLayout),
		Beams:    g.Beams,
		Bins:     g.Bins,
		Observed: g.Observed,
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(&rec); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGrid decompresses and decodes a grid from a gob+gzip blob.
func decodeGrid(blob []byte) (*Grid, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty exposure blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var rec gridFile
	if err := gob.NewDecoder(gz).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode exposure grid: %w", err)
	}
	g := &Grid{Beams: rec.Beams, Bins: rec.Bins, Observed: rec.Observed}
	if g.Beams == nil {
		g.Beams = []int{}
	}
	if g.Observed == nil {
		g.Observed = []bool{}
	}
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("corrupt exposure grid: %w", err)
	}
	g.buildIndex()
	return g, nil
}
