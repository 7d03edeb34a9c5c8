// Package fixtures loads daily-record fixture files into the dev server's
// database and keeps them in sync with the fixtures directory.
//
// A fixture is a flat JSON file named <date>.json whose content is a full
// daily record for that date.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/perch/daybook/internal/checksum"
)

// Entry is the metadata of one fixture file.
type Entry struct {
	Name     string // file name, e.g. 2024-03-01.json
	Date     string // calendar day derived from the file name
	Checksum string
}

// Dir is a flat directory of fixture files.
type Dir struct {
	root string
}

// NewDir creates a fixture directory handle. The directory must already exist.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fixtures: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fixtures: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixtures: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string { return d.root }

// List returns metadata for every .json fixture in the directory.
func (d *Dir) List() ([]Entry, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("fixtures: read dir: %w", err)
	}
	var out []Entry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("fixtures: read %s: %w", e.Name(), err)
		}
		out = append(out, Entry{
			Name:     e.Name(),
			Date:     DateOf(e.Name()),
			Checksum: checksum.Sum(data),
		})
	}
	return out, nil
}

// Read returns the raw bytes of the named fixture. Names containing path
// separators are rejected.
func (d *Dir) Read(name string) ([]byte, error) {
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("fixtures: invalid name: %s", name)
	}
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if err != nil {
		return nil, fmt.Errorf("fixtures: read %s: %w", name, err)
	}
	return data, nil
}

// DateOf returns the calendar day encoded in a fixture file name.
func DateOf(name string) string {
	return strings.TrimSuffix(filepath.Base(name), ".json")
}
