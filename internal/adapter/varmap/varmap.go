// Package varmap resolves logical variable names to the physical identifiers
// present in the dataset, driven by a YAML mapping table.
package varmap

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/meteogrid/lanal-api/internal/domain"
)

// levelPlaceholder is substituted with the pressure level at resolution time.
const levelPlaceholder = "{level}"

// entry is one validated mapping: a physical identifier template plus the
// declared source unit.
type entry struct {
	template string
	unit     domain.Unit
}

// Table is a validated logical-to-physical variable mapping. It is loaded
// once and read concurrently without locking.
type Table struct {
	surface  map[string]entry
	isobaric map[string]entry
}

// fileSchema is the on-disk YAML layout.
type fileSchema struct {
	Surface  map[string]string `yaml:"surface"`
	Isobaric map[string]string `yaml:"isobaric"`
	Units    map[string]string `yaml:"units"`
}

// Load reads and validates a mapping table from a YAML file.
func Load(path string) (*Table, error) {
	//nolint:gosec // G304: path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable mapping %s: %w", path, err)
	}

	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse variable mapping %s: %w", path, err)
	}

	table, err := build(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid variable mapping %s: %w", path, err)
	}
	return table, nil
}

// Default returns the built-in mapping for LANAL output.
func Default() *Table {
	table, err := build(fileSchema{
		Surface: map[string]string{
			"air_temperature":   "TMP_1D5maboveground",
			"relative_humidity": "RH_1D5maboveground",
			"u_wind":            "UGRD_10maboveground",
			"v_wind":            "VGRD_10maboveground",
			"surface_pressure":  "PRMSL_meansealevel",
		},
		Isobaric: map[string]string{
			"air_temperature":     "TMP_{level}mb",
			"relative_humidity":   "RH_{level}mb",
			"u_wind":              "UGRD_{level}mb",
			"v_wind":              "VGRD_{level}mb",
			"geopotential_height": "HGT_{level}mb",
		},
		Units: map[string]string{
			"air_temperature":     "K",
			"relative_humidity":   "1",
			"u_wind":              "m/s",
			"v_wind":              "m/s",
			"surface_pressure":    "Pa",
			"geopotential_height": "gpm",
		},
	})
	if err != nil {
		// The built-in table is validated by tests.
		panic(err)
	}
	return table
}

// build validates a schema into a Table. Malformed entries are rejected here,
// at load time, rather than at first use.
func build(schema fileSchema) (*Table, error) {
	units := make(map[string]domain.Unit, len(schema.Units))
	for name, u := range schema.Units {
		if !domain.KnownUnit(u) {
			return nil, fmt.Errorf("unknown unit %q for variable %q", u, name)
		}
		units[name] = domain.Unit(u)
	}

	makeEntries := func(src map[string]string, dt domain.DataType) (map[string]entry, error) {
		out := make(map[string]entry, len(src))
		for name, tmpl := range src {
			if strings.TrimSpace(tmpl) == "" {
				return nil, fmt.Errorf("empty physical identifier for %q (%s)", name, dt)
			}
			if dt == domain.DataTypeIsobaric && !strings.Contains(tmpl, levelPlaceholder) {
				return nil, fmt.Errorf("isobaric template for %q lacks the %s placeholder", name, levelPlaceholder)
			}
			// Unit-less entries keep the zero Unit and pass values
			// through unconverted.
			out[name] = entry{template: tmpl, unit: units[name]}
		}
		return out, nil
	}

	surface, err := makeEntries(schema.Surface, domain.DataTypeSurface)
	if err != nil {
		return nil, err
	}
	isobaric, err := makeEntries(schema.Isobaric, domain.DataTypeIsobaric)
	if err != nil {
		return nil, err
	}

	return &Table{surface: surface, isobaric: isobaric}, nil
}

// Resolve maps a logical name to the physical identifier for the given data
// type, substituting the pressure level into templated identifiers. It fails
// with *domain.VariableNotFoundError for unknown names and
// *domain.LevelRequiredError when a templated entry is resolved without a level.
func (t *Table) Resolve(logical string, dt domain.DataType, level *int) (string, domain.Unit, error) {
	m := t.surface
	if dt == domain.DataTypeIsobaric {
		m = t.isobaric
	}

	e, ok := m[logical]
	if !ok {
		return "", "", &domain.VariableNotFoundError{Name: logical, DataType: dt}
	}

	physical := e.template
	if strings.Contains(physical, levelPlaceholder) {
		if level == nil {
			return "", "", &domain.LevelRequiredError{Name: logical}
		}
		physical = strings.ReplaceAll(physical, levelPlaceholder, strconv.Itoa(*level))
	}
	return physical, e.unit, nil
}

// Names returns the configured logical names for a data type, sorted.
func (t *Table) Names(dt domain.DataType) []string {
	m := t.surface
	if dt == domain.DataTypeIsobaric {
		m = t.isobaric
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available intersects the configured mapping with the variables physically
// present in the dataset, as reported by has. Isobaric templates are probed at
// the given level. Missing optional variables are reported absent, never an
// error.
func (t *Table) Available(dt domain.DataType, level *int, has func(string) bool) []string {
	var present []string
	for _, name := range t.Names(dt) {
		physical, _, err := t.Resolve(name, dt, level)
		if err != nil {
			continue
		}
		if has(physical) {
			present = append(present, name)
		}
	}
	return present
}
