package varmap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meteogrid/lanal-api/internal/domain"
)

// TestDefault tests that the built-in mapping validates and carries the
// expected logical names.
func TestDefault(t *testing.T) {
	table := Default()

	surface := table.Names(domain.DataTypeSurface)
	for _, want := range []string{"air_temperature", "relative_humidity", "u_wind", "v_wind", "surface_pressure"} {
		found := false
		for _, name := range surface {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Default surface mapping missing %q", want)
		}
	}

	isobaric := table.Names(domain.DataTypeIsobaric)
	if len(isobaric) != 5 {
		t.Errorf("Default isobaric mapping: expected 5 names, got %d", len(isobaric))
	}
}

// TestTable_Resolve_Surface tests surface resolution with its declared unit.
func TestTable_Resolve_Surface(t *testing.T) {
	table := Default()

	physical, unit, err := table.Resolve("air_temperature", domain.DataTypeSurface, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if physical != "TMP_1D5maboveground" {
		t.Errorf("Physical name: expected TMP_1D5maboveground, got %q", physical)
	}
	if unit != domain.UnitKelvin {
		t.Errorf("Unit: expected K, got %q", unit)
	}
}

// TestTable_Resolve_IsobaricLevel tests level substitution into templated
// identifiers.
func TestTable_Resolve_IsobaricLevel(t *testing.T) {
	table := Default()

	level := 500
	physical, unit, err := table.Resolve("relative_humidity", domain.DataTypeIsobaric, &level)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if physical != "RH_500mb" {
		t.Errorf("Physical name: expected RH_500mb, got %q", physical)
	}
	if unit != domain.UnitFraction {
		t.Errorf("Unit: expected fraction, got %q", unit)
	}
}

// TestTable_Resolve_LevelRequired tests that templated entries demand a level.
func TestTable_Resolve_LevelRequired(t *testing.T) {
	table := Default()

	_, _, err := table.Resolve("air_temperature", domain.DataTypeIsobaric, nil)
	if err == nil {
		t.Fatalf("Expected error, got nil")
	}
	var levelErr *domain.LevelRequiredError
	if !errors.As(err, &levelErr) {
		t.Fatalf("Expected *LevelRequiredError, got %T", err)
	}
	if levelErr.Name != "air_temperature" {
		t.Errorf("Error name: expected air_temperature, got %q", levelErr.Name)
	}
}

// TestTable_Resolve_NotFound tests unknown logical names, including names
// configured only for the other data type.
func TestTable_Resolve_NotFound(t *testing.T) {
	table := Default()

	tests := []struct {
		name string
		dt   domain.DataType
	}{
		{"snowfall", domain.DataTypeSurface},
		{"geopotential_height", domain.DataTypeSurface},
		{"surface_pressure", domain.DataTypeIsobaric},
	}

	for _, tt := range tests {
		_, _, err := table.Resolve(tt.name, tt.dt, nil)
		var notFound *domain.VariableNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("Resolve(%q, %s): expected *VariableNotFoundError, got %v", tt.name, tt.dt, err)
		}
	}
}

// TestLoad tests loading a valid mapping from YAML.
func TestLoad(t *testing.T) {
	path := writeMapping(t, `
surface:
  air_temperature: TMP_surface
  u_wind: UGRD_10m
isobaric:
  air_temperature: TMP_{level}mb
units:
  air_temperature: K
  u_wind: m/s
`)

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	physical, unit, err := table.Resolve("air_temperature", domain.DataTypeSurface, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if physical != "TMP_surface" || unit != domain.UnitKelvin {
		t.Errorf("Resolve: expected (TMP_surface, K), got (%q, %q)", physical, unit)
	}

	level := 850
	physical, _, err = table.Resolve("air_temperature", domain.DataTypeIsobaric, &level)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if physical != "TMP_850mb" {
		t.Errorf("Resolve isobaric: expected TMP_850mb, got %q", physical)
	}
}

// TestLoad_Invalid tests load-time rejection of malformed mappings.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name: "unknown unit",
			yaml: `
surface:
  air_temperature: TMP_surface
units:
  air_temperature: furlongs
`,
			wantMsg: "unknown unit",
		},
		{
			name: "isobaric template without placeholder",
			yaml: `
isobaric:
  air_temperature: TMP_500mb
units:
  air_temperature: K
`,
			wantMsg: "placeholder",
		},
		{
			name: "empty identifier",
			yaml: `
surface:
  air_temperature: "  "
`,
			wantMsg: "empty physical identifier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeMapping(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

// TestLoad_MissingFile tests the error for an absent path.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Errorf("Expected error, got nil")
	}
}

// TestTable_Available tests intersection with the physically present variables.
func TestTable_Available(t *testing.T) {
	table := Default()

	has := func(name string) bool {
		return strings.HasPrefix(name, "TMP_") || strings.HasPrefix(name, "RH_")
	}

	got := table.Available(domain.DataTypeSurface, nil, has)
	want := []string{"air_temperature", "relative_humidity"}
	if len(got) != len(want) {
		t.Fatalf("Available: expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available[%d]: expected %q, got %q", i, want[i], got[i])
		}
	}

	// Without a level, templated isobaric entries cannot resolve and are
	// reported absent rather than failing.
	if got := table.Available(domain.DataTypeIsobaric, nil, has); len(got) != 0 {
		t.Errorf("Available without level: expected none, got %v", got)
	}

	level := 500
	got = table.Available(domain.DataTypeIsobaric, &level, has)
	if len(got) != 2 {
		t.Errorf("Available at 500 hPa: expected 2 names, got %v", got)
	}
}

// writeMapping writes a YAML mapping to a temp file and returns its path.
func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "variables.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write mapping: %v", err)
	}
	return path
}
