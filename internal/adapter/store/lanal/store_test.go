package lanal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeFile writes size bytes to name under dir.
func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

// TestStore_Rescan tests discovery: matching names at full size are indexed,
// undersized and misnamed files are skipped.
func TestStore_Rescan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "LANAL_2025010100.nc", minFileSizeBytes)
	writeFile(t, dir, "LANAL_2025010103.nc", minFileSizeBytes)
	writeFile(t, dir, "LANAL_2025010106.nc", 100)      // Undersized, skipped.
	writeFile(t, dir, "GSM_2025010100.nc", minFileSizeBytes) // Wrong model, skipped.
	writeFile(t, dir, "README.txt", 64)

	store := NewStore(dir, nil)
	if err := store.Rescan(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	times := store.Times()
	if len(times) != 2 {
		t.Fatalf("Expected 2 indexed hours, got %d", len(times))
	}
	if !times[0].Before(times[1]) {
		t.Errorf("Times not sorted ascending")
	}

	// File hours are UTC; reported times must be the same instants in JST.
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !times[0].Equal(want) {
		t.Errorf("First hour: expected %v, got %v", want, times[0])
	}
	if _, offset := times[0].Zone(); offset != 9*60*60 {
		t.Errorf("Zone offset: expected +9h, got %d seconds", offset)
	}
	if times[0].Hour() != 9 {
		t.Errorf("JST wall clock: expected 09, got %02d", times[0].Hour())
	}
}

// TestStore_Rescan_Subdirectories tests that discovery walks nested directories.
func TestStore_Rescan_Subdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "2025", "01")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}
	writeFile(t, sub, "LANAL_2025011512.nc", minFileSizeBytes)

	store := NewStore(dir, nil)
	if err := store.Rescan(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(store.Times()) != 1 {
		t.Errorf("Expected 1 indexed hour, got %d", len(store.Times()))
	}
}

// TestStore_Rescan_Empty tests the error when no usable file exists.
func TestStore_Rescan_Empty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", 64)

	store := NewStore(dir, nil)
	err := store.Rescan()
	if err == nil {
		t.Fatalf("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no usable") {
		t.Errorf("Error %q does not mention the empty index", err.Error())
	}
}

// TestStore_RescanReplacesIndex tests that a rescan drops files removed from
// the directory.
func TestStore_RescanReplacesIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "LANAL_2025010100.nc", minFileSizeBytes)
	writeFile(t, dir, "LANAL_2025010103.nc", minFileSizeBytes)

	store := NewStore(dir, nil)
	if err := store.Rescan(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(store.Times()) != 2 {
		t.Fatalf("Expected 2 indexed hours, got %d", len(store.Times()))
	}

	if err := os.Remove(filepath.Join(dir, "LANAL_2025010103.nc")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	if err := store.Rescan(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(store.Times()) != 1 {
		t.Errorf("Expected 1 indexed hour after rescan, got %d", len(store.Times()))
	}
}

// TestFileTimePattern tests the naming convention matcher.
func TestFileTimePattern(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"LANAL_2025010100.nc", true},
		{"LANAL_2025123123.nc", true},
		{"LANAL_202501010.nc", false},   // Nine digits.
		{"LANAL_20250101000.nc", false}, // Eleven digits.
		{"lanal_2025010100.nc", false},
		{"LANAL_2025010100.nc.tmp", false},
		{"LANAL_2025010100.grib2", false},
	}

	for _, tt := range tests {
		if got := fileTimePattern.MatchString(tt.name); got != tt.want {
			t.Errorf("Match(%q): expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
