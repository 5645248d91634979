package spatial

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/meteogrid/lanal-api/internal/domain"
)

// testGrid builds an 11x11 grid of cell centers on a regular 0.1 degree
// lattice covering 34-35 °N, 135-136 °E. One 0.1 degree step is roughly
// 11.1 km meridionally and 9.2 km zonally at this latitude.
func testGrid(t *testing.T) *domain.Grid {
	t.Helper()

	const size = 11
	lat2d := make([][]float64, size)
	lon2d := make([][]float64, size)
	for i := 0; i < size; i++ {
		lat2d[i] = make([]float64, size)
		lon2d[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			lat2d[i][j] = 34.0 + 0.1*float64(i)
			lon2d[i][j] = 135.0 + 0.1*float64(j)
		}
	}

	g, err := domain.NewGrid(lat2d, lon2d)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return g
}

// TestSelector_Nearest tests single-cell selection near a known center.
func TestSelector_Nearest(t *testing.T) {
	s := NewSelector(testGrid(t))

	sel, err := s.Nearest(34.52, 135.48)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if sel.Method != MethodNearest {
		t.Errorf("Method: expected %q, got %q", MethodNearest, sel.Method)
	}
	if len(sel.Cells) != 1 {
		t.Fatalf("Expected exactly 1 cell, got %d", len(sel.Cells))
	}

	c := sel.Cells[0]
	if c.Row != 5 || c.Col != 5 {
		t.Errorf("Cell: expected [5, 5], got [%d, %d]", c.Row, c.Col)
	}
	if math.Abs(c.Weight-1.0) > 1e-9 {
		t.Errorf("Weight: expected 1.0, got %.9f", c.Weight)
	}
	if c.DistanceKm > 4.0 {
		t.Errorf("Distance: expected a few km at most, got %.4f", c.DistanceKm)
	}
}

// TestSelector_Nearest_ExactCenter tests that a target on a cell center
// reports zero distance.
func TestSelector_Nearest_ExactCenter(t *testing.T) {
	s := NewSelector(testGrid(t))

	sel, err := s.Nearest(34.3, 135.7)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c := sel.Cells[0]
	if c.Row != 3 || c.Col != 7 {
		t.Errorf("Cell: expected [3, 7], got [%d, %d]", c.Row, c.Col)
	}
	if c.DistanceKm > 1e-6 {
		t.Errorf("Distance at a cell center: expected ~0, got %.9f km", c.DistanceKm)
	}
}

// TestSelector_MeanRadius tests radius selection with a cut that admits the
// center cell and its four edge neighbors but excludes the diagonals.
func TestSelector_MeanRadius(t *testing.T) {
	s := NewSelector(testGrid(t))

	// Neighbors sit at ~11.1 km (meridional) and ~9.2 km (zonal); the
	// diagonals at ~14.4 km fall outside a 12 km radius.
	sel, err := s.MeanRadius(34.5, 135.5, 12.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if sel.Method != MethodMeanRadius {
		t.Errorf("Method: expected %q, got %q", MethodMeanRadius, sel.Method)
	}
	if len(sel.Cells) != 5 {
		t.Fatalf("Expected 5 cells, got %d", len(sel.Cells))
	}

	// First cell is the center itself.
	if sel.Cells[0].Row != 5 || sel.Cells[0].Col != 5 {
		t.Errorf("Closest cell: expected [5, 5], got [%d, %d]", sel.Cells[0].Row, sel.Cells[0].Col)
	}

	var wsum float64
	for i, c := range sel.Cells {
		wsum += c.Weight
		if math.Abs(c.Weight-0.2) > 1e-9 {
			t.Errorf("Weight of cell %d: expected 0.2, got %.9f", i, c.Weight)
		}
		if c.DistanceKm > 12.0 {
			t.Errorf("Cell %d at %.4f km exceeds the radius", i, c.DistanceKm)
		}
		if i > 0 && c.DistanceKm < sel.Cells[i-1].DistanceKm {
			t.Errorf("Cells not sorted by distance at index %d", i)
		}
	}
	if math.Abs(wsum-1.0) > 1e-9 {
		t.Errorf("Weights sum: expected 1.0, got %.9f", wsum)
	}
}

// TestSelector_MeanRadius_BoundaryCell tests that a cell barely inside the
// radius survives the degree-space pre-filter. The second center sits
// 9.9986 km due north of the target, under a 10 km cut by less than 2 m.
func TestSelector_MeanRadius_BoundaryCell(t *testing.T) {
	lat2d := [][]float64{{34.0, 34.08992}}
	lon2d := [][]float64{{135.0, 135.0}}
	g, err := domain.NewGrid(lat2d, lon2d)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s := NewSelector(g)

	if d := haversineKm(34.0, 135.0, 34.08992, 135.0); d > 10.0 {
		t.Fatalf("Fixture cell at %.6f km is outside the radius", d)
	}

	sel, err := s.MeanRadius(34.0, 135.0, 10.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sel.Cells) != 2 {
		t.Fatalf("Expected 2 cells within 10 km, got %d", len(sel.Cells))
	}
	for i, c := range sel.Cells {
		if math.Abs(c.Weight-0.5) > 1e-9 {
			t.Errorf("Weight of cell %d: expected 0.5, got %.9f", i, c.Weight)
		}
	}
}

// TestSelector_MeanRadius_NoPoints tests the typed error when no cell falls
// inside the radius.
func TestSelector_MeanRadius_NoPoints(t *testing.T) {
	s := NewSelector(testGrid(t))

	// A point between four centers, each ~7 km away.
	_, err := s.MeanRadius(34.55, 135.55, 1.0)
	if err == nil {
		t.Fatalf("Expected error, got nil")
	}

	var noPoints *domain.NoPointsInRangeError
	if !errors.As(err, &noPoints) {
		t.Fatalf("Expected *NoPointsInRangeError, got %T", err)
	}
	if noPoints.RadiusKm != 1.0 {
		t.Errorf("Error radius: expected 1.0, got %.4f", noPoints.RadiusKm)
	}
}

// TestSelector_MeanKNeighbors tests k-neighbor selection ordering and weights.
func TestSelector_MeanKNeighbors(t *testing.T) {
	s := NewSelector(testGrid(t))

	sel, err := s.MeanKNeighbors(34.5, 135.5, 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if sel.Method != MethodMeanKNeighbors {
		t.Errorf("Method: expected %q, got %q", MethodMeanKNeighbors, sel.Method)
	}
	if len(sel.Cells) != 5 {
		t.Fatalf("Expected 5 cells, got %d", len(sel.Cells))
	}
	if sel.Cells[0].Row != 5 || sel.Cells[0].Col != 5 {
		t.Errorf("Closest cell: expected [5, 5], got [%d, %d]", sel.Cells[0].Row, sel.Cells[0].Col)
	}

	var wsum float64
	for i, c := range sel.Cells {
		wsum += c.Weight
		if i > 0 && c.DistanceKm < sel.Cells[i-1].DistanceKm {
			t.Errorf("Cells not sorted by distance at index %d", i)
		}
	}
	if math.Abs(wsum-1.0) > 1e-9 {
		t.Errorf("Weights sum: expected 1.0, got %.9f", wsum)
	}
}

// TestSelector_MeanKNeighbors_HighLatitude tests k-neighbor selection against
// a brute-force ranking at 60 °N, where the degree metric is twice as wide
// zonally as meridionally.
func TestSelector_MeanKNeighbors_HighLatitude(t *testing.T) {
	const size = 15
	lat2d := make([][]float64, size)
	lon2d := make([][]float64, size)
	for i := 0; i < size; i++ {
		lat2d[i] = make([]float64, size)
		lon2d[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			lat2d[i][j] = 59.3 + 0.1*float64(i)
			lon2d[i][j] = 10.0 + 0.1*float64(j)
		}
	}
	g, err := domain.NewGrid(lat2d, lon2d)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s := NewSelector(g)

	const lat, lon = 60.0, 10.7
	const k = 9
	sel, err := s.MeanKNeighbors(lat, lon, k)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sel.Cells) != k {
		t.Fatalf("Expected %d cells, got %d", k, len(sel.Cells))
	}

	var all []float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			cellLat, cellLon := g.CellGeo(i, j)
			all = append(all, haversineKm(lat, lon, cellLat, cellLon))
		}
	}
	sort.Float64s(all)

	for i, c := range sel.Cells {
		if math.Abs(c.DistanceKm-all[i]) > 1e-9 {
			t.Errorf("Neighbor %d: expected %.9f km, got %.9f km", i, all[i], c.DistanceKm)
		}
	}
}

// TestSelector_MeanKNeighbors_TooMany tests the typed error when k exceeds the
// grid's cell count.
func TestSelector_MeanKNeighbors_TooMany(t *testing.T) {
	s := NewSelector(testGrid(t))

	_, err := s.MeanKNeighbors(34.5, 135.5, 200)
	if err == nil {
		t.Fatalf("Expected error, got nil")
	}

	var insufficient *domain.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected *InsufficientPointsError, got %T", err)
	}
	if insufficient.K != 200 || insufficient.Available != 121 {
		t.Errorf("Error fields: expected K=200 Available=121, got K=%d Available=%d",
			insufficient.K, insufficient.Available)
	}
}

// TestHaversineKm tests the great-circle distance against a known pair.
func TestHaversineKm(t *testing.T) {
	// Tokyo to Osaka is roughly 400 km.
	d := haversineKm(35.6895, 139.6917, 34.6937, 135.5023)
	if d < 390 || d > 410 {
		t.Errorf("Tokyo-Osaka: expected ~400 km, got %.2f", d)
	}

	if d := haversineKm(34.5, 135.5, 34.5, 135.5); d > 1e-9 {
		t.Errorf("Identical points: expected 0, got %.12f", d)
	}

	// One degree of latitude is ~111.2 km anywhere.
	d = haversineKm(34.0, 135.0, 35.0, 135.0)
	if math.Abs(d-111.2) > 1.0 {
		t.Errorf("One degree meridional: expected ~111.2 km, got %.4f", d)
	}
}
