// Package spatial selects the grid cells contributing to a target point.
package spatial

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/meteogrid/lanal-api/internal/domain"
)

// Selection method names, recorded on extraction rows.
const (
	MethodNearest        = "nearest"
	MethodMeanRadius     = "mean_radius"
	MethodMeanKNeighbors = "mean_k_neighbors"
)

// SelectedCell is one grid cell contributing to a target point.
type SelectedCell struct {
	Row, Col   int
	Lat, Lon   float64
	DistanceKm float64
	Weight     float64
}

// Selection is the ordered set of cells a strategy picked for one target
// point, sorted by non-decreasing distance. For averaging strategies the
// weights sum to 1; for nearest there is exactly one cell with weight 1.
type Selection struct {
	Method string
	Cells  []SelectedCell
}

// Weights returns the cell weights in selection order.
func (s Selection) Weights() []float64 {
	w := make([]float64, len(s.Cells))
	for i, c := range s.Cells {
		w[i] = c.Weight
	}
	return w
}

// cellEntry is a grid cell center stored in the R-tree. The embedded point is
// in lon/lat degree space.
type cellEntry struct {
	geom.Point
	row, col int
}

// Selector answers nearest, radius-mean and k-neighbor queries over all grid
// cell centers. The index is built once in lon/lat degree space; all reported
// distances and the radius cut are great-circle kilometers, with the degree
// index only pre-filtering candidates. Queries are read-only and safe for
// concurrent use.
type Selector struct {
	grid *domain.Grid
	tree *rtree.Rtree
}

// kmPerDegreeLat converts a kilometer radius into a degree-space search
// window. It deliberately undershoots the meridional degree length on the
// haversine sphere (111.195 km) so the window never clips the radius; the
// exact haversine cut stays the only filter.
const kmPerDegreeLat = 110.5

// NewSelector indexes every cell center of the grid.
func NewSelector(grid *domain.Grid) *Selector {
	tree := rtree.NewTree(25, 50)
	rows, cols := grid.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			lat, lon := grid.CellGeo(i, j)
			tree.Insert(&cellEntry{Point: geom.Point{X: lon, Y: lat}, row: i, col: j})
		}
	}
	return &Selector{grid: grid, tree: tree}
}

// Nearest returns the single cell minimizing great-circle distance to the
// target. The degree-space index can mis-order near-ties far from the
// projection's standard parallels, so candidates are over-fetched and
// re-ranked by kilometers.
func (s *Selector) Nearest(lat, lon float64) (Selection, error) {
	cells := s.nearestByKm(lat, lon, 1)
	cells[0].Weight = 1.0
	return Selection{Method: MethodNearest, Cells: cells}, nil
}

// MeanRadius returns every cell within radiusKm of the target, each weighted
// 1/count. It fails with *domain.NoPointsInRangeError when no cell qualifies;
// widening the radius is the caller's decision.
func (s *Selector) MeanRadius(lat, lon, radiusKm float64) (Selection, error) {
	// Longitude degrees shrink poleward, so the window width uses the
	// poleward edge of the box, not the target latitude.
	dLat := radiusKm / kmPerDegreeLat
	dLon := 180.0
	if edge := math.Abs(lat) + dLat; edge < 89.0 {
		dLon = dLat / math.Cos(domain.Deg2Rad(edge))
	}

	box := &geom.Bounds{
		Min: geom.Point{X: lon - dLon, Y: lat - dLat},
		Max: geom.Point{X: lon + dLon, Y: lat + dLat},
	}

	var cells []SelectedCell
	for _, item := range s.tree.SearchIntersect(box) {
		e := item.(*cellEntry)
		d := haversineKm(lat, lon, e.Y, e.X)
		if d <= radiusKm {
			cells = append(cells, SelectedCell{
				Row: e.row, Col: e.col,
				Lat: e.Y, Lon: e.X,
				DistanceKm: d,
			})
		}
	}
	if len(cells) == 0 {
		return Selection{}, &domain.NoPointsInRangeError{Lat: lat, Lon: lon, RadiusKm: radiusKm}
	}

	sort.Slice(cells, func(i, j int) bool { return cells[i].DistanceKm < cells[j].DistanceKm })
	w := 1.0 / float64(len(cells))
	for i := range cells {
		cells[i].Weight = w
	}
	return Selection{Method: MethodMeanRadius, Cells: cells}, nil
}

// MeanKNeighbors returns the k nearest cells by great-circle distance, each
// weighted 1/k, sorted by non-decreasing distance.
func (s *Selector) MeanKNeighbors(lat, lon float64, k int) (Selection, error) {
	if k > s.grid.NumCells() {
		return Selection{}, &domain.InsufficientPointsError{K: k, Available: s.grid.NumCells()}
	}
	cells := s.nearestByKm(lat, lon, k)
	w := 1.0 / float64(k)
	for i := range cells {
		cells[i].Weight = w
	}
	return Selection{Method: MethodMeanKNeighbors, Cells: cells}, nil
}

// nearestByKm fetches extra candidates from the degree-space index, ranks them
// by great-circle distance, and keeps the first k. The degree metric
// compresses longitudes by cos(lat), so a km-disk of k cells can span up to
// k/cos(lat) cells of the index's degree-disk; the over-fetch widens by the
// same factor.
func (s *Selector) nearestByKm(lat, lon float64, k int) []SelectedCell {
	anisotropy := 1.0e3
	if cosLat := math.Cos(domain.Deg2Rad(lat)); cosLat > 1e-3 {
		anisotropy = 1.0 / cosLat
	}
	fetch := int(2.0*float64(k)*anisotropy) + 8
	if n := s.grid.NumCells(); fetch > n {
		fetch = n
	}

	candidates := s.tree.NearestNeighbors(fetch, geom.Point{X: lon, Y: lat})
	cells := make([]SelectedCell, 0, len(candidates))
	for _, item := range candidates {
		e := item.(*cellEntry)
		cells = append(cells, SelectedCell{
			Row: e.row, Col: e.col,
			Lat: e.Y, Lon: e.X,
			DistanceKm: haversineKm(lat, lon, e.Y, e.X),
		})
	}

	sort.Slice(cells, func(i, j int) bool { return cells[i].DistanceKm < cells[j].DistanceKm })
	return cells[:k]
}

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// haversineKm computes the great-circle distance between two geographic
// points in kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := domain.Deg2Rad(lat2 - lat1)
	dLon := domain.Deg2Rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(domain.Deg2Rad(lat1))*math.Cos(domain.Deg2Rad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
