package domain

import (
	"fmt"

	"github.com/ctessum/geom"
)

// Grid is an immutable rectangular array of cell centers with geographic
// coordinates. It is built once from the dataset's coordinate arrays and
// shared read-only across concurrent requests.
type Grid struct {
	rows, cols int
	lat, lon   []float64 // Row-major cell center coordinates.
	extent     *geom.Bounds
}

// NewGrid builds a grid from 2-D latitude and longitude coordinate arrays.
func NewGrid(lat2d, lon2d [][]float64) (*Grid, error) {
	if len(lat2d) == 0 || len(lat2d[0]) == 0 {
		return nil, fmt.Errorf("empty coordinate arrays")
	}
	if len(lat2d) != len(lon2d) {
		return nil, fmt.Errorf("latitude has %d rows, longitude has %d", len(lat2d), len(lon2d))
	}

	rows := len(lat2d)
	cols := len(lat2d[0])
	g := &Grid{
		rows:   rows,
		cols:   cols,
		lat:    make([]float64, rows*cols),
		lon:    make([]float64, rows*cols),
		extent: geom.NewBounds(),
	}

	for i := 0; i < rows; i++ {
		if len(lat2d[i]) != cols || len(lon2d[i]) != cols {
			return nil, fmt.Errorf("row %d has ragged coordinate arrays", i)
		}
		for j := 0; j < cols; j++ {
			k := i*cols + j
			g.lat[k] = lat2d[i][j]
			g.lon[k] = lon2d[i][j]
			g.extent.Extend(geom.Point{X: lon2d[i][j], Y: lat2d[i][j]}.Bounds())
		}
	}

	return g, nil
}

// Dims returns the number of rows and columns.
func (g *Grid) Dims() (rows, cols int) {
	return g.rows, g.cols
}

// NumCells returns the total cell count.
func (g *Grid) NumCells() int {
	return g.rows * g.cols
}

// CellGeo returns the geographic coordinates of the cell at (row, col).
func (g *Grid) CellGeo(row, col int) (lat, lon float64) {
	k := row*g.cols + col
	return g.lat[k], g.lon[k]
}

// Extent returns the geographic bounding box of all cell centers.
func (g *Grid) Extent() *geom.Bounds {
	return g.extent
}

// Contains reports whether a geographic point falls inside the grid's extent.
func (g *Grid) Contains(lat, lon float64) bool {
	return lon >= g.extent.Min.X && lon <= g.extent.Max.X &&
		lat >= g.extent.Min.Y && lat <= g.extent.Max.Y
}
