package domain

import (
	"math"
)

// earthRadiusM is the spherical Earth radius used by the grid's native projection.
const earthRadiusM = 6371000.0

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// ProjectionParams describes a secant Lambert conformal conic projection bound
// to a grid: two standard parallels, a central meridian, and a false-origin
// reference point with its known (0-based) grid index.
type ProjectionParams struct {
	StandardParallel1 float64 // Degrees north.
	StandardParallel2 float64 // Degrees north.
	CentralMeridian   float64 // Degrees east.

	ReferenceLat float64 // Geographic latitude of the reference point.
	ReferenceLon float64 // Geographic longitude of the reference point.
	ReferenceRow float64 // Grid row of the reference point (rows increase southward).
	ReferenceCol float64 // Grid column of the reference point (columns increase eastward).

	CellSpacingM float64 // Uniform cell spacing in projected meters.
}

// GridMetadata carries the dataset attributes a projection can be derived from.
// Explicit projection attributes, when present, take precedence over estimation.
type GridMetadata struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	Rows, Cols     int
	CellSpacingM   float64

	HasReference bool
	ReferenceLat float64
	ReferenceLon float64
	ReferenceRow float64
	ReferenceCol float64

	// Optional explicit attributes.
	StandardParallel1 *float64
	StandardParallel2 *float64
	CentralMeridian   *float64
}

// Projection converts between geographic coordinates and fractional grid
// indices using the secant Lambert conformal conic formulas on a sphere.
// A Projection is immutable after construction and safe for concurrent use.
type Projection struct {
	params ProjectionParams

	// Derived constants, computed once.
	n    float64 // Cone constant.
	f    float64 // Scale factor.
	xRef float64 // Projected x of the reference point (absolute frame).
	yRef float64 // Projected y of the reference point (absolute frame).
}

// NewProjection derives the cone constant and reference offsets for the given
// parameters. It returns a *ConfigurationError when the parameters cannot form
// a numerically stable cone.
func NewProjection(p ProjectionParams) (*Projection, error) {
	if p.CellSpacingM <= 0 {
		return nil, &ConfigurationError{Reason: "cell spacing must be positive"}
	}

	sp1 := Deg2Rad(p.StandardParallel1)
	sp2 := Deg2Rad(p.StandardParallel2)

	var n float64
	if math.Abs(p.StandardParallel1-p.StandardParallel2) < 1e-10 {
		// Tangent cone degenerate case. The secant form always carries two
		// distinct parallels, so this is a defensive path only.
		n = math.Sin(sp1)
	} else {
		denom := math.Log(math.Tan(math.Pi/4+sp2/2)) - math.Log(math.Tan(math.Pi/4+sp1/2))
		if math.Abs(denom) < 1e-12 {
			return nil, &ConfigurationError{Reason: "standard parallels produce a degenerate cone"}
		}
		n = (math.Log(math.Cos(sp1)) - math.Log(math.Cos(sp2))) / denom
	}
	if math.Abs(n) < 1e-12 {
		return nil, &ConfigurationError{Reason: "cone constant is zero (parallels symmetric about the equator)"}
	}

	f := math.Cos(sp1) * math.Pow(math.Tan(math.Pi/4+sp1/2), n) / n

	proj := &Projection{params: p, n: n, f: f}
	proj.xRef, proj.yRef = proj.project(p.ReferenceLat, p.ReferenceLon)
	return proj, nil
}

// Params returns the parameters the projection was built from.
func (p *Projection) Params() ProjectionParams {
	return p.params
}

// project applies the forward formula, returning coordinates in meters in the
// projection's absolute frame (origin at the cone apex meridian).
func (p *Projection) project(lat, lon float64) (x, y float64) {
	rho := earthRadiusM * p.f / math.Pow(math.Tan(math.Pi/4+Deg2Rad(lat)/2), p.n)
	theta := p.n * Deg2Rad(lon-p.params.CentralMeridian)
	return rho * math.Sin(theta), -rho * math.Cos(theta)
}

// GeoToGrid maps a geographic point to fractional grid indices. Rows increase
// southward and columns eastward from the false-origin reference index.
func (p *Projection) GeoToGrid(lat, lon float64) (row, col float64) {
	x, y := p.project(lat, lon)
	dx := x - p.xRef
	dy := y - p.yRef
	col = p.params.ReferenceCol + dx/p.params.CellSpacingM
	row = p.params.ReferenceRow - dy/p.params.CellSpacingM
	return row, col
}

// GridToGeo is the inverse of GeoToGrid.
func (p *Projection) GridToGeo(row, col float64) (lat, lon float64) {
	x := p.xRef + (col-p.params.ReferenceCol)*p.params.CellSpacingM
	y := p.yRef - (row-p.params.ReferenceRow)*p.params.CellSpacingM

	// In the absolute frame x = rho*sin(theta), y = -rho*cos(theta).
	rho := math.Hypot(x, y)
	if p.n < 0 {
		rho = -rho
	}
	theta := math.Atan2(x, -y)

	lat = Rad2Deg(2*math.Atan(math.Pow(earthRadiusM*p.f/rho, 1/p.n)) - math.Pi/2)
	lon = p.params.CentralMeridian + Rad2Deg(theta/p.n)
	return lat, lon
}

// referenceCheckTolCells bounds how far the projected reference point may land
// from its documented grid index before estimation is considered failed.
const referenceCheckTolCells = 3.0

// EstimateParameters derives projection parameters from grid metadata. Explicit
// standard parallels and central meridian win when present; otherwise the
// parallels follow the one-sixth rule over the latitude extent and the central
// meridian is taken from the reference longitude. The estimate is verified by
// projecting the reference geographic point back onto its grid index.
func EstimateParameters(meta GridMetadata) (ProjectionParams, error) {
	if meta.LatMax <= meta.LatMin || meta.LonMax <= meta.LonMin {
		return ProjectionParams{}, &ConfigurationError{Reason: "grid extent is missing or empty"}
	}
	if meta.CellSpacingM <= 0 {
		return ProjectionParams{}, &ConfigurationError{Reason: "grid resolution is missing"}
	}
	if !meta.HasReference {
		return ProjectionParams{}, &ConfigurationError{Reason: "no reference point bound to a grid index"}
	}

	span := meta.LatMax - meta.LatMin
	params := ProjectionParams{
		StandardParallel1: meta.LatMin + span/6,
		StandardParallel2: meta.LatMax - span/6,
		CentralMeridian:   meta.ReferenceLon,
		ReferenceLat:      meta.ReferenceLat,
		ReferenceLon:      meta.ReferenceLon,
		ReferenceRow:      meta.ReferenceRow,
		ReferenceCol:      meta.ReferenceCol,
		CellSpacingM:      meta.CellSpacingM,
	}
	if meta.StandardParallel1 != nil {
		params.StandardParallel1 = *meta.StandardParallel1
	}
	if meta.StandardParallel2 != nil {
		params.StandardParallel2 = *meta.StandardParallel2
	}
	if meta.CentralMeridian != nil {
		params.CentralMeridian = *meta.CentralMeridian
	}

	proj, err := NewProjection(params)
	if err != nil {
		return ProjectionParams{}, err
	}

	row, col := proj.GeoToGrid(meta.ReferenceLat, meta.ReferenceLon)
	if math.Abs(row-meta.ReferenceRow) > referenceCheckTolCells ||
		math.Abs(col-meta.ReferenceCol) > referenceCheckTolCells {
		return ProjectionParams{}, &ConfigurationError{
			Reason: "estimated parameters do not reproduce the reference grid index",
		}
	}

	return params, nil
}
