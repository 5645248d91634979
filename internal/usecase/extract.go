// Package usecase orchestrates point extraction from gridded forecast output.
package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/meteogrid/lanal-api/internal/adapter/spatial"
	"github.com/meteogrid/lanal-api/internal/adapter/varmap"
	"github.com/meteogrid/lanal-api/internal/domain"
)

// Logical variable names accepted in requests.
const (
	VarAirTemperature     = "air_temperature"
	VarRelativeHumidity   = "relative_humidity"
	VarUWind              = "u_wind"
	VarVWind              = "v_wind"
	VarSurfacePressure    = "surface_pressure"
	VarGeopotentialHeight = "geopotential_height"
	VarWindSpeed          = "wind_speed"
	VarWindDirection      = "wind_direction"
)

// DataSource supplies raw values and time coverage. The LANAL NetCDF store
// implements it; tests use an in-memory fake.
type DataSource interface {
	// Times returns the available forecast hours sorted ascending.
	Times() []time.Time
	// HasVariable reports whether a physical variable is present.
	HasVariable(name string) bool
	// ValuesAt reads one physical variable at the given cells for one
	// forecast hour.
	ValuesAt(ctx context.Context, name string, t time.Time, rows, cols []int) ([]float64, error)
}

// Request describes one extraction: a geographic point, a time instant or
// inclusive range, the data type with its levels, the variables wanted, and
// the cell selection strategy.
type Request struct {
	Lat float64
	Lon float64

	// Time selects a single instant; Start/End select an inclusive range.
	// Exactly one of the two forms must be set.
	Time  *time.Time
	Start *time.Time
	End   *time.Time

	DataType domain.DataType
	Levels   []int // Required for isobaric requests.

	// Variables lists logical names; empty means every configured variable
	// plus derived wind speed and direction.
	Variables []string

	Method     string  // nearest | mean_radius | mean_k_neighbors.
	RadiusKm   float64 // For mean_radius.
	KNeighbors int     // For mean_k_neighbors.
}

// Validate checks the request's shape. Coverage and bounds checks need the
// grid and dataset and happen inside Extract.
func (r *Request) Validate() error {
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}

	hasInstant := r.Time != nil
	hasRange := r.Start != nil && r.End != nil
	if hasInstant == hasRange {
		return fmt.Errorf("either a single time or a start/end range must be provided")
	}
	if hasRange && r.End.Before(*r.Start) {
		return fmt.Errorf("end time must not precede start time")
	}

	switch r.DataType {
	case domain.DataTypeSurface:
		if len(r.Levels) > 0 {
			return fmt.Errorf("levels are only valid for isobaric requests")
		}
	case domain.DataTypeIsobaric:
		if len(r.Levels) == 0 {
			return fmt.Errorf("isobaric requests require at least one pressure level")
		}
		for _, lv := range r.Levels {
			if lv <= 0 {
				return fmt.Errorf("pressure level must be positive, got %d", lv)
			}
		}
	default:
		return fmt.Errorf("unknown data type %q", r.DataType)
	}

	switch r.Method {
	case spatial.MethodNearest:
	case spatial.MethodMeanRadius:
		if r.RadiusKm <= 0 {
			return fmt.Errorf("method %s requires a positive radius_km", r.Method)
		}
	case spatial.MethodMeanKNeighbors:
		if r.KNeighbors <= 0 {
			return fmt.Errorf("method %s requires a positive k_neighbors", r.Method)
		}
	default:
		return fmt.Errorf("unknown selection method %q", r.Method)
	}

	return nil
}

// Row is one immutable extraction result for a (time, level) combination.
// Optional columns are nil when the variable was not requested.
type Row struct {
	Time     time.Time `json:"time"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	LevelHPa *int      `json:"level_hPa,omitempty"`
	Method   string    `json:"method"`
	NPoints  int       `json:"n_points"`

	AirTemperatureC       *float64 `json:"air_temperature_C,omitempty"`
	RelativeHumidityPct   *float64 `json:"relative_humidity_pct,omitempty"`
	WindUMs               *float64 `json:"wind_u_ms,omitempty"`
	WindVMs               *float64 `json:"wind_v_ms,omitempty"`
	PressureHPa           *float64 `json:"pressure_hPa,omitempty"`
	GeopotentialHeightGpm *float64 `json:"geopotential_height_gpm,omitempty"`
	WindSpeedMs           *float64 `json:"wind_speed_ms,omitempty"`
	WindDirectionDeg      *float64 `json:"wind_direction_deg,omitempty"`
}

// Extractor runs the extraction pipeline: validate, resolve variables, select
// cells, fetch and aggregate, convert units, assemble rows. All collaborators
// are immutable after construction, so one Extractor serves concurrent
// requests without locking.
type Extractor struct {
	grid     *domain.Grid
	proj     *domain.Projection
	selector *spatial.Selector
	vars     *varmap.Table
	source   DataSource
	log      logrus.FieldLogger
}

// NewExtractor wires the pipeline's collaborators.
func NewExtractor(grid *domain.Grid, proj *domain.Projection, selector *spatial.Selector,
	vars *varmap.Table, source DataSource, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{
		grid:     grid,
		proj:     proj,
		selector: selector,
		vars:     vars,
		source:   source,
		log:      log.WithField("component", "extractor"),
	}
}

// resolvedVar is one (logical, physical) pair of the up-front cross-product.
type resolvedVar struct {
	logical  string
	physical string
	unit     domain.Unit
}

// Extract runs one request through the pipeline. A failure at any stage
// aborts the whole request with a typed error; no partial rows are returned.
func (e *Extractor) Extract(ctx context.Context, req Request) ([]Row, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.InvalidRequestError{Reason: err.Error()}
	}

	// VALIDATE: point inside the grid extent, both geographically and in
	// fractional grid-index space.
	if !e.grid.Contains(req.Lat, req.Lon) {
		return nil, &domain.OutOfBoundsError{Lat: req.Lat, Lon: req.Lon}
	}
	rows, cols := e.grid.Dims()
	if fr, fc := e.proj.GeoToGrid(req.Lat, req.Lon); fr < -0.5 || fr > float64(rows)-0.5 ||
		fc < -0.5 || fc > float64(cols)-0.5 {
		return nil, &domain.OutOfBoundsError{Lat: req.Lat, Lon: req.Lon}
	}

	// VALIDATE: requested times covered by the dataset.
	times, err := e.selectTimes(req)
	if err != nil {
		return nil, err
	}

	// RESOLVE_VARIABLES: generate the full variables x levels cross-product
	// up front. One unresolved name aborts the request; columns are never
	// silently dropped.
	logical := requestedVariables(req)
	byLevel, err := e.resolveAll(logical, req)
	if err != nil {
		return nil, err
	}

	// SELECT_POINTS: selection is independent of time and level, computed
	// once and reused.
	sel, err := e.selectCells(req)
	if err != nil {
		return nil, err
	}
	cellRows := make([]int, len(sel.Cells))
	cellCols := make([]int, len(sel.Cells))
	for i, c := range sel.Cells {
		cellRows[i] = c.Row
		cellCols[i] = c.Col
	}
	weights := sel.Weights()

	e.log.WithFields(logrus.Fields{
		"lat": req.Lat, "lon": req.Lon,
		"method": sel.Method, "n_points": len(sel.Cells),
		"times": len(times), "levels": len(req.Levels),
	}).Debug("extraction plan ready")

	// FETCH+AGGREGATE, CONVERT_UNITS, ASSEMBLE.
	levels := req.Levels
	if req.DataType == domain.DataTypeSurface {
		levels = []int{0} // Single pseudo-level; LevelHPa stays nil.
	}

	out := make([]Row, 0, len(times)*len(levels))
	for _, t := range times {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, lv := range levels {
			row := Row{
				Time:    t,
				Lat:     req.Lat,
				Lon:     req.Lon,
				Method:  sel.Method,
				NPoints: len(sel.Cells),
			}
			if req.DataType == domain.DataTypeIsobaric {
				lvCopy := lv
				row.LevelHPa = &lvCopy
			}

			values := make(map[string]float64)
			for _, rv := range byLevel[lv] {
				raw, err := e.source.ValuesAt(ctx, rv.physical, t, cellRows, cellCols)
				if err != nil {
					return nil, err
				}
				agg, ok := weightedValue(raw, weights)
				if !ok {
					continue // All contributing cells were fill values.
				}
				values[rv.logical] = domain.ConvertToOutput(agg, rv.unit)
			}

			assignColumns(&row, values, logical)
			out = append(out, row)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return levelOf(out[i]) < levelOf(out[j])
	})
	return out, nil
}

// selectTimes resolves the request's instant or range against the dataset's
// available hours.
func (e *Extractor) selectTimes(req Request) ([]time.Time, error) {
	available := e.source.Times()
	if len(available) == 0 {
		return nil, &domain.TimeRangeError{}
	}

	if req.Time != nil {
		t := *req.Time
		if t.Before(available[0]) || t.After(available[len(available)-1]) {
			return nil, &domain.TimeRangeError{Start: t, End: t}
		}
		// Snap to the closest available hour.
		best := available[0]
		for _, a := range available[1:] {
			if absDuration(a.Sub(t)) < absDuration(best.Sub(t)) {
				best = a
			}
		}
		return []time.Time{best}, nil
	}

	var times []time.Time
	for _, a := range available {
		if !a.Before(*req.Start) && !a.After(*req.End) {
			times = append(times, a)
		}
	}
	if len(times) == 0 {
		return nil, &domain.TimeRangeError{Start: *req.Start, End: *req.End}
	}
	return times, nil
}

// selectCells applies the request's selection strategy.
func (e *Extractor) selectCells(req Request) (spatial.Selection, error) {
	switch req.Method {
	case spatial.MethodMeanRadius:
		return e.selector.MeanRadius(req.Lat, req.Lon, req.RadiusKm)
	case spatial.MethodMeanKNeighbors:
		return e.selector.MeanKNeighbors(req.Lat, req.Lon, req.KNeighbors)
	default:
		return e.selector.Nearest(req.Lat, req.Lon)
	}
}

// requestedVariables expands the request's variable list: empty means every
// configured variable plus derived wind, and derived wind pulls in the u/v
// components it is computed from.
func requestedVariables(req Request) map[string]bool {
	logical := make(map[string]bool)
	if len(req.Variables) == 0 {
		switch req.DataType {
		case domain.DataTypeSurface:
			for _, v := range []string{VarAirTemperature, VarRelativeHumidity,
				VarUWind, VarVWind, VarSurfacePressure} {
				logical[v] = true
			}
		case domain.DataTypeIsobaric:
			for _, v := range []string{VarAirTemperature, VarRelativeHumidity,
				VarUWind, VarVWind, VarGeopotentialHeight} {
				logical[v] = true
			}
		}
		logical[VarWindSpeed] = true
		logical[VarWindDirection] = true
	} else {
		for _, v := range req.Variables {
			logical[v] = true
		}
	}

	if logical[VarWindSpeed] || logical[VarWindDirection] {
		logical[VarUWind] = true
		logical[VarVWind] = true
	}
	return logical
}

// resolveAll maps every requested logical variable, crossed with every level
// for isobaric data, through the mapping table.
func (e *Extractor) resolveAll(logical map[string]bool, req Request) (map[int][]resolvedVar, error) {
	levels := req.Levels
	if req.DataType == domain.DataTypeSurface {
		levels = []int{0}
	}

	names := make([]string, 0, len(logical))
	for name := range logical {
		if name == VarWindSpeed || name == VarWindDirection {
			continue // Derived after aggregation, not fetched.
		}
		names = append(names, name)
	}
	sort.Strings(names)

	byLevel := make(map[int][]resolvedVar, len(levels))
	for _, lv := range levels {
		var levelPtr *int
		if req.DataType == domain.DataTypeIsobaric {
			lvCopy := lv
			levelPtr = &lvCopy
		}
		for _, name := range names {
			physical, unit, err := e.vars.Resolve(name, req.DataType, levelPtr)
			if err != nil {
				return nil, err
			}
			if !e.source.HasVariable(physical) {
				return nil, &domain.VariableNotFoundError{Name: name, DataType: req.DataType}
			}
			byLevel[lv] = append(byLevel[lv], resolvedVar{logical: name, physical: physical, unit: unit})
		}
	}
	return byLevel, nil
}

// weightedValue computes the weighted linear combination of the raw values,
// dropping NaN cells and renormalizing the remaining weights. The second
// return is false when no cell held a valid value.
func weightedValue(values, weights []float64) (float64, bool) {
	clean := true
	for _, v := range values {
		if math.IsNaN(v) {
			clean = false
			break
		}
	}
	if clean {
		return floats.Dot(values, weights), true
	}

	var sum, wsum float64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

// assignColumns copies aggregated values into the row's typed columns and
// derives wind speed/direction from the aggregated components.
func assignColumns(row *Row, values map[string]float64, requested map[string]bool) {
	set := func(name string, dst **float64) {
		if v, ok := values[name]; ok && requested[name] {
			vCopy := v
			*dst = &vCopy
		}
	}
	set(VarAirTemperature, &row.AirTemperatureC)
	set(VarRelativeHumidity, &row.RelativeHumidityPct)
	set(VarUWind, &row.WindUMs)
	set(VarVWind, &row.WindVMs)
	set(VarSurfacePressure, &row.PressureHPa)
	set(VarGeopotentialHeight, &row.GeopotentialHeightGpm)

	u, uOK := values[VarUWind]
	v, vOK := values[VarVWind]
	if uOK && vOK {
		if requested[VarWindSpeed] {
			speed := domain.WindSpeed(u, v)
			row.WindSpeedMs = &speed
		}
		if requested[VarWindDirection] {
			dir := domain.WindDirection(u, v)
			row.WindDirectionDeg = &dir
		}
	}
}

func levelOf(r Row) int {
	if r.LevelHPa == nil {
		return 0
	}
	return *r.LevelHPa
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
