package domain

import (
	"fmt"
	"time"
)

// DataType distinguishes surface fields from isobaric (constant-pressure) fields.
type DataType string

const (
	// DataTypeSurface selects near-surface variables.
	DataTypeSurface DataType = "surface"
	// DataTypeIsobaric selects variables on constant-pressure levels.
	DataTypeIsobaric DataType = "isobaric"
)

// ConfigurationError indicates that grid or projection metadata is insufficient
// to derive projection parameters.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("projection configuration: %s", e.Reason)
}

// VariableNotFoundError indicates a logical variable name absent from the
// mapping table for the requested data type.
type VariableNotFoundError struct {
	Name     string
	DataType DataType
}

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable %q not found for data type %q", e.Name, e.DataType)
}

// LevelRequiredError indicates a level-templated variable was resolved without
// a pressure level.
type LevelRequiredError struct {
	Name string
}

func (e *LevelRequiredError) Error() string {
	return fmt.Sprintf("variable %q requires a pressure level", e.Name)
}

// InvalidRequestError indicates a request whose shape fails validation before
// any data is touched.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// OutOfBoundsError indicates a requested point outside the grid's geographic extent.
type OutOfBoundsError struct {
	Lat, Lon float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("point (%.4f, %.4f) is outside the grid extent", e.Lat, e.Lon)
}

// NoPointsInRangeError indicates a radius-mean selection that matched zero grid cells.
type NoPointsInRangeError struct {
	Lat, Lon, RadiusKm float64
}

func (e *NoPointsInRangeError) Error() string {
	return fmt.Sprintf("no grid cells within %.2f km of (%.4f, %.4f)", e.RadiusKm, e.Lat, e.Lon)
}

// InsufficientPointsError indicates a k-neighbor selection requesting more
// cells than the grid holds.
type InsufficientPointsError struct {
	K, Available int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("requested %d neighbors but the grid has only %d cells", e.K, e.Available)
}

// TimeRangeError indicates requested times not covered by the available data.
type TimeRangeError struct {
	Start, End time.Time
}

func (e *TimeRangeError) Error() string {
	return fmt.Sprintf("no data available between %s and %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}
