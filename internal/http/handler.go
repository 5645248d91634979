package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meteogrid/lanal-api/internal/adapter/spatial"
	"github.com/meteogrid/lanal-api/internal/adapter/store/lanal"
	"github.com/meteogrid/lanal-api/internal/adapter/varmap"
	"github.com/meteogrid/lanal-api/internal/domain"
	"github.com/meteogrid/lanal-api/internal/usecase"
)

// ExtractService runs extraction requests. Satisfied by *usecase.Extractor.
type ExtractService interface {
	Extract(ctx context.Context, req usecase.Request) ([]usecase.Row, error)
}

// candidateLevels are the pressure levels probed against the dataset for the
// levels endpoint.
var candidateLevels = []int{1000, 975, 950, 925, 900, 850, 800, 700, 600, 500, 400, 300, 250, 200, 150, 100}

// Handler handles HTTP requests for point extraction.
type Handler struct {
	extractor ExtractService
	vars      *varmap.Table
	selector  *spatial.Selector
	source    usecase.DataSource
}

// NewHandler creates a new HTTP handler.
func NewHandler(extractor ExtractService, vars *varmap.Table, selector *spatial.Selector, source usecase.DataSource) *Handler {
	return &Handler{
		extractor: extractor,
		vars:      vars,
		selector:  selector,
		source:    source,
	}
}

// extractRequest is the JSON body for POST /v1/extract.
type extractRequest struct {
	Lat        *float64 `json:"lat" binding:"required"`
	Lon        *float64 `json:"lon" binding:"required"`
	Time       string   `json:"time"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	DataType   string   `json:"data_type" binding:"required,oneof=surface isobaric"`
	Levels     []int    `json:"levels"`
	Variables  []string `json:"variables"`
	Method     string   `json:"method"`
	RadiusKm   float64  `json:"radius_km"`
	KNeighbors int      `json:"k_neighbors"`
}

// Extract handles POST /v1/extract.
func (h *Handler) Extract(c *gin.Context) {
	var body extractRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	req := usecase.Request{
		Lat:        *body.Lat,
		Lon:        *body.Lon,
		DataType:   domain.DataType(body.DataType),
		Levels:     body.Levels,
		Variables:  body.Variables,
		Method:     body.Method,
		RadiusKm:   body.RadiusKm,
		KNeighbors: body.KNeighbors,
	}
	if req.Method == "" {
		req.Method = spatial.MethodNearest
	}

	if body.Time != "" {
		t, err := parseTimeJST(body.Time)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid time: %v", err)})
			return
		}
		req.Time = &t
	}
	if body.Start != "" {
		t, err := parseTimeJST(body.Start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid start time: %v", err)})
			return
		}
		req.Start = &t
	}
	if body.End != "" {
		t, err := parseTimeJST(body.End)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid end time: %v", err)})
			return
		}
		req.End = &t
	}

	rows, err := h.extractor.Extract(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rows":  rows,
		"count": len(rows),
	})
}

// Variables handles GET /v1/variables?type=surface|isobaric&level=500.
func (h *Handler) Variables(c *gin.Context) {
	dt := domain.DataType(c.DefaultQuery("type", string(domain.DataTypeSurface)))
	if dt != domain.DataTypeSurface && dt != domain.DataTypeIsobaric {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown data type %q", dt)})
		return
	}

	var level *int
	if dt == domain.DataTypeIsobaric {
		lv := 500 // Representative probe level for templated identifiers.
		if s := c.Query("level"); s != "" {
			parsed, err := strconv.Atoi(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid level: %v", err)})
				return
			}
			lv = parsed
		}
		level = &lv
	}

	available := h.vars.Available(dt, level, h.source.HasVariable)
	c.JSON(http.StatusOK, gin.H{
		"data_type":  dt,
		"configured": h.vars.Names(dt),
		"available":  available,
	})
}

// Levels handles GET /v1/levels, probing which pressure levels the dataset carries.
func (h *Handler) Levels(c *gin.Context) {
	var levels []int
	for _, lv := range candidateLevels {
		lvCopy := lv
		physical, _, err := h.vars.Resolve(usecase.VarAirTemperature, domain.DataTypeIsobaric, &lvCopy)
		if err != nil {
			continue
		}
		if h.source.HasVariable(physical) {
			levels = append(levels, lv)
		}
	}
	c.JSON(http.StatusOK, gin.H{"levels_hPa": levels})
}

// NearbyGridPoints handles GET /v1/grid/nearby?lat=&lon=&radius_km=&limit=.
// It exposes the cells a radius selection would use, for auditing and map display.
func (h *Handler) NearbyGridPoints(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
		return
	}

	radiusKm := 10.0
	if s := c.Query("radius_km"); s != "" {
		if radiusKm, err = strconv.ParseFloat(s, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid radius_km: %v", err)})
			return
		}
	}
	if radiusKm <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be positive"})
		return
	}
	limit := 20
	if s := c.Query("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit: %v", err)})
			return
		}
	}
	if limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must not be negative"})
		return
	}

	sel, err := h.selector.MeanRadius(lat, lon, radiusKm)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	cells := sel.Cells
	if len(cells) > limit {
		cells = cells[:limit]
	}

	type cellInfo struct {
		Lat        float64 `json:"lat"`
		Lon        float64 `json:"lon"`
		Row        int     `json:"grid_i"`
		Col        int     `json:"grid_j"`
		DistanceKm float64 `json:"distance_km"`
		Weight     float64 `json:"weight"`
	}
	out := make([]cellInfo, len(cells))
	for i, cell := range cells {
		out[i] = cellInfo{
			Lat: cell.Lat, Lon: cell.Lon,
			Row: cell.Row, Col: cell.Col,
			DistanceKm: cell.DistanceKm, Weight: cell.Weight,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"points": out,
		"total":  len(sel.Cells),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().In(lanal.JST).Format(time.RFC3339),
	})
}

// statusFor maps the typed extraction errors onto HTTP status codes.
// Unclassified errors are server-side faults (I/O, cancelled contexts),
// never the caller's mistake.
func statusFor(err error) int {
	var (
		reqErr      *domain.InvalidRequestError
		confErr     *domain.ConfigurationError
		varErr      *domain.VariableNotFoundError
		levelErr    *domain.LevelRequiredError
		boundsErr   *domain.OutOfBoundsError
		noPointsErr *domain.NoPointsInRangeError
		kErr        *domain.InsufficientPointsError
		timeErr     *domain.TimeRangeError
	)
	switch {
	case errors.As(err, &boundsErr), errors.As(err, &timeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &noPointsErr), errors.As(err, &varErr):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.As(err, &levelErr), errors.As(err, &kErr):
		return http.StatusBadRequest
	case errors.As(err, &confErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// parseTimeJST parses an RFC3339 timestamp, or a zone-less ISO timestamp
// interpreted as JST.
func parseTimeJST(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(lanal.JST), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, lanal.JST)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DDTHH:MM:SS: %w", err)
	}
	return t, nil
}
