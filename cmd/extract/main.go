// Package main provides the command-line extraction tool.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meteogrid/lanal-api/internal/adapter/spatial"
	"github.com/meteogrid/lanal-api/internal/adapter/store/lanal"
	"github.com/meteogrid/lanal-api/internal/adapter/varmap"
	"github.com/meteogrid/lanal-api/internal/domain"
	"github.com/meteogrid/lanal-api/internal/usecase"
)

var log = logrus.New()

var (
	flagLat       float64
	flagLon       float64
	flagTime      string
	flagTimeStart string
	flagTimeEnd   string
	flagSurface   bool
	flagIsobaric  bool
	flagLevels    []int
	flagMethod    string
	flagRadiusKm  float64
	flagNeighbors int
	flagOut       string
	flagFormat    string
	flagDataDir   string
	flagConfig    string
	flagDryRun    bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract point values from LANAL forecast output",
	Long: `Extract point/time-series meteorological values from LANAL NetCDF
forecast output: project the target point onto the native grid, select
the contributing cells, aggregate, convert units, and write CSV rows.`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			log.SetLevel(logrus.DebugLevel)
		}
		if !flagSurface && !flagIsobaric {
			return fmt.Errorf("at least one of --surface and --isobaric is required")
		}
		if flagIsobaric && len(flagLevels) == 0 {
			return fmt.Errorf("--isobaric requires --levels")
		}
		if (flagTimeStart == "") != (flagTimeEnd == "") {
			return fmt.Errorf("--time-start and --time-end must be given together")
		}
		if flagTime == "" && flagTimeStart == "" {
			return fmt.Errorf("either --time or --time-start/--time-end is required")
		}
		if flagFormat != "csv" && flagFormat != "json" {
			return fmt.Errorf("unknown output format %q (csv, json)", flagFormat)
		}
		return nil
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().Float64Var(&flagLat, "lat", 0, "target latitude (degrees north)")
	rootCmd.Flags().Float64Var(&flagLon, "lon", 0, "target longitude (degrees east)")
	rootCmd.Flags().StringVar(&flagTime, "time", "", "single time (ISO8601, JST when zone-less)")
	rootCmd.Flags().StringVar(&flagTimeStart, "time-start", "", "range start (ISO8601)")
	rootCmd.Flags().StringVar(&flagTimeEnd, "time-end", "", "range end (ISO8601, inclusive)")
	rootCmd.Flags().BoolVar(&flagSurface, "surface", false, "extract surface variables")
	rootCmd.Flags().BoolVar(&flagIsobaric, "isobaric", false, "extract isobaric variables")
	rootCmd.Flags().IntSliceVar(&flagLevels, "levels", nil, "pressure levels in hPa")
	rootCmd.Flags().StringVar(&flagMethod, "method", spatial.MethodNearest,
		"cell selection method: nearest, mean_radius, mean_k_neighbors")
	rootCmd.Flags().Float64Var(&flagRadiusKm, "radius-km", 0, "averaging radius for mean_radius")
	rootCmd.Flags().IntVar(&flagNeighbors, "k-neighbors", 0, "neighbor count for mean_k_neighbors")
	rootCmd.Flags().StringVar(&flagOut, "out", "", "output path (default: out_<type>.<format>)")
	rootCmd.Flags().StringVar(&flagFormat, "format", "csv", "output format: csv or json")
	rootCmd.Flags().StringVar(&flagDataDir, "data-dir", "./data", "NetCDF data directory")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "variable mapping YAML (default: built-in)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report variable resolution and exit")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	_ = rootCmd.MarkFlagRequired("lat")
	_ = rootCmd.MarkFlagRequired("lon")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	store := lanal.NewStore(flagDataDir, log)
	if err := store.Rescan(); err != nil {
		return err
	}

	vars := varmap.Default()
	if flagConfig != "" {
		var err error
		if vars, err = varmap.Load(flagConfig); err != nil {
			return err
		}
	}

	if flagDryRun {
		return dryRun(store, vars)
	}

	lat2d, lon2d, err := store.Coordinates()
	if err != nil {
		return err
	}
	grid, err := domain.NewGrid(lat2d, lon2d)
	if err != nil {
		return err
	}
	meta, err := store.Metadata()
	if err != nil {
		return err
	}
	params, err := domain.EstimateParameters(meta)
	if err != nil {
		return err
	}
	proj, err := domain.NewProjection(params)
	if err != nil {
		return err
	}

	selector := spatial.NewSelector(grid)
	extractor := usecase.NewExtractor(grid, proj, selector, vars, store, log)

	req := usecase.Request{
		Lat:        flagLat,
		Lon:        flagLon,
		Method:     flagMethod,
		RadiusKm:   flagRadiusKm,
		KNeighbors: flagNeighbors,
	}
	if flagTime != "" {
		t, err := parseTime(flagTime)
		if err != nil {
			return err
		}
		req.Time = &t
	} else {
		start, err := parseTime(flagTimeStart)
		if err != nil {
			return err
		}
		end, err := parseTime(flagTimeEnd)
		if err != nil {
			return err
		}
		req.Start = &start
		req.End = &end
	}

	ctx := context.Background()

	if flagSurface {
		surfaceReq := req
		surfaceReq.DataType = domain.DataTypeSurface
		rows, err := extractor.Extract(ctx, surfaceReq)
		if err != nil {
			return err
		}
		path := outputPath(domain.DataTypeSurface)
		if err := writeRows(path, domain.DataTypeSurface, rows); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"rows": len(rows), "path": path}).Info("surface extraction written")
	}

	if flagIsobaric {
		isoReq := req
		isoReq.DataType = domain.DataTypeIsobaric
		isoReq.Levels = flagLevels
		rows, err := extractor.Extract(ctx, isoReq)
		if err != nil {
			return err
		}
		path := outputPath(domain.DataTypeIsobaric)
		if err := writeRows(path, domain.DataTypeIsobaric, rows); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"rows": len(rows), "path": path}).Info("isobaric extraction written")
	}

	return nil
}

// dryRun reports which logical variables resolve against the dataset.
func dryRun(store *lanal.Store, vars *varmap.Table) error {
	report := func(dt domain.DataType, level *int) {
		for _, name := range vars.Names(dt) {
			physical, _, err := vars.Resolve(name, dt, level)
			status := "ok"
			switch {
			case err != nil:
				status = err.Error()
			case !store.HasVariable(physical):
				status = fmt.Sprintf("missing (%s)", physical)
			}
			suffix := ""
			if level != nil {
				suffix = fmt.Sprintf(" @ %d hPa", *level)
			}
			fmt.Printf("%-10s %-22s%s  %s\n", dt, name, suffix, status)
		}
	}

	if flagSurface {
		report(domain.DataTypeSurface, nil)
	}
	if flagIsobaric {
		for _, lv := range flagLevels {
			lvCopy := lv
			report(domain.DataTypeIsobaric, &lvCopy)
		}
	}

	times := store.Times()
	if len(times) > 0 {
		fmt.Printf("coverage: %s .. %s (%d files)\n",
			times[0].Format(time.RFC3339), times[len(times)-1].Format(time.RFC3339), len(times))
	}
	return nil
}

func outputPath(dt domain.DataType) string {
	if flagOut == "" {
		return fmt.Sprintf("out_%s.%s", dt, flagFormat)
	}
	if flagSurface && flagIsobaric {
		// Both types requested: disambiguate the caller-supplied name.
		base := strings.TrimSuffix(flagOut, "."+flagFormat)
		return fmt.Sprintf("%s_%s.%s", base, dt, flagFormat)
	}
	return flagOut
}

// writeRows writes extraction rows in the selected output format.
func writeRows(path string, dt domain.DataType, rows []usecase.Row) error {
	if flagFormat == "json" {
		return writeJSON(path, rows)
	}
	return writeCSV(path, dt, rows)
}

// writeJSON writes extraction rows as a JSON array.
func writeJSON(path string, rows []usecase.Row) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeCSV writes extraction rows with the column set of the data type.
func writeCSV(path string, dt domain.DataType, rows []usecase.Row) error {
	//nolint:gosec // G304: output path comes from the operator.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"time", "lat", "lon"}
	if dt == domain.DataTypeIsobaric {
		header = append(header, "level_hPa")
	}
	header = append(header, "method", "n_points",
		"air_temperature_C", "relative_humidity_pct", "wind_u_ms", "wind_v_ms")
	if dt == domain.DataTypeIsobaric {
		header = append(header, "geopotential_height_gpm")
	} else {
		header = append(header, "pressure_hPa")
	}
	header = append(header, "wind_speed_ms", "wind_direction_deg")
	if err := w.Write(header); err != nil {
		return err
	}

	fmtF := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', 3, 64)
	}

	for _, r := range rows {
		rec := []string{
			r.Time.Format(time.RFC3339),
			strconv.FormatFloat(r.Lat, 'f', 4, 64),
			strconv.FormatFloat(r.Lon, 'f', 4, 64),
		}
		if dt == domain.DataTypeIsobaric {
			level := ""
			if r.LevelHPa != nil {
				level = strconv.Itoa(*r.LevelHPa)
			}
			rec = append(rec, level)
		}
		rec = append(rec, r.Method, strconv.Itoa(r.NPoints),
			fmtF(r.AirTemperatureC), fmtF(r.RelativeHumidityPct),
			fmtF(r.WindUMs), fmtF(r.WindVMs))
		if dt == domain.DataTypeIsobaric {
			rec = append(rec, fmtF(r.GeopotentialHeightGpm))
		} else {
			rec = append(rec, fmtF(r.PressureHPa))
		}
		rec = append(rec, fmtF(r.WindSpeedMs), fmtF(r.WindDirectionDeg))
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// parseTime accepts RFC3339 or a zone-less ISO timestamp interpreted as JST.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(lanal.JST), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, lanal.JST)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC3339 or YYYY-MM-DDTHH:MM:SS", s)
	}
	return t, nil
}
