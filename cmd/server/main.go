// Package main provides the LANAL extraction API HTTP server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/meteogrid/lanal-api/internal/adapter/spatial"
	"github.com/meteogrid/lanal-api/internal/adapter/store/lanal"
	"github.com/meteogrid/lanal-api/internal/adapter/varmap"
	"github.com/meteogrid/lanal-api/internal/domain"
	httpHandler "github.com/meteogrid/lanal-api/internal/http"
	"github.com/meteogrid/lanal-api/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("lanal-api version %s\n", version)
		return
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration from environment (.env supported for development).
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file loaded")
	}
	port := getEnv("PORT", "8080")
	dataDir := getEnv("DATA_DIR", "./data")
	varsPath := getEnv("VARIABLES_CONFIG", "")
	rescanStr := getEnv("RESCAN_INTERVAL", "15m")

	rescanInterval, err := time.ParseDuration(rescanStr)
	if err != nil {
		log.WithError(err).Fatal("invalid RESCAN_INTERVAL")
	}

	log.WithFields(logrus.Fields{
		"port":     port,
		"data_dir": dataDir,
	}).Info("starting LANAL extraction API server")

	// Index the dataset.
	store := lanal.NewStore(dataDir, log)
	if err := store.Rescan(); err != nil {
		log.WithError(err).Fatal("failed to index dataset")
	}

	// Build the immutable request-serving context: grid, projection,
	// spatial index, variable table.
	lat2d, lon2d, err := store.Coordinates()
	if err != nil {
		log.WithError(err).Fatal("failed to read grid coordinates")
	}
	grid, err := domain.NewGrid(lat2d, lon2d)
	if err != nil {
		log.WithError(err).Fatal("failed to build grid")
	}

	meta, err := store.Metadata()
	if err != nil {
		log.WithError(err).Fatal("failed to read grid metadata")
	}
	params, err := domain.EstimateParameters(meta)
	if err != nil {
		log.WithError(err).Fatal("failed to derive projection parameters")
	}
	proj, err := domain.NewProjection(params)
	if err != nil {
		log.WithError(err).Fatal("failed to build projection")
	}
	log.WithFields(logrus.Fields{
		"parallels": fmt.Sprintf("%.1f/%.1f", params.StandardParallel1, params.StandardParallel2),
		"meridian":  params.CentralMeridian,
	}).Info("projection configured")

	selector := spatial.NewSelector(grid)
	rows, cols := grid.Dims()
	log.WithFields(logrus.Fields{"rows": rows, "cols": cols}).Info("spatial index built")

	vars := varmap.Default()
	if varsPath != "" {
		if vars, err = varmap.Load(varsPath); err != nil {
			log.WithError(err).Fatal("failed to load variable mapping")
		}
		log.WithField("path", varsPath).Info("variable mapping loaded")
	}

	extractor := usecase.NewExtractor(grid, proj, selector, vars, store, log)

	// Pick up newly arrived forecast hours periodically.
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(rescanInterval).Do(func() {
		if err := store.Rescan(); err != nil {
			log.WithError(err).Warn("dataset rescan failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule dataset rescan")
	}
	scheduler.StartAsync()

	// Setup router.
	handler := httpHandler.NewHandler(extractor, vars, selector, store)
	router := httpHandler.SetupRouter(handler)

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	log.WithField("addr", addr).Info("server listening")
	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("LANAL extraction API server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  DATA_DIR                NetCDF data directory (default: ./data)")
	fmt.Println("  VARIABLES_CONFIG        Variable mapping YAML (default: built-in table)")
	fmt.Println("  RESCAN_INTERVAL         Dataset rescan interval (default: 15m)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated allowed origins (default: all)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health            Health check")
	fmt.Println("  GET  /v1/variables      List configured/available variables")
	fmt.Println("  GET  /v1/levels         List available pressure levels")
	fmt.Println("  GET  /v1/grid/nearby    Inspect grid cells near a point")
	fmt.Println("  POST /v1/extract        Extract point values")
	fmt.Println()
}
