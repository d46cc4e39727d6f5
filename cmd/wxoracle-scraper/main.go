// Command wxoracle-scraper relays the forecast server's Prometheus
// metrics into Google Cloud Monitoring. It is built for serverless
// deployment: a scheduler hits the HTTP trigger, each hit runs one
// scrape and ingest cycle.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/meteomancer/weatheroracle/internal/scraper"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	s, err := scraper.New(scraper.Config{
		MetricsURL: os.Getenv("METRICS_URL"),
		ProjectID:  os.Getenv("PROJECT_ID"),
		Location:   os.Getenv("MONITORING_LOCATION"),
	}, nil, logger)
	if err != nil {
		logger.Error("invalid scraper configuration", "error", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting scraper", "port", port, "target", os.Getenv("METRICS_URL"))
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server startup failed", "error", err)
		os.Exit(1)
	}
}
