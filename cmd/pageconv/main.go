// Command pageconv converts a directory of page payloads into a single HTML
// document via the remote conversion service, scheduling pages through the
// rate-limited dispatcher.
//
// Usage:
//
//	pageconv <input-dir> <output.html>
//
// Page order is the lexical order of the file names in the input directory.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pagedoc/pagedoc/pkg/cache"
	"github.com/pagedoc/pagedoc/pkg/converter"
	"github.com/pagedoc/pagedoc/pkg/logging"
	"github.com/pagedoc/pagedoc/pkg/merger"
	"github.com/pagedoc/pagedoc/pkg/scheduler"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <input-dir> <output.html>\n", os.Args[0])
		os.Exit(2)
	}
	inputDir, outputPath := os.Args[1], os.Args[2]

	// Configuration from environment
	convertURL := getEnv("CONVERT_URL", "")
	if convertURL == "" {
		logger.Fatal().Msg("CONVERT_URL is required")
	}

	cfg := scheduler.DefaultConfig()
	cfg.Concurrency = getEnvInt("CONCURRENCY", cfg.Concurrency)
	cfg.RateLimit = getEnvInt("RATE_LIMIT", cfg.RateLimit)
	cfg.Window = getEnvDuration("RATE_WINDOW", cfg.Window)

	convCfg := converter.DefaultConfig(convertURL)
	convCfg.UserAgent = getEnv("USER_AGENT", convCfg.UserAgent)
	convCfg.Timeout = getEnvDuration("CONVERT_TIMEOUT", convCfg.Timeout)

	// Optional Redis-backed artifact cache: already-converted pages skip the
	// remote call on reruns.
	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		convCfg.Cache = cache.NewManager(redisClient)
		convCfg.CacheTTL = getEnvDuration("CACHE_TTL", convCfg.CacheTTL)
		logger.Info().Str("redis_url", redisURL).Msg("Artifact cache enabled")
	}

	// Optional metrics endpoint.
	if metricsAddr := getEnv("METRICS_ADDR", ""); metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	units, names, err := loadUnits(inputDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", inputDir).Msg("Failed to load input pages")
	}
	if len(units) == 0 {
		logger.Fatal().Str("dir", inputDir).Msg("Input directory contains no page files")
	}

	conv, err := converter.New(convCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create converter")
	}

	dispatcher, err := scheduler.New(cfg, scheduler.WithProgressLogging(1))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	document := filepath.Base(inputDir)
	result, err := dispatcher.Run(context.Background(), units, func(ctx context.Context, unit scheduler.WorkUnit) ([]byte, error) {
		return conv.Convert(ctx, document, unit.Index, unit.Payload)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Batch aborted")
	}

	merged, err := merger.Merge(result, merger.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to merge pages")
	}

	if err := os.WriteFile(outputPath, merged, 0o644); err != nil {
		logger.Fatal().Err(err).Str("path", outputPath).Msg("Failed to write output")
	}

	failed := result.Failures()
	logger.Info().
		Str("output", outputPath).
		Int("pages", len(units)).
		Int("failed", failed).
		Msg("Document written")

	for _, o := range result {
		if !o.Failed() {
			continue
		}
		logger.Warn().
			Err(o.Err).
			Int("page", o.Index).
			Str("file", names[o.Index]).
			Msg("Page was not converted")
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// loadUnits reads every regular file in dir as one page payload. The lexical
// order of the file names defines the page order, so callers name files with
// zero-padded page numbers.
func loadUnits(dir string) ([]scheduler.WorkUnit, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	units := make([]scheduler.WorkUnit, 0, len(names))
	for i, name := range names {
		payload, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("read page %s: %w", name, err)
		}
		units = append(units, scheduler.WorkUnit{Index: i, Payload: payload})
	}

	return units, names, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "90s") or returns a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
