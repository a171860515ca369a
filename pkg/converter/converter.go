// Package converter implements the unit processor: it sends a single page
// payload to the remote conversion service and returns the converted
// artifact. Conversion attempts are single-shot; the scheduler's
// at-most-once contract owns how often a page is tried.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagedoc/pagedoc/pkg/cache"
)

// Prometheus metrics for conversion requests.
var (
	convertRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedoc_convert_requests_total",
		Help: "Total conversion requests by status",
	}, []string{"status"})

	convertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagedoc_convert_duration_seconds",
		Help:    "Remote conversion request duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	convertErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedoc_convert_errors_total",
		Help: "Total conversion errors by class",
	}, []string{"class"})
)

// Converter is the remote page conversion client.
type Converter struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the converter configuration.
type Config struct {
	// BaseURL of the conversion service, e.g. "https://convert.example.com"
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per conversion request
	Timeout time.Duration

	// Cache is the optional artifact cache; nil disables caching
	Cache *cache.Manager

	// CacheTTL is how long converted artifacts stay cached
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "pagedoc/0.1.0",
		Timeout:   120 * time.Second,
		CacheTTL:  24 * time.Hour,
	}
}

// New creates a converter.
func New(cfg Config) (*Converter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache TTL must be > 0 when caching is enabled (got %v)", cfg.CacheTTL)
	}

	logger := log.With().Str("component", "converter").Logger()

	return &Converter{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: logger,
	}, nil
}

// Convert sends one page payload to the remote service and returns the
// converted artifact. The call is gated upstream by the scheduler; this
// method performs exactly one attempt and never retries on its own.
func (c *Converter) Convert(ctx context.Context, document string, page int, payload []byte) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		convertDuration.Observe(time.Since(startTime).Seconds())
	}()

	// Check cache: unchanged pages skip the remote call entirely.
	var key cache.Key
	if c.cache != nil {
		key = cache.NewKey(document, page, payload)
		entry, err := c.cache.Get(ctx, key)
		if err == nil {
			c.logger.Debug().
				Str("document", document).
				Int("page", page).
				Msg("Cache hit - skipping remote conversion")
			convertRequestsTotal.WithLabelValues("cache_hit").Inc()
			return entry.Artifact, nil
		}
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).
				Str("document", document).
				Int("page", page).
				Msg("Cache get error")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/convert", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "text/html")
	req.Header.Set("X-Document", document)
	req.Header.Set("X-Page", strconv.Itoa(page))
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("document", document).
		Int("page", page).
		Int("payload_bytes", len(payload)).
		Msg("Executing conversion request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := classifyError(nil, err)
		convertErrorsTotal.WithLabelValues(string(errClass)).Inc()
		convertRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).
			Str("document", document).
			Int("page", page).
			Msg("Conversion request failed")
		return nil, &ConvertError{
			ErrorClass: errClass,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errClass := classifyError(resp, nil)
		convertErrorsTotal.WithLabelValues(string(errClass)).Inc()
		convertRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("document", document).
			Int("page", page).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Conversion request error")

		return nil, &ConvertError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	artifact, err := io.ReadAll(resp.Body)
	if err != nil {
		convertErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &ConvertError{
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	convertRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.cache != nil {
		entry := cache.NewEntry(artifact, c.config.CacheTTL)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).
				Str("document", document).
				Int("page", page).
				Msg("Failed to cache artifact")
		} else {
			c.logger.Debug().
				Str("document", document).
				Int("page", page).
				Dur("ttl", entry.TTL()).
				Msg("Cached artifact")
		}
	}

	return artifact, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Converter) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
