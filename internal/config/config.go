package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the public provider endpoints. They are plain constants so a
// test or a mirror deployment can override them through the environment.
const (
	defaultANABaseURL   = "http://telemetriaws1.ana.gov.br/ServiceANA.asmx"
	defaultINMETBaseURL = "https://apitempo.inmet.gov.br"
	defaultMergeBaseURL = "http://ftp.cptec.inpe.br/modelos/tempo/MERGE/GPM"
)

// Config holds all service settings, populated from environment variables.
// It is built once at startup and passed explicitly; there is no global
// provider configuration.
type Config struct {
	ANABaseURL   string
	INMETBaseURL string
	MergeBaseURL string
	MergeDir     string
	MergeWorkers int

	// MergeAbortOnError aborts a batch download on the first failed day.
	// Off by default: a single day's failure is logged and the batch
	// continues, which is the long-standing downloader policy.
	MergeAbortOnError bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// DedupKeepLast switches duplicate-date resolution from keep-first to
	// keep-last for collected series.
	DedupKeepLast bool
}

// Load reads configuration from environment variables (optionally .env),
// applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := &Config{
		ANABaseURL:   envOrDefault("ANA_BASE_URL", defaultANABaseURL),
		INMETBaseURL: envOrDefault("INMET_BASE_URL", defaultINMETBaseURL),
		MergeBaseURL: envOrDefault("MERGE_BASE_URL", defaultMergeBaseURL),
		MergeDir:     envOrDefault("MERGE_DIR", os.TempDir()+"/merge"),
		MergeWorkers: 20,
		HTTPAddr:     envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		LogFormat:    envOrDefault("LOG_FORMAT", "json"),
	}

	if v := os.Getenv("MERGE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MERGE_WORKERS: %s", v)
		}
		cfg.MergeWorkers = n
	}

	cfg.MergeAbortOnError = os.Getenv("MERGE_ABORT_ON_ERROR") == "true"
	cfg.DedupKeepLast = os.Getenv("DEDUP_KEEP_LAST") == "true"

	var err error
	cfg.RequestTimeout, err = parseDuration("REQUEST_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	if cfg.ANABaseURL == "" || cfg.INMETBaseURL == "" || cfg.MergeBaseURL == "" {
		return nil, errors.New("provider base URLs must not be empty")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, s)
	}
	return d, nil
}
