package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed encoder.yaml
var encoderYAML []byte

const (
	// DefaultThreshold is the minimum cosine similarity for a match.
	DefaultThreshold = 0.5

	// DefaultDatabaseURL is a SQLite file in the working directory.
	DefaultDatabaseURL = "face.db"

	// EncoderHistogramHOG selects the built-in deterministic encoder.
	EncoderHistogramHOG = "histogram-hog"
	// EncoderRemote selects the HTTP embedding server.
	EncoderRemote = "remote"
)

type Config struct {
	Database DatabaseConfig
	Match    MatchConfig
	Encoder  EncoderConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	URL           string // sqlite path (default), postgres:// or mysql:// URL
	MaxOpenConns  int    // Maximum open connections for network backends (default 25)
	MaxIdleConns  int    // Maximum idle connections for network backends (default 5)
	HNSWEnabled   bool   // Narrow match candidates with the in-memory HNSW index
	HNSWIndexPath string // Path to persist the HNSW index (optional, if empty index is rebuilt on startup)
}

type MatchConfig struct {
	Threshold float64 // COSINE_THRESH, defaults to 0.5
	TopK      int     // default number of ranked candidates
}

// EncoderConfig describes the feature extractor. The histogram and gradient
// fields drive the built-in encoder; Remote is used when Kind is "remote".
type EncoderConfig struct {
	Kind            string       `yaml:"-"`
	HistBins        int          `yaml:"hist_bins"`
	CanonicalSize   int          `yaml:"canonical_size"`
	CellSize        int          `yaml:"cell_size"`
	BlockSize       int          `yaml:"block_size"`
	BlockStride     int          `yaml:"block_stride"`
	OrientationBins int          `yaml:"orientation_bins"`
	MaxGradientLen  int          `yaml:"max_gradient_len"` // 0 keeps the whole descriptor
	Remote          RemoteConfig `yaml:"remote"`
}

type RemoteConfig struct {
	URL     string `yaml:"url"`      // defaults to http://localhost:8000
	Dim     int    `yaml:"dim"`      // dimension produced by the remote model
	MaxSize int    `yaml:"max_size"` // longest image side sent to the server
}

type WebConfig struct {
	Host             string
	Port             int
	RateLimitEnabled bool
	RateLimit        int // requests per window
	RateWindow       int // window in seconds
	AllowedOrigins   []string
}

// Validate checks that the gradient descriptor geometry is consistent.
func (c *EncoderConfig) Validate() error {
	if c.HistBins <= 0 || c.HistBins > 256 {
		return fmt.Errorf("hist_bins must be in 1..256, got %d", c.HistBins)
	}
	if c.CellSize <= 0 || c.BlockSize <= 0 || c.BlockStride <= 0 || c.CanonicalSize <= 0 {
		return errors.New("canonical_size, cell_size, block_size and block_stride must be positive")
	}
	if c.OrientationBins <= 0 {
		return fmt.Errorf("orientation_bins must be positive, got %d", c.OrientationBins)
	}
	if c.BlockSize%c.CellSize != 0 {
		return fmt.Errorf("block_size %d is not a multiple of cell_size %d", c.BlockSize, c.CellSize)
	}
	if c.BlockStride%c.CellSize != 0 {
		return fmt.Errorf("block_stride %d is not a multiple of cell_size %d", c.BlockStride, c.CellSize)
	}
	if c.CanonicalSize < c.BlockSize {
		return fmt.Errorf("canonical_size %d is smaller than block_size %d", c.CanonicalSize, c.BlockSize)
	}
	if c.MaxGradientLen < 0 {
		return fmt.Errorf("max_gradient_len must not be negative, got %d", c.MaxGradientLen)
	}
	return nil
}

// DefaultEncoderConfig returns the encoder settings from the embedded encoder.yaml.
func DefaultEncoderConfig() EncoderConfig {
	var enc EncoderConfig
	if err := yaml.Unmarshal(encoderYAML, &enc); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded encoder.yaml: " + err.Error())
	}
	enc.Kind = EncoderHistogramHOG
	return enc
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a bool, falling back to defaultVal.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envString returns the first non-empty value among keys, or defaultVal.
func envString(defaultVal string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	enc := DefaultEncoderConfig()
	enc.Kind = envString(EncoderHistogramHOG, "ENCODER")
	enc.HistBins = envInt("ENCODER_HIST_BINS", enc.HistBins)
	enc.CanonicalSize = envInt("ENCODER_CANONICAL_SIZE", enc.CanonicalSize)
	enc.MaxGradientLen = envInt("ENCODER_MAX_GRADIENT_LEN", enc.MaxGradientLen)
	enc.Remote.URL = envString(enc.Remote.URL, "EMBEDDING_URL")
	enc.Remote.Dim = envInt("EMBEDDING_DIM", enc.Remote.Dim)

	return &Config{
		Database: DatabaseConfig{
			// DB_PATH is accepted for compatibility with older deployments.
			URL:           envString(DefaultDatabaseURL, "DATABASE_URL", "DB_PATH"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWEnabled:   envBool("HNSW_ENABLED", false),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Match: MatchConfig{
			Threshold: envFloat("COSINE_THRESH", DefaultThreshold),
			TopK:      envInt("MATCH_TOP_K", 3),
		},
		Encoder: enc,
		Web: WebConfig{
			Host:             envString("0.0.0.0", "WEB_HOST"),
			Port:             envInt("WEB_PORT", envInt("PORT", 9000)),
			RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", true),
			RateLimit:        envInt("RATE_LIMIT_REQUESTS", 100),
			RateWindow:       envInt("RATE_LIMIT_WINDOW", 60),
			AllowedOrigins:   envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
