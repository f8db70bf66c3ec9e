package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "go-style-scout/internal/errors"

	"gopkg.in/yaml.v3"
)

// Detector and search backends selectable at startup.
const (
	DetectorHTTP   = "http"
	DetectorGemini = "gemini"

	SearchPostgres = "postgres"
	SearchSupabase = "supabase"
)

// DefaultRelevantLabels is the clothing allowlist the pipeline acts on.
var DefaultRelevantLabels = []string{"shirt", "t-shirt", "pants", "jeans", "dress", "shoe", "shorts", "sweater", "hoodie"}

type Config struct {
	Host                  string        `yaml:"host"`
	Port                  string        `yaml:"port"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	ImageFetchTimeout     time.Duration `yaml:"image_fetch_timeout"`
	SearchTimeout         time.Duration `yaml:"search_timeout"`
	MaxRequestBodySize    int64         `yaml:"max_request_body_size"`
	MaxConcurrentRequests int64         `yaml:"max_concurrent_requests"`
	CancelOnDisconnect    bool          `yaml:"cancel_on_disconnect"`
	LogLevel              string        `yaml:"log_level"`
	ImageHostAllowlist    []string      `yaml:"image_host_allowlist"`

	// AllowPrivateImageHosts lets the URL endpoint reach loopback, private
	// and link-local addresses.
	AllowPrivateImageHosts bool `yaml:"allow_private_image_hosts"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Detector DetectorConfig `yaml:"detector"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Search   SearchConfig   `yaml:"search"`
	Azure    AzureConfig    `yaml:"azure"`
}

type PipelineConfig struct {
	RelevantLabels     []string `yaml:"relevant_labels"`
	DetectionThreshold float64  `yaml:"detection_threshold"`
	MatchThreshold     float64  `yaml:"match_threshold"`
	MatchCount         int      `yaml:"match_count"`
}

type DetectorConfig struct {
	Backend      string `yaml:"backend"`
	URL          string `yaml:"url"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

type EmbedderConfig struct {
	URL     string `yaml:"url"`
	MaxSide int    `yaml:"max_side"`
}

type SearchConfig struct {
	Backend       string `yaml:"backend"`
	DatabaseURL   string `yaml:"database_url"`
	SupabaseURL   string `yaml:"supabase_url"`
	SupabaseKey   string `yaml:"supabase_key"`
	MatchFunction string `yaml:"match_function"`
}

type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
}

// Enabled reports whether Azure Blob credentials were supplied.
func (a AzureConfig) Enabled() bool {
	return a.AccountName != "" && a.AccountKey != ""
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Defaults returns the configuration used when neither a file nor the
// environment says otherwise.
func Defaults() *Config {
	return &Config{
		Host:                  "0.0.0.0",
		Port:                  "3001",
		RequestTimeout:        60 * time.Second,
		ImageFetchTimeout:     15 * time.Second,
		SearchTimeout:         10 * time.Second,
		MaxRequestBodySize:    10 * 1024 * 1024, // 10MB
		MaxConcurrentRequests: 8,
		CancelOnDisconnect:    true,
		LogLevel:              "info",
		Pipeline: PipelineConfig{
			RelevantLabels:     append([]string(nil), DefaultRelevantLabels...),
			DetectionThreshold: 0.9,
			MatchThreshold:     0.85,
			MatchCount:         4,
		},
		Detector: DetectorConfig{
			Backend:     DetectorHTTP,
			URL:         "http://127.0.0.1:5000/detect",
			GeminiModel: "gemini-2.5-flash",
		},
		Embedder: EmbedderConfig{
			URL:     "http://127.0.0.1:5000/embed",
			MaxSide: 512,
		},
		Search: SearchConfig{
			Backend:       SearchSupabase,
			MatchFunction: "match_products",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and the environment, in that order, then validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.NewConfigurationError(fmt.Sprintf("cannot read config file %q", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.NewConfigurationError(fmt.Sprintf("cannot parse config file %q", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnvOrDefault("HOST", c.Host)
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", c.RequestTimeout)
	c.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", c.ImageFetchTimeout)
	c.SearchTimeout = parseDurationOrDefault("SEARCH_TIMEOUT", c.SearchTimeout)
	c.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", c.MaxRequestBodySize)
	c.MaxConcurrentRequests = parseIntOrDefault("MAX_CONCURRENT_REQUESTS", c.MaxConcurrentRequests)
	c.CancelOnDisconnect = parseBoolOrDefault("CANCEL_ON_DISCONNECT", c.CancelOnDisconnect)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.AllowPrivateImageHosts = parseBoolOrDefault("ALLOW_PRIVATE_IMAGE_HOSTS", c.AllowPrivateImageHosts)
	if hosts := parseListOrNil("IMAGE_HOST_ALLOWLIST"); hosts != nil {
		c.ImageHostAllowlist = hosts
	}

	if labels := parseListOrNil("RELEVANT_LABELS"); labels != nil {
		c.Pipeline.RelevantLabels = labels
	}
	c.Pipeline.DetectionThreshold = parseFloatOrDefault("DETECTION_THRESHOLD", c.Pipeline.DetectionThreshold)
	c.Pipeline.MatchThreshold = parseFloatOrDefault("MATCH_THRESHOLD", c.Pipeline.MatchThreshold)
	c.Pipeline.MatchCount = int(parseIntOrDefault("MATCH_COUNT", int64(c.Pipeline.MatchCount)))

	c.Detector.Backend = strings.ToLower(getEnvOrDefault("DETECTOR_BACKEND", c.Detector.Backend))
	c.Detector.URL = getEnvOrDefault("DETECTOR_URL", c.Detector.URL)
	c.Detector.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", c.Detector.GeminiAPIKey)
	c.Detector.GeminiModel = getEnvOrDefault("GEMINI_MODEL", c.Detector.GeminiModel)

	c.Embedder.URL = getEnvOrDefault("EMBEDDER_URL", c.Embedder.URL)
	c.Embedder.MaxSide = int(parseIntOrDefault("EMBED_MAX_SIDE", int64(c.Embedder.MaxSide)))

	c.Search.Backend = strings.ToLower(getEnvOrDefault("SEARCH_BACKEND", c.Search.Backend))
	c.Search.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.Search.DatabaseURL)
	c.Search.SupabaseURL = getEnvOrDefault("SUPABASE_URL", c.Search.SupabaseURL)
	c.Search.SupabaseKey = getEnvOrDefault("SUPABASE_KEY", c.Search.SupabaseKey)
	c.Search.MatchFunction = getEnvOrDefault("MATCH_FUNCTION", c.Search.MatchFunction)

	c.Azure.AccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", c.Azure.AccountName)
	c.Azure.AccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", c.Azure.AccountKey)
}

// Validate checks ranges and that the selected backends have what they need.
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return apperrors.NewConfigurationError(fmt.Sprintf("invalid PORT: %q", c.Port), err)
	}
	if c.MaxRequestBodySize <= 0 {
		return apperrors.NewConfigurationError(fmt.Sprintf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize), nil)
	}
	if c.MaxConcurrentRequests <= 0 {
		return apperrors.NewConfigurationError(fmt.Sprintf("MAX_CONCURRENT_REQUESTS must be > 0 (got %d)", c.MaxConcurrentRequests), nil)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.SearchTimeout <= 0 {
		return apperrors.NewConfigurationError(fmt.Sprintf("timeouts must be > 0 (got request=%s, fetch=%s, search=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.SearchTimeout), nil)
	}

	if len(c.Pipeline.RelevantLabels) == 0 {
		return apperrors.NewConfigurationError("RELEVANT_LABELS must not be empty", nil)
	}
	if !inUnitRange(c.Pipeline.DetectionThreshold) || !inUnitRange(c.Pipeline.MatchThreshold) {
		return apperrors.NewConfigurationError(fmt.Sprintf("thresholds must be within [0,1] (got detection=%v, match=%v)",
			c.Pipeline.DetectionThreshold, c.Pipeline.MatchThreshold), nil)
	}
	if c.Pipeline.MatchCount <= 0 {
		return apperrors.NewConfigurationError(fmt.Sprintf("MATCH_COUNT must be > 0 (got %d)", c.Pipeline.MatchCount), nil)
	}

	switch c.Detector.Backend {
	case DetectorHTTP:
		if c.Detector.URL == "" {
			return apperrors.NewConfigurationError("DETECTOR_URL is required for the http detector", nil)
		}
	case DetectorGemini:
		if c.Detector.GeminiAPIKey == "" {
			return apperrors.NewConfigurationError("GEMINI_API_KEY is required for the gemini detector", nil)
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unsupported DETECTOR_BACKEND: %q", c.Detector.Backend), nil)
	}

	if c.Embedder.URL == "" {
		return apperrors.NewConfigurationError("EMBEDDER_URL is required", nil)
	}

	switch c.Search.Backend {
	case SearchSupabase:
		if c.Search.SupabaseURL == "" || c.Search.SupabaseKey == "" {
			return apperrors.NewConfigurationError("Supabase URL or Key is not defined (SUPABASE_URL, SUPABASE_KEY)", nil)
		}
	case SearchPostgres:
		if c.Search.DatabaseURL == "" {
			return apperrors.NewConfigurationError("DATABASE_URL is required for the postgres search backend", nil)
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unsupported SEARCH_BACKEND: %q", c.Search.Backend), nil)
	}
	if strings.TrimSpace(c.Search.MatchFunction) == "" {
		return apperrors.NewConfigurationError("MATCH_FUNCTION must not be empty", nil)
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseListOrNil(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
