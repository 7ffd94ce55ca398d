package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string        `envconfig:"APP_ENV" default:"development"`
	Port               string        `envconfig:"PORT" default:"1919"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"info"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	JWTSecret          string        `envconfig:"JWT_SECRET"`
	RateLimitPerMin    int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
	HTTPReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"300s"`
	HTTPIdleTimeout    time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	MockMode           bool          `envconfig:"MOCK_MODE" default:"false"`

	GeminiAPIKey         string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL        string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiImageModel     string        `envconfig:"GEMINI_IMAGE_MODEL" default:"gemini-2.5-flash-image-preview"`
	ImageTimeout         time.Duration `envconfig:"IMAGE_TIMEOUT" default:"120s"`
	ImageMaxRetries      int           `envconfig:"IMAGE_MAX_RETRIES" default:"2"`
	ImageFallbackRetries int           `envconfig:"IMAGE_FALLBACK_RETRIES" default:"0"`
	ImageMinWidth        int           `envconfig:"IMAGE_MIN_WIDTH" default:"500"`
	ImageWorkers         int           `envconfig:"IMAGE_WORKERS" default:"4"`
	ImageOutputFormat    string        `envconfig:"IMAGE_OUTPUT_FORMAT"`
	ImageOutputWidth     int           `envconfig:"IMAGE_OUTPUT_WIDTH"`
	ImageOutputHeight    int           `envconfig:"IMAGE_OUTPUT_HEIGHT"`
	ImageOutputQuality   int           `envconfig:"IMAGE_OUTPUT_QUALITY" default:"90"`
	ImageOutputFit       string        `envconfig:"IMAGE_OUTPUT_FIT" default:"contain"`

	PromptProvider  string        `envconfig:"PROMPT_PROVIDER" default:"gemini"`
	GeminiTextModel string        `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.0-flash"`
	EnhanceTimeout  time.Duration `envconfig:"ENHANCE_TIMEOUT" default:"20s"`

	TextProxyURL   string        `envconfig:"TEXT_PROXY_URL"`
	TextProxyToken string        `envconfig:"TEXT_PROXY_TOKEN"`
	TextAPIKey     string        `envconfig:"TEXT_API_KEY"`
	TextBaseURL    string        `envconfig:"TEXT_BASE_URL" default:"https://api.deepseek.com/v1"`
	TextModel      string        `envconfig:"TEXT_MODEL" default:"deepseek-chat"`
	TextMaxTokens  int           `envconfig:"TEXT_MAX_TOKENS" default:"2048"`
	TextTimeout    time.Duration `envconfig:"TEXT_TIMEOUT" default:"60s"`
	TextMaxRetries int           `envconfig:"TEXT_MAX_RETRIES" default:"3"`

	RetryInitialDelay      time.Duration `envconfig:"RETRY_INITIAL_DELAY" default:"1s"`
	RetryMaxDelay          time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s"`
	RetryMultiplier        float64       `envconfig:"RETRY_MULTIPLIER" default:"1.5"`
	RetryNetworkMultiplier float64       `envconfig:"RETRY_NETWORK_MULTIPLIER" default:"2"`

	ProviderMinInterval time.Duration `envconfig:"PROVIDER_MIN_INTERVAL" default:"1s"`
	ProviderBurst       int           `envconfig:"PROVIDER_BURST" default:"1"`

	CacheBackend    string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheEviction   string        `envconfig:"CACHE_EVICTION" default:"none"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL"`
	CacheMaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"1024"`
	CacheDir        string        `envconfig:"CACHE_DIR" default:"./data/cache"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`

	// DatabaseMaxConns caps the postgres cache pool.
	DatabaseMaxConns int `envconfig:"DATABASE_MAX_CONNS" default:"5"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.PromptProvider = strings.ToLower(strings.TrimSpace(c.PromptProvider))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.CacheEviction = strings.ToLower(strings.TrimSpace(c.CacheEviction))
	c.ImageOutputFormat = strings.ToLower(strings.TrimSpace(c.ImageOutputFormat))
	c.ImageOutputFit = strings.ToLower(strings.TrimSpace(c.ImageOutputFit))
	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins
}

// Validate checks enum values and the settings each backend needs.
func (c *Config) Validate() error {
	if !oneOf(c.PromptProvider, "gemini", "openai", "static") {
		return fmt.Errorf("PROMPT_PROVIDER must be gemini, openai or static, got %q", c.PromptProvider)
	}
	if !oneOf(c.CacheBackend, "memory", "file", "redis", "postgres") {
		return fmt.Errorf("CACHE_BACKEND must be memory, file, redis or postgres, got %q", c.CacheBackend)
	}
	if !oneOf(c.CacheEviction, "none", "ttl", "lru") {
		return fmt.Errorf("CACHE_EVICTION must be none, ttl or lru, got %q", c.CacheEviction)
	}
	if c.CacheEviction == "ttl" && c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL is required when CACHE_EVICTION=ttl")
	}
	if c.CacheBackend == "redis" && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis")
	}
	if c.CacheBackend == "postgres" && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required when CACHE_BACKEND=postgres")
	}
	if c.ImageOutputFormat != "" && !oneOf(c.ImageOutputFormat, "png", "jpeg", "jpg", "webp") {
		return fmt.Errorf("IMAGE_OUTPUT_FORMAT must be png, jpeg or webp, got %q", c.ImageOutputFormat)
	}
	if !oneOf(c.ImageOutputFit, "contain", "inside") {
		return fmt.Errorf("IMAGE_OUTPUT_FIT must be contain or inside, got %q", c.ImageOutputFit)
	}
	if c.ImageMaxRetries < 0 || c.ImageFallbackRetries < 0 || c.TextMaxRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if !c.MockMode && strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is required unless MOCK_MODE=true")
	}
	return nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
