package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string
	AutoMigrate bool

	CatalogPath      string
	FieldMappingPath string

	// ingestion
	LookbackWindow      time.Duration
	SearchEndpoint      string
	SearchMaxRecords    int
	SearchMinKeywordLen int
	RequestTimeout      time.Duration
	PacingDelay         time.Duration
	UserAgent           string
	DiscoverFromHTML    bool
	ResolveMissTTL      time.Duration

	// synthesis
	SynthWindow      time.Duration
	SynthMinItems    int
	SynthSampleSize  int
	SynthPromptItems int
	StoryCategory    string
	StoryStatus      string

	GeneratorURL     string
	GeneratorAPIKey  string
	GeneratorModel   string
	GeneratorTimeout time.Duration

	IngestCron string
	SynthCron  string

	LogLevel       string
	LogDevelopment bool

	BasicAuthUser string
	BasicAuthPass string
}

// Load reads .env (if present) and the process environment. Any malformed
// value is returned as an error; callers treat it as fatal.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		AppPort:     getEnv("APP_PORT", "9000"),
		PostgresDSN: getEnv("POSTGRES_DSN", "host=localhost user=countywire password=countywire dbname=countywire port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		AutoMigrate: getBool("AUTO_MIGRATE", true, &errs),

		CatalogPath:      getEnv("CATALOG_PATH", "sources.yaml"),
		FieldMappingPath: getEnv("FIELD_MAPPING_PATH", ""),

		LookbackWindow:      getDuration("LOOKBACK_WINDOW", 12*time.Hour, &errs),
		SearchEndpoint:      getEnv("SEARCH_ENDPOINT", "https://api.gdeltproject.org/api/v2/doc/doc"),
		SearchMaxRecords:    getInt("SEARCH_MAX_RECORDS", 50, &errs),
		SearchMinKeywordLen: getInt("SEARCH_MIN_KEYWORD_LEN", 3, &errs),
		RequestTimeout:      getDuration("REQUEST_TIMEOUT", 15*time.Second, &errs),
		PacingDelay:         getDuration("PACING_DELAY", time.Second, &errs),
		UserAgent:           getEnv("USER_AGENT", "countywire/1.0 (+https://github.com/LJTian/countywire)"),
		DiscoverFromHTML:    getBool("DISCOVER_FROM_HTML", true, &errs),
		ResolveMissTTL:      getDuration("RESOLVE_MISS_TTL", 0, &errs),

		SynthWindow:      getDuration("SYNTH_WINDOW", 12*time.Hour, &errs),
		SynthMinItems:    getInt("SYNTH_MIN_ITEMS", 3, &errs),
		SynthSampleSize:  getInt("SYNTH_SAMPLE_SIZE", 40, &errs),
		SynthPromptItems: getInt("SYNTH_PROMPT_ITEMS", 12, &errs),
		StoryCategory:    getEnv("STORY_CATEGORY", "roundup"),
		StoryStatus:      getEnv("STORY_STATUS", "published"),

		GeneratorURL:     getEnv("GENERATOR_URL", ""),
		GeneratorAPIKey:  getEnv("GENERATOR_API_KEY", ""),
		GeneratorModel:   getEnv("GENERATOR_MODEL", "default"),
		GeneratorTimeout: getDuration("GENERATOR_TIMEOUT", 60*time.Second, &errs),

		IngestCron: getEnv("INGEST_CRON", "*/30 * * * *"),
		SynthCron:  getEnv("SYNTH_CRON", "15 */6 * * *"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getBool("LOG_DEVELOPMENT", false, &errs),

		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	positive := map[string]int{
		"SEARCH_MAX_RECORDS":     c.SearchMaxRecords,
		"SEARCH_MIN_KEYWORD_LEN": c.SearchMinKeywordLen,
		"SYNTH_MIN_ITEMS":        c.SynthMinItems,
		"SYNTH_SAMPLE_SIZE":      c.SynthSampleSize,
		"SYNTH_PROMPT_ITEMS":     c.SynthPromptItems,
	}
	for key, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	durations := map[string]time.Duration{
		"LOOKBACK_WINDOW":   c.LookbackWindow,
		"REQUEST_TIMEOUT":   c.RequestTimeout,
		"SYNTH_WINDOW":      c.SynthWindow,
		"GENERATOR_TIMEOUT": c.GeneratorTimeout,
	}
	for key, v := range durations {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, v))
		}
	}
	if c.PacingDelay < 0 {
		errs = append(errs, fmt.Errorf("PACING_DELAY must not be negative, got %s", c.PacingDelay))
	}
	if c.ResolveMissTTL < 0 {
		errs = append(errs, fmt.Errorf("RESOLVE_MISS_TTL must not be negative, got %s", c.ResolveMissTTL))
	}
	switch c.StoryStatus {
	case "draft", "published":
	default:
		errs = append(errs, fmt.Errorf("STORY_STATUS must be draft or published, got %q", c.StoryStatus))
	}
	return errs
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func getBool(key string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
