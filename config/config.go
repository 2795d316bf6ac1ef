package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Proxy     ProxyConfig
	Harvest   HarvestConfig
	HTTP      HTTPConfig
	Debug     DebugConfig
	Scheduler SchedulerConfig
	Recheck   RecheckConfig
	Site      *Site

	DatabaseURL string
	DBPath      string
	LogPath     string
	LogMaxBytes int64
	LogBackups  int
	LogLevel    string
	MarketsFile string
}

type ProxyConfig struct {
	URL string
}

type HarvestConfig struct {
	Concurrency int
	MaxPages    int
	Browser     bool
	Headless    bool
	NavTimeout  time.Duration
	WaitTimeout time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
	PerState    int
	MaxMarkets  int
	Markets     []string
}

type HTTPConfig struct {
	Timeout    time.Duration
	Retries    int
	RatePerSec float64
	UserAgent  string
}

type DebugConfig struct {
	Enabled    bool
	Dir        string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	AccessKey  string
	SecretKey  string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

// RecheckConfig controls the daemon's off-market sweep over stored listings.
type RecheckConfig struct {
	Enabled    bool
	StaleAfter time.Duration
	BatchSize  int
	Interval   time.Duration
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Proxy: ProxyConfig{
			URL: os.Getenv("HARVEST_PROXY"),
		},
		Harvest: HarvestConfig{
			Concurrency: getEnvInt("HARVEST_CONCURRENCY", 5),
			MaxPages:    getEnvInt("HARVEST_MAX_PAGES", 2),
			Browser:     getEnvBool("HARVEST_BROWSER", true),
			Headless:    getEnvBool("HARVEST_HEADLESS", true),
			NavTimeout:  getEnvDuration("HARVEST_NAV_TIMEOUT", 30*time.Second),
			WaitTimeout: getEnvDuration("HARVEST_WAIT_TIMEOUT", 3*time.Second),
			MinDelay:    getEnvDuration("HARVEST_MIN_DELAY", 300*time.Millisecond),
			MaxDelay:    getEnvDuration("HARVEST_MAX_DELAY", 1300*time.Millisecond),
			PerState:    getEnvInt("HARVEST_PER_STATE", 2),
			MaxMarkets:  getEnvInt("HARVEST_MAX_MARKETS", 200),
			Markets:     splitList(os.Getenv("HARVEST_MARKETS")),
		},
		HTTP: HTTPConfig{
			Timeout:    getEnvDuration("HARVEST_HTTP_TIMEOUT", 30*time.Second),
			Retries:    getEnvInt("HARVEST_HTTP_RETRIES", 2),
			RatePerSec: getEnvFloat("HARVEST_RATE_PER_SEC", 2),
			UserAgent:  getEnv("HARVEST_USER_AGENT", defaultUserAgent),
		},
		Debug: DebugConfig{
			Enabled:    getEnvBool("HARVEST_DEBUG", false),
			Dir:        getEnv("HARVEST_DEBUG_DIR", os.TempDir()),
			S3Bucket:   os.Getenv("HARVEST_DEBUG_S3_BUCKET"),
			S3Region:   getEnv("HARVEST_DEBUG_S3_REGION", "us-east-1"),
			S3Endpoint: os.Getenv("HARVEST_DEBUG_S3_ENDPOINT"),
			AccessKey:  os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SCRAPE_CRON"),
			Interval: getEnvDuration("SCRAPE_INTERVAL", 0),
		},
		Recheck: RecheckConfig{
			Enabled:    getEnvBool("HARVEST_RECHECK", false),
			StaleAfter: getEnvDuration("HARVEST_RECHECK_STALE_AFTER", 24*time.Hour),
			BatchSize:  getEnvInt("HARVEST_RECHECK_BATCH", 20),
			Interval:   getEnvDuration("HARVEST_RECHECK_INTERVAL", 30*time.Minute),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "harvest.db"),
		LogPath:     getEnv("LOG_PATH", "harvest.log"),
		LogMaxBytes: int64(getEnvInt("LOG_MAX_BYTES", 2*1024*1024)),
		LogBackups:  getEnvInt("LOG_BACKUPS", 1),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MarketsFile: os.Getenv("HARVEST_MARKETS_FILE"),
	}

	site, err := LoadSite(getEnv("HARVEST_SITE_DIR", "config/sites"), getEnv("HARVEST_SITE", "estately"))
	if err != nil {
		return nil, err
	}
	cfg.Site = site

	return cfg, nil
}

// Verbose reports whether debug-level logging was requested.
func (c *Config) Verbose() bool {
	return c.Debug.Enabled || strings.EqualFold(c.LogLevel, "debug")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func siteFile(dir, id string) string {
	return filepath.Join(dir, id+".yaml")
}
