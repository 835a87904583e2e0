package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration
	SiteURL     string

	SessionTTL          time.Duration
	SessionBackend      string // redis|memory
	VerificationBackend string // redis|memory

	FeedBase    string
	FeedKey     string
	FeedRPS     int
	Workers     int
	ReviewCount int
	IngestSlugs []string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric env value")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/clarus?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		SiteURL:     strings.TrimRight(env("SITE_URL", "https://clarusvitae.com"), "/"),

		SessionTTL:          time.Duration(atoi("SESSION_TTL_SECONDS", 86400)) * time.Second,
		SessionBackend:      env("SESSION_BACKEND", "redis"),
		VerificationBackend: env("VERIFICATION_BACKEND", "redis"),

		FeedBase:    env("FEED_BASE_URL", "https://feed.clarusvitae.com/v1"),
		FeedKey:     env("FEED_API_KEY", ""),
		FeedRPS:     atoi("FEED_RPS", 5),
		Workers:     atoi("INGEST_WORKERS", 8),
		ReviewCount: atoi("INGEST_REVIEW_COUNT", 100),
		IngestSlugs: splitList(os.Getenv("INGEST_PROPERTY_SLUGS")),
	}
	if c.SessionBackend != "redis" && c.SessionBackend != "memory" {
		log.Warn().Str("backend", c.SessionBackend).Msg("unknown SESSION_BACKEND, using redis")
		c.SessionBackend = "redis"
	}
	if c.VerificationBackend != "redis" && c.VerificationBackend != "memory" {
		log.Warn().Str("backend", c.VerificationBackend).Msg("unknown VERIFICATION_BACKEND, using redis")
		c.VerificationBackend = "redis"
	}
	return c
}

// IsDev reports whether APP_ENV selects the development profile.
func (c Config) IsDev() bool { return c.AppEnv == "dev" || c.AppEnv == "development" }

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// splitList parses a comma or whitespace separated list, dropping blanks.
func splitList(s string) []string {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' })
	if len(f) == 0 {
		return nil
	}
	return f
}
