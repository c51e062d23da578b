package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the environment-variable surface of the enrichment/correlation
// pipeline: bus and store endpoints, plus the optional GeoIP/threat-intel
// toggle and per-host filter expression.
type Config struct {
	NatsURL string

	PgHost     string
	PgPort     int
	PgDatabase string
	PgUser     string
	PgPassword string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	Env      string
	FakeRDNS bool

	MaxBatchSize      int
	ProcessingTimeout time.Duration

	GeoEnrichEnabled bool
	GeoIPDBPath      string
	FilterExpr       string

	RedisAddr     string
	RedisPassword string

	JoinCacheMaxCve     int
	JoinCacheMaxPkg     int
	JoinCacheMaxEmitted int

	HealthPort int

	// CertFile, when set, is the bus mTLS client certificate whose
	// remaining lifetime is reported on /healthz. Empty disables the check.
	CertFile string
}

// Load reads .env (if present, matching the original Python service's
// load_dotenv() call) then the process environment, applying defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		NatsURL: getEnv("NATS_URL", "nats://localhost:4222"),

		PgHost:     getEnv("PG_HOST", "localhost"),
		PgPort:     getEnvInt("PG_PORT", 5432),
		PgDatabase: getEnv("PG_DB", "aegisflux"),
		PgUser:     getEnv("PG_USER", "postgres"),
		PgPassword: getEnv("PG_PASSWORD", "password"),

		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", "password"),

		Env:      getEnv("AF_ENV", "dev"),
		FakeRDNS: getEnvBool("AF_FAKE_RDNS", false),

		MaxBatchSize:      getEnvInt("MAX_BATCH_SIZE", 100),
		ProcessingTimeout: time.Duration(getEnvInt("PROCESSING_TIMEOUT", 30)) * time.Second,

		GeoEnrichEnabled: getEnvBool("AF_GEO_ENRICH_ENABLED", false),
		GeoIPDBPath:      getEnv("AF_GEOIP_DB_PATH", "./GeoLite2-City.mmdb"),
		FilterExpr:       getEnv("ETL_FILTER_EXPR", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JoinCacheMaxCve:     getEnvInt("JC_MAX_CVE_CACHE", 200_000),
		JoinCacheMaxPkg:     getEnvInt("JC_MAX_PKG_CACHE", 200_000),
		JoinCacheMaxEmitted: getEnvInt("JC_MAX_EMITTED_CACHE", 100_000),

		HealthPort: getEnvInt("HEALTH_PORT", 8080),

		CertFile: getEnv("AF_CERT_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
