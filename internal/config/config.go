package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Risk     RiskConfig
	GeoIP    GeoIPConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// RiskConfig is the scoring engine's configuration surface. All values
// are read once at startup; there is no hot reload.
type RiskConfig struct {
	RejectThreshold    float64
	ChallengeThreshold float64
	SmoothingAlpha     float64
	CacheTTL           time.Duration
	WeightIP           float64
	WeightUA           float64
	WeightRTT          float64
	MaliciousASNs      []string
	MaliciousCountries []string
	// MinBrowserVersions maps browser name to the lowest acceptable
	// major version, e.g. {"Chrome": 85, "Firefox": 78}.
	MinBrowserVersions map[string]int
	LogisticSteepness  float64
	LogisticMidpoint   float64
	EventRetention     time.Duration
	AssessTimeout      time.Duration
}

type GeoIPConfig struct {
	ASNPath     string
	CountryPath string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "riskgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Risk: RiskConfig{
			RejectThreshold:    getEnvAsFloat("RISK_REJECT_THRESHOLD", 0.7),
			ChallengeThreshold: getEnvAsFloat("RISK_CHALLENGE_THRESHOLD", 0.4),
			SmoothingAlpha:     getEnvAsFloat("RISK_SMOOTHING_ALPHA", 1.0),
			CacheTTL:           getEnvAsDuration("RISK_CACHE_TTL", 60*time.Second),
			WeightIP:           getEnvAsFloat("RISK_WEIGHT_IP", 0.5),
			WeightUA:           getEnvAsFloat("RISK_WEIGHT_UA", 0.3),
			WeightRTT:          getEnvAsFloat("RISK_WEIGHT_RTT", 0.2),
			MaliciousASNs:      getEnvAsList("RISK_MALICIOUS_ASNS", nil),
			MaliciousCountries: getEnvAsList("RISK_MALICIOUS_COUNTRIES", nil),
			MinBrowserVersions: getEnvAsVersionTable("RISK_MIN_BROWSER_VERSIONS", map[string]int{
				"Chrome":  85,
				"Firefox": 78,
			}),
			LogisticSteepness: getEnvAsFloat("RISK_LOGISTIC_STEEPNESS", 4.0),
			LogisticMidpoint:  getEnvAsFloat("RISK_LOGISTIC_MIDPOINT", 0.42),
			EventRetention:    getEnvAsDuration("RISK_EVENT_RETENTION", 90*24*time.Hour),
			AssessTimeout:     getEnvAsDuration("ASSESS_TIMEOUT", 2*time.Second),
		},
		GeoIP: GeoIPConfig{
			ASNPath:     getEnv("GEOIP_ASN_DB", ""),
			CountryPath: getEnv("GEOIP_COUNTRY_DB", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := cfg.Risk.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate fails fast on configuration that would only surface as
// nonsense decisions at scoring time.
func (r *RiskConfig) validate() error {
	if r.RejectThreshold <= r.ChallengeThreshold {
		return fmt.Errorf("RISK_REJECT_THRESHOLD (%.2f) must exceed RISK_CHALLENGE_THRESHOLD (%.2f)",
			r.RejectThreshold, r.ChallengeThreshold)
	}
	if r.SmoothingAlpha <= 0 {
		return fmt.Errorf("RISK_SMOOTHING_ALPHA must be positive, got %v", r.SmoothingAlpha)
	}
	if r.CacheTTL <= 0 {
		return fmt.Errorf("RISK_CACHE_TTL must be positive, got %v", r.CacheTTL)
	}
	sum := r.WeightIP + r.WeightUA + r.WeightRTT
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("feature weights must sum to 1, got %.4f", sum)
	}
	if r.WeightIP < 0 || r.WeightUA < 0 || r.WeightRTT < 0 {
		return fmt.Errorf("feature weights must be non-negative")
	}
	if r.LogisticSteepness <= 0 {
		return fmt.Errorf("RISK_LOGISTIC_STEEPNESS must be positive, got %v", r.LogisticSteepness)
	}
	if r.LogisticMidpoint <= 0 || r.LogisticMidpoint >= 1 {
		return fmt.Errorf("RISK_LOGISTIC_MIDPOINT must be in (0, 1), got %v", r.LogisticMidpoint)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList parses a comma-separated value, e.g. "AS12345,AS67890".
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsVersionTable parses "Name:version" pairs, e.g.
// "Chrome:85,Firefox:78". Malformed pairs are skipped.
func getEnvAsVersionTable(key string, defaultVal map[string]int) map[string]int {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	table := make(map[string]int)
	for _, pair := range strings.Split(value, ",") {
		name, version, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(version))
		if err != nil {
			continue
		}
		table[strings.TrimSpace(name)] = v
	}
	return table
}
