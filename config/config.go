// config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	JWTIssuer   string

	// CORS and WebSocket origin check; "*" allows all
	AllowedOrigins []string

	// Fraud scorer
	ScorerCommand       string
	ScorerArgs          []string
	ScorerTimeout       time.Duration
	ScorerMaxConcurrent int

	// Routing
	RoutingProvider string // arcgis, haversine
	RoutingURL      string
	RoutingAPIKey   string
	RoutingTimeout  time.Duration
	AverageSpeedKmh float64

	// Facility directory
	HospitalSource          string // FeatureServer layer URL or file:// GeoJSON path
	AmbulanceSource         string
	FacilityRefreshInterval time.Duration
	FacilityCacheTTL        time.Duration

	// Intake
	StoreTimeout        time.Duration
	RecentReportsLimit  int
	SubmissionRateLimit int // reports per minute per connection

	// Broadcast
	BroadcastBuffer int
	ObserverBuffer  int

	// Optional AMQP sink for accepted reports
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

// Signs development tokens only; Validate rejects it in production.
const developmentJWTSecret = "change-me"

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "2511"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/accidentwatch"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getEnv("JWT_SECRET", developmentJWTSecret),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),

		AllowedOrigins: getEnvAsCSV("ALLOWED_ORIGINS", []string{"*"}),

		ScorerCommand:       getEnv("SCORER_COMMAND", "python3"),
		ScorerArgs:          getEnvAsList("SCORER_ARGS", []string{"aiModel/check_fraud.py"}),
		ScorerTimeout:       getEnvAsDuration("SCORER_TIMEOUT", 5*time.Second),
		ScorerMaxConcurrent: getEnvAsInt("SCORER_MAX_CONCURRENT", 16),

		RoutingProvider: getEnv("ROUTING_PROVIDER", "arcgis"),
		RoutingURL:      getEnv("ROUTING_URL", "https://route.arcgis.com/arcgis/rest/services/World/ClosestFacility/NAServer/ClosestFacility_World/solveClosestFacility"),
		RoutingAPIKey:   getEnv("ROUTING_API_KEY", ""),
		RoutingTimeout:  getEnvAsDuration("ROUTING_TIMEOUT", 15*time.Second),
		AverageSpeedKmh: getEnvAsFloat("AVERAGE_SPEED_KMH", 60),

		HospitalSource:          getEnv("HOSPITAL_SOURCE", "https://services3.arcgis.com/UDCw00RKDRKPqASe/arcgis/rest/services/Cairo_Emergency_WFL1/FeatureServer/0"),
		AmbulanceSource:         getEnv("AMBULANCE_SOURCE", "https://services3.arcgis.com/UDCw00RKDRKPqASe/arcgis/rest/services/Cairo_Emergency_WFL1/FeatureServer/1"),
		FacilityRefreshInterval: getEnvAsDuration("FACILITY_REFRESH_INTERVAL", 15*time.Minute),
		FacilityCacheTTL:        getEnvAsDuration("FACILITY_CACHE_TTL", time.Hour),

		StoreTimeout:        getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
		RecentReportsLimit:  getEnvAsInt("RECENT_REPORTS_LIMIT", 100),
		SubmissionRateLimit: getEnvAsInt("SUBMISSION_RATE_LIMIT", 30),

		BroadcastBuffer: getEnvAsInt("BROADCAST_BUFFER", 1024),
		ObserverBuffer:  getEnvAsInt("OBSERVER_BUFFER", 256),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "accidents"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "accident.accepted"),
	}
}

// Validate rejects settings that are unsafe to run with.
func (c *Config) Validate() error {
	if c.Environment == "production" && c.JWTSecret == developmentJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Warnf("Invalid REDIS_URL, falling back to localhost: %v", err)
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	return redis.NewClient(opt)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Ignoring invalid integer for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Ignoring invalid number for %s: %q", key, value)
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("5s") or plain milliseconds ("5000").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	logrus.Warnf("Ignoring invalid duration for %s: %q", key, value)
	return defaultValue
}

// getEnvAsList splits on whitespace.
func getEnvAsList(key string, defaultValue []string) []string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return strings.Fields(value)
	}
	return defaultValue
}

func getEnvAsCSV(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
