// Package config loads the engine's configuration from the environment,
// failing fast on any required key that is missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	engerrors "github.com/R3E-Network/resolution-engine/infrastructure/errors"
)

// Config is the fully resolved configuration for a resolver process.
type Config struct {
	NodeEnv string

	// Chain
	BNBRPCURL              string
	PrivateKey             string
	OracleRegistryAddress  string
	StakingManagerAddress  string
	ProposalManagerAddress string
	DefaultLivenessWindow  time.Duration
	ChainConfirmations     uint64

	// Peers
	EventManagerURL        string
	ProposalServiceURL     string
	DisputeServiceURL      string
	RewardServiceURL       string
	NotificationServiceURL string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string
	CacheBackend  string // "memory" or "redis"

	// Postgres
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresName     string

	// Ambient
	LogLevel    string
	LogFormat   string
	MetricsAddr string

	IndexerPollInterval time.Duration
	IndexerSeedLookback uint64
}

// Load reads the environment (and, outside production, a local .env file)
// into a Config, returning an *errors.EngineError of kind KindConfig
// describing every missing required key.
func Load() (*Config, error) {
	nodeEnv := getEnv("NODE_ENV", "development")
	if !strings.EqualFold(nodeEnv, "production") {
		_ = godotenv.Load()
	}

	var missing []string
	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		NodeEnv: nodeEnv,

		BNBRPCURL:              require("BNB_RPC_URL"),
		PrivateKey:             require("PRIVATE_KEY"),
		OracleRegistryAddress:  require("ORACLE_REGISTRY_ADDRESS"),
		StakingManagerAddress:  require("STAKING_MANAGER_ADDRESS"),
		ProposalManagerAddress: require("PROPOSAL_MANAGER_ADDRESS"),

		EventManagerURL:        require("EVENT_MANAGER_URL"),
		ProposalServiceURL:     require("PROPOSAL_SERVICE_URL"),
		DisputeServiceURL:      require("DISPUTE_SERVICE_URL"),
		RewardServiceURL:       require("REWARD_SERVICE_URL"),
		NotificationServiceURL: require("NOTIFICATION_SERVICE_URL"),

		RedisHost:     require("REDIS_HOST"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CacheBackend:  getEnv("CACHE_BACKEND", "redis"),

		PostgresHost:     require("POSTGRES_HOST"),
		PostgresUser:     require("POSTGRES_USER"),
		PostgresPassword: require("POSTGRES_PASSWORD"),
		PostgresName:     require("POSTGRES_NAME"),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		DefaultLivenessWindow: getDuration("DEFAULT_LIVENESS_WINDOW", 2*time.Hour),
		ChainConfirmations:    getUint64("CHAIN_CONFIRMATIONS", 1),
		IndexerPollInterval:   getDuration("INDEXER_POLL_INTERVAL", 10*time.Second),
		IndexerSeedLookback:   getUint64("INDEXER_SEED_LOOKBACK", 100),
	}

	redisPort, err := getPort("REDIS_PORT", 6379)
	if err != nil {
		missing = append(missing, "REDIS_PORT")
	}
	cfg.RedisPort = redisPort

	pgPort, err := getPort("POSTGRES_PORT", 5432)
	if err != nil {
		missing = append(missing, "POSTGRES_PORT")
	}
	cfg.PostgresPort = pgPort

	if len(missing) > 0 {
		return nil, engerrors.Config(
			fmt.Sprintf("missing required configuration keys: %s", strings.Join(missing, ", ")),
			nil,
		)
	}

	return cfg, nil
}

// PostgresDSN builds the lib/pq connection string for the resolved config.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresName,
		sslMode(c.NodeEnv),
	)
}

func sslMode(nodeEnv string) string {
	if strings.EqualFold(nodeEnv, "production") {
		return "require"
	}
	return "disable"
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getUint64(key string, defaultValue uint64) uint64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getPort(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid port %q for %s", raw, key)
	}
	return parsed, nil
}
