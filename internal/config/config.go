// Package config provides configuration loading and management for the application.
//
// The mainnet registry ships without an Ethereum L1 bridge address. With
// PROFILE=mainnet (the default) the server refuses to start unless
// ETHEREUM_BRIDGE_ADDRESS is set or REGISTRY_FILE supplies one.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourorg/swell-ops-ea/internal/fetch"
	"github.com/yourorg/swell-ops-ea/internal/registry"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// FeedConfig points a trading pair at an oracle; read from PRICE_FEEDS.
type FeedConfig struct {
	Address string                 `json:"address"`
	Network types.SupportedNetwork `json:"network"`
}

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port      string
	LogLevel  string
	LogFormat string

	// Registry profile and optional YAML override file
	Profile      types.Profile
	RegistryFile string

	// Network endpoints layered over the registry tables. The L1 bridge
	// address is required on mainnet unless RegistryFile provides it.
	EthereumRPCURL        string
	SwellchainRPCURL      string
	EthereumBridgeAddress string
	PriceFeeds            map[string]FeedConfig

	// Signer keys; a network without a key has no wallet
	SwellPrivateKey    string
	EthereumPrivateKey string

	// Upstream HTTP services
	NeptuneAPIBase string
	MerklURL       string

	// Orchestrator behaviour
	ApprovalPolicy      string
	ConfirmationTimeout time.Duration

	// Operation journal; empty address keeps it in memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Reporting webhook; empty URL disables it
	WebhookURL           string
	WebhookAPIKey        string
	WebhookBatchSize     int
	WebhookFlushInterval time.Duration

	// Key signing webhook batches; empty means an ephemeral key
	ReportSigningKey        string
	ReportSignatureValidity time.Duration

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Timeouts, circuit breaker and rate limiting settings
	RequestTimeout     time.Duration
	CircuitResetDelay  time.Duration
	CircuitMaxFailures int
	RateLimitEnabled   bool
	RateLimitRPS       float64
	RateLimitBurst     int

	// successful half-open calls needed to close a tripped circuit
	CircuitSuccessThreshold int

	priceFeedsErr error
}

// LoadDotEnv merges a dotenv file into the process environment. Variables
// already set are not overridden, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Load creates a new Config from environment variables
func Load() Config {
	feeds := map[string]FeedConfig{}
	var feedsErr error
	if raw := os.Getenv("PRICE_FEEDS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &feeds); err != nil {
			feedsErr = fmt.Errorf("PRICE_FEEDS: %w", err)
		}
	}

	return Config{
		Port:      GetEnvOrDefault("PORT", "8080"),
		LogLevel:  strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "json")),

		Profile:      types.Profile(strings.ToLower(GetEnvOrDefault("PROFILE", string(types.ProfileMainnet)))),
		RegistryFile: GetEnvOrDefault("REGISTRY_FILE", ""),

		EthereumRPCURL:        GetEnvOrDefault("ETHEREUM_RPC_URL", ""),
		SwellchainRPCURL:      GetEnvOrDefault("SWELLCHAIN_RPC_URL", ""),
		EthereumBridgeAddress: GetEnvOrDefault("ETHEREUM_BRIDGE_ADDRESS", ""),
		PriceFeeds:            feeds,

		SwellPrivateKey:    GetEnvOrDefault("SWELL_PRIVATE_KEY", ""),
		EthereumPrivateKey: GetEnvOrDefault("ETHEREUM_PRIVATE_KEY", ""),

		NeptuneAPIBase: strings.TrimRight(GetEnvOrDefault("NEPTUNE_API_BASE", ""), "/"),
		MerklURL:       GetEnvOrDefault("MERKL_URL", fetch.DefaultOpportunitiesURL),

		ApprovalPolicy:      strings.ToLower(GetEnvOrDefault("APPROVAL_POLICY", "max")),
		ConfirmationTimeout: GetEnvAsDuration("CONFIRMATION_TIMEOUT", 4*time.Minute),

		RedisAddr:     GetEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: GetEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvAsInt("REDIS_DB", 0),

		WebhookURL:           GetEnvOrDefault("WEBHOOK_URL", ""),
		WebhookAPIKey:        GetEnvOrDefault("WEBHOOK_API_KEY", ""),
		WebhookBatchSize:     GetEnvAsInt("WEBHOOK_BATCH_SIZE", 20),
		WebhookFlushInterval: GetEnvAsDuration("WEBHOOK_FLUSH_INTERVAL", time.Minute),

		ReportSigningKey:        GetEnvOrDefault("REPORT_SIGNING_KEY", ""),
		ReportSignatureValidity: GetEnvAsDuration("REPORT_SIGNATURE_VALIDITY", 24*time.Hour),

		OtelEndpoint: GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		RequestTimeout:     GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		CircuitResetDelay:  GetEnvAsDuration("CIRCUIT_RESET_DELAY", time.Minute),
		CircuitMaxFailures: GetEnvAsInt("CIRCUIT_MAX_FAILURES", 5),
		RateLimitEnabled:   GetEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:       GetEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     GetEnvAsInt("RATE_LIMIT_BURST", 10),

		CircuitSuccessThreshold: GetEnvAsInt("CIRCUIT_SUCCESS_THRESHOLD", 1),

		priceFeedsErr: feedsErr,
	}
}

// Validate reports settings that cannot be used as given.
func (c Config) Validate() error {
	if c.priceFeedsErr != nil {
		return c.priceFeedsErr
	}
	switch c.Profile {
	case types.ProfileMainnet, types.ProfileTestnet:
	default:
		return fmt.Errorf("PROFILE: unknown profile %q", c.Profile)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT: must be json or text, got %q", c.LogFormat)
	}
	if c.CircuitMaxFailures <= 0 {
		return fmt.Errorf("CIRCUIT_MAX_FAILURES: must be positive, got %d", c.CircuitMaxFailures)
	}
	if c.CircuitSuccessThreshold <= 0 {
		return fmt.Errorf("CIRCUIT_SUCCESS_THRESHOLD: must be positive, got %d", c.CircuitSuccessThreshold)
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_RPS and RATE_LIMIT_BURST")
	}
	for pair, feed := range c.PriceFeeds {
		if feed.Address == "" {
			return fmt.Errorf("PRICE_FEEDS: %s has no address", pair)
		}
	}
	if c.Profile == types.ProfileMainnet && c.EthereumBridgeAddress == "" && c.RegistryFile == "" {
		return fmt.Errorf("ETHEREUM_BRIDGE_ADDRESS: required with PROFILE=mainnet unless REGISTRY_FILE sets the Ethereum bridge")
	}
	return nil
}

// RegistryOverrides turns the network settings into the top override layer
// of the registry.
func (c Config) RegistryOverrides() registry.Overrides {
	o := registry.Overrides{}

	eth := registry.NetworkOverride{RPCURL: c.EthereumRPCURL, BridgeAddress: c.EthereumBridgeAddress}
	if eth != (registry.NetworkOverride{}) {
		if o.Networks == nil {
			o.Networks = map[types.SupportedNetwork]registry.NetworkOverride{}
		}
		o.Networks[types.NetworkEthereum] = eth
	}
	if c.SwellchainRPCURL != "" {
		if o.Networks == nil {
			o.Networks = map[types.SupportedNetwork]registry.NetworkOverride{}
		}
		o.Networks[types.NetworkSwellchain] = registry.NetworkOverride{RPCURL: c.SwellchainRPCURL}
	}

	if len(c.PriceFeeds) > 0 {
		o.PriceFeeds = make(map[string]registry.FeedOverride, len(c.PriceFeeds))
		for pair, feed := range c.PriceFeeds {
			o.PriceFeeds[pair] = registry.FeedOverride{Address: feed.Address, Network: feed.Network}
		}
	}
	return o
}

// PrivateKey returns the signer key configured for a network.
func (c Config) PrivateKey(network types.SupportedNetwork) string {
	switch network {
	case types.NetworkEthereum:
		return c.EthereumPrivateKey
	case types.NetworkSwellchain:
		return c.SwellPrivateKey
	default:
		return ""
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
