package app

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// =========================== REQUIRED ===========================

	// Database configuration (required)
	DSN *string
	// Redis configuration (required)
	RedisAddr *string
	// Private key of the delegating EOA (required)
	PrivateKey *string
	// API secret for validating requests from frontend (required)
	APISecret *string
	// ERC-20 token the service transfers (required)
	TokenAddress *string

	// Bundler endpoint: BUNDLER_RPC_URL wins, otherwise derived from
	// BUNDLER_API_KEY. One of the two is required.
	BundlerRPCURL *string
	BundlerAPIKey *string

	// =========================== OPTIONAL ===========================

	// Logging configuration
	LogLevel *string

	// HTTP server configuration
	Port *string
	Host *string

	// Deployment environment ("dev", "staging", "prod")
	Environment *string

	// CORS configuration
	AllowOrigins *[]string

	// Target chain (default: Sepolia)
	ChainID *int64

	// EntryPoint and delegation implementation overrides
	EntryPointAddress *string
	DelegationAddress *string

	// How long to wait for a user operation receipt
	ReceiptTimeout *time.Duration

	// Migration configuration
	MigrationPath *string

	// Blockchain RPC URLs (all have defaults)
	SepoliaRPCURL         *string
	ArbitrumSepoliaRPCURL *string
	BaseSepoliaRPCURL     *string
	OptimismSepoliaRPCURL *string
}

func NewAppConfig() *AppConfig {
	config := &AppConfig{}

	// Load required configuration
	loadRequiredConfig(config)

	// Load optional configuration with defaults
	loadOptionalConfig(config)

	return config
}

// loadRequiredConfig loads all required configuration values and fails fast if any are missing
func loadRequiredConfig(config *AppConfig) {
	// Database URL (required)
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatalf("REQUIRED: DB_URL not set in environment")
	}
	config.DSN = &dsn

	// Redis URL (required)
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		log.Fatalf("REQUIRED: REDIS_URL not set in environment")
	}
	config.RedisAddr = &redisAddr

	// Private key of the delegating EOA (required)
	privateKey := os.Getenv("PRIVATE_KEY")
	if privateKey == "" {
		log.Fatalf("REQUIRED: PRIVATE_KEY not set in environment")
	}
	// Remove 0x prefix if it exists
	privateKey = strings.TrimPrefix(privateKey, "0x")
	config.PrivateKey = &privateKey

	// API secret for validating requests from frontend (required)
	apiSecret := os.Getenv("API_SECRET")
	if apiSecret == "" {
		log.Fatalf("REQUIRED: API_SECRET not set in environment")
	}
	config.APISecret = &apiSecret

	// Token to transfer (required)
	tokenAddress := os.Getenv("TOKEN_ADDRESS")
	if tokenAddress == "" {
		log.Fatalf("REQUIRED: TOKEN_ADDRESS not set in environment")
	}
	config.TokenAddress = &tokenAddress

	// Bundler endpoint (one of BUNDLER_RPC_URL / BUNDLER_API_KEY required)
	bundlerRPCURL := os.Getenv("BUNDLER_RPC_URL")
	bundlerAPIKey := os.Getenv("BUNDLER_API_KEY")
	if bundlerRPCURL == "" && bundlerAPIKey == "" {
		log.Fatalf("REQUIRED: set BUNDLER_RPC_URL or BUNDLER_API_KEY in environment")
	}
	config.BundlerRPCURL = &bundlerRPCURL
	config.BundlerAPIKey = &bundlerAPIKey

	// CORS origins (required in production, optional in development)
	loadCORSConfig(config)
}

// loadOptionalConfig loads all optional configuration values with sensible defaults
func loadOptionalConfig(config *AppConfig) {
	// HTTP server port (default: 8080)
	port := getEnvWithDefault("PORT", "8080")
	config.Port = &port

	host := getEnvWithDefault("HOST", "localhost:"+port)
	config.Host = &host

	environment := getEnvWithDefault("ENVIRONMENT", "dev")
	config.Environment = &environment

	// Log level (default: debug)
	// Available levels: "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"
	logLevel := getEnvWithDefault("LOG_LEVEL", "debug")
	config.LogLevel = &logLevel

	// Target chain (default: Sepolia)
	chainId := getChainID()
	config.ChainID = &chainId

	entryPointAddress := os.Getenv("ENTRYPOINT_ADDRESS")
	config.EntryPointAddress = &entryPointAddress

	delegationAddress := os.Getenv("DELEGATION_ADDRESS")
	config.DelegationAddress = &delegationAddress

	receiptTimeout := getReceiptTimeout()
	config.ReceiptTimeout = &receiptTimeout

	// Migration path (default: file://migrations)
	migrationPath := getEnvWithDefault("MIGRATION_PATH", "file://migrations")
	config.MigrationPath = &migrationPath

	// Load blockchain RPC URLs with defaults
	loadRPCConfig(config)
}

// loadCORSConfig handles CORS origins configuration with environment-specific behavior
func loadCORSConfig(config *AppConfig) {
	allowOriginsStr := os.Getenv("ALLOW_ORIGINS")
	var allowOrigins []string

	if allowOriginsStr != "" {
		// Parse comma-separated origins
		origins := strings.Split(allowOriginsStr, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowOrigins = append(allowOrigins, origin)
			}
		}
	} else {
		// Handle missing ALLOW_ORIGINS based on environment
		environment := os.Getenv("ENVIRONMENT")
		if environment == "development" || environment == "dev" || environment == "" {
			// Default to localhost in development
			allowOrigins = []string{"http://localhost:5173"}
		} else {
			log.Fatalf("REQUIRED: ALLOW_ORIGINS not set in environment (required in production)")
		}
	}

	config.AllowOrigins = &allowOrigins
}

// loadRPCConfig loads blockchain RPC URLs with public node defaults
func loadRPCConfig(config *AppConfig) {
	sepoliaRPCURL := getEnvWithDefault("SEPOLIA_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com")
	config.SepoliaRPCURL = &sepoliaRPCURL

	arbitrumSepoliaRPCURL := getEnvWithDefault("ARBITRUM_SEPOLIA_RPC_URL", "https://arbitrum-sepolia-rpc.publicnode.com")
	config.ArbitrumSepoliaRPCURL = &arbitrumSepoliaRPCURL

	baseSepoliaRPCURL := getEnvWithDefault("BASE_SEPOLIA_RPC_URL", "https://base-sepolia-rpc.publicnode.com")
	config.BaseSepoliaRPCURL = &baseSepoliaRPCURL

	optimismSepoliaRPCURL := getEnvWithDefault("OPTIMISM_SEPOLIA_RPC_URL", "https://optimism-sepolia-rpc.publicnode.com")
	config.OptimismSepoliaRPCURL = &optimismSepoliaRPCURL
}

// getChainID parses the target chain from environment with Sepolia fallback
func getChainID() int64 {
	chainIdStr := os.Getenv("CHAIN_ID")
	if chainIdStr == "" {
		return 11155111
	}

	if parsed, err := strconv.ParseInt(chainIdStr, 10, 64); err == nil {
		return parsed
	}

	log.Printf("Warning: Invalid CHAIN_ID value '%s', using Sepolia (11155111)", chainIdStr)
	return 11155111
}

// getReceiptTimeout parses the receipt wait duration in seconds
func getReceiptTimeout() time.Duration {
	timeoutStr := os.Getenv("RECEIPT_TIMEOUT")
	if timeoutStr == "" {
		return 120 * time.Second
	}

	if parsed, err := strconv.Atoi(timeoutStr); err == nil && parsed > 0 {
		return time.Duration(parsed) * time.Second
	}

	log.Printf("Warning: Invalid RECEIPT_TIMEOUT value '%s', using default 120 seconds", timeoutStr)
	return 120 * time.Second
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
