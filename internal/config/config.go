// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Network identifiers. The explorer endpoints must serve the same chain.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        // e.g. "8080"
	BackofficePort string        // e.g. "8081"
	Env            string        // "development" | "production"
	ReadTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s
}

// MongoConfig holds document store connection settings.
type MongoConfig struct {
	URI            string        // e.g. "mongodb://localhost:27017"
	Database       string        // default "dicevault" (prod) / "dicevault_test"
	ConnectTimeout time.Duration // default 10s
}

// ExplorerConfig holds the mempool/block explorer endpoints.
// MempoolAPI is the primary REST endpoint, BlockstreamAPI the
// broadcast fallback; both must serve the configured network.
type ExplorerConfig struct {
	Network          string        // "mainnet" | "testnet"
	MempoolAPI       string        // primary REST base URL
	MempoolWS        string        // live feed WebSocket URL
	BlockstreamAPI   string        // secondary REST base URL
	RequestTimeout   time.Duration // per REST call, default 10s
	BroadcastTimeout time.Duration // POST /tx deadline, default 15s
}

// GameConfig holds bet validation bounds and the house edge.
type GameConfig struct {
	HouseEdge            float64 // e.g. 0.02 = 2%
	MinBetSatoshis       int64   // default 600
	MaxBetSatoshis       int64   // default 1_000_000
	MinMultiplier        float64 // default 1.1
	MaxMultiplier        float64 // default 98.0
	MinConfirmations     int     // confirmations required before settle/payout, 0 = mempool
	SeedPublicWindowDays int     // how many past days the fairness view exposes
}

// VaultConfig holds key material and payout construction settings.
type VaultConfig struct {
	MasterKey          []byte        // 32 bytes, decoded from base64 env value
	DefaultTxFee       int64         // satoshis, default 250
	FeeBuffer          int64         // UTXO selection margin, default 1000
	DustLimit          int64         // change below this is folded into the fee, default 546
	PayoutMaxRetries   int           // default 3
	PayoutSettleDelay  time.Duration // explorer UTXO index catch-up, default 3s
	PayoutWorkers      int           // worker pool size, default 4
	ColdStorageAddress string        // default withdraw destination, may be empty
}

// WSConfig holds liveness settings for the explorer WebSocket feed.
type WSConfig struct {
	PingInterval      time.Duration // default 30s
	PingTimeout       time.Duration // default 20s
	ReconnectDelay    time.Duration // initial backoff, default 5s
	MaxReconnectDelay time.Duration // backoff cap, default 60s
}

// AdminConfig holds backoffice access control settings.
type AdminConfig struct {
	APIKey             string        // required in production
	AllowedIPs         string        // comma-separated; "" = allow all
	JWTSecret          string        // operator session tokens
	SessionTTL         time.Duration // default 8h
	OperatorName       string        // default "admin"
	OperatorPassBcrypt string        // bcrypt hash of the operator password
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server   ServerConfig
	Mongo    MongoConfig
	Explorer ExplorerConfig
	Game     GameConfig
	Vault    VaultConfig
	WS       WSConfig
	Admin    AdminConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// IsMainnet returns true when the configured network is Bitcoin mainnet.
func (c *Config) IsMainnet() bool {
	return c.Explorer.Network == NetworkMainnet
}

// Validate checks that all required configuration values are present and valid.
func (c *Config) Validate() error {
	var errs []error

	// Master key is mandatory: every vault key at rest depends on it.
	if len(c.Vault.MasterKey) == 0 {
		errs = append(errs, errors.New("MASTER_ENCRYPTION_KEY must be set"))
	} else if len(c.Vault.MasterKey) != 32 {
		errs = append(errs, fmt.Errorf(
			"MASTER_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(c.Vault.MasterKey)))
	}

	if c.Explorer.Network != NetworkMainnet && c.Explorer.Network != NetworkTestnet {
		errs = append(errs, fmt.Errorf("NETWORK must be mainnet or testnet, got %q", c.Explorer.Network))
	}

	// Production guard: signing mainnet funds against a testnet explorer is
	// the one failure mode that cannot be allowed past boot.
	if c.IsProd() {
		if !c.IsMainnet() {
			errs = append(errs, errors.New("NETWORK must be mainnet in production"))
		}
		if strings.Contains(c.Explorer.MempoolAPI, "testnet") {
			errs = append(errs, fmt.Errorf(
				"MEMPOOL_API %q points at testnet in production", c.Explorer.MempoolAPI))
		}
		if c.Admin.APIKey == "" {
			errs = append(errs, errors.New("ADMIN_API_KEY must be set in production"))
		}
		if c.Admin.JWTSecret == "" {
			errs = append(errs, errors.New("ADMIN_JWT_SECRET must be set in production"))
		}
	}

	if c.Game.HouseEdge < 0 || c.Game.HouseEdge >= 1 {
		errs = append(errs, fmt.Errorf(
			"HOUSE_EDGE must be in [0, 1), got %.4f", c.Game.HouseEdge))
	}
	if c.Game.MinBetSatoshis <= 0 || c.Game.MaxBetSatoshis <= c.Game.MinBetSatoshis {
		errs = append(errs, fmt.Errorf(
			"bet bounds invalid: min=%d max=%d", c.Game.MinBetSatoshis, c.Game.MaxBetSatoshis))
	}
	if c.Game.MinMultiplier < 1 || c.Game.MaxMultiplier <= c.Game.MinMultiplier {
		errs = append(errs, fmt.Errorf(
			"multiplier bounds invalid: min=%.2f max=%.2f", c.Game.MinMultiplier, c.Game.MaxMultiplier))
	}
	if c.Game.MinConfirmations < 0 {
		errs = append(errs, fmt.Errorf(
			"MIN_CONFIRMATIONS_PAYOUT must be >= 0, got %d", c.Game.MinConfirmations))
	}

	if c.Vault.DustLimit <= 0 {
		errs = append(errs, fmt.Errorf("DUST_LIMIT_SATOSHIS must be positive, got %d", c.Vault.DustLimit))
	}
	if c.Vault.PayoutMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("PAYOUT_MAX_RETRIES must be >= 1, got %d", c.Vault.PayoutMaxRetries))
	}
	if c.Vault.PayoutWorkers < 1 {
		errs = append(errs, fmt.Errorf("PAYOUT_WORKERS must be >= 1, got %d", c.Vault.PayoutWorkers))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	// A .env file is a development convenience; in production everything
	// arrives through real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		BackofficePort: getEnv("BACKOFFICE_PORT", "8081"),
		Env:            getEnv("APP_ENV", "development"),
		ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
	}
	prod := cfg.Server.Env == "production"

	// ── Mongo ─────────────────────────────────────────────────────────────────
	defaultDB := "dicevault_test"
	if prod {
		defaultDB = "dicevault"
	}
	cfg.Mongo = MongoConfig{
		URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		Database:       getEnv("MONGO_DB", defaultDB),
		ConnectTimeout: getDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
	}

	// ── Explorer ──────────────────────────────────────────────────────────────
	defaultNet := NetworkTestnet
	if prod {
		defaultNet = NetworkMainnet
	}
	network := getEnv("NETWORK", defaultNet)

	mempoolAPI := "https://mempool.space/api"
	mempoolWS := "wss://mempool.space/api/v1/ws"
	blockstreamAPI := "https://blockstream.info/api"
	if network == NetworkTestnet {
		mempoolAPI = "https://mempool.space/testnet/api"
		mempoolWS = "wss://mempool.space/testnet/api/v1/ws"
		blockstreamAPI = "https://blockstream.info/testnet/api"
	}

	cfg.Explorer = ExplorerConfig{
		Network:          network,
		MempoolAPI:       getEnv("MEMPOOL_API", mempoolAPI),
		MempoolWS:        getEnv("MEMPOOL_WS", mempoolWS),
		BlockstreamAPI:   getEnv("BLOCKSTREAM_API", blockstreamAPI),
		RequestTimeout:   getDuration("API_REQUEST_TIMEOUT", 10*time.Second),
		BroadcastTimeout: getDuration("BROADCAST_TIMEOUT", 15*time.Second),
	}

	// ── Game ──────────────────────────────────────────────────────────────────
	houseEdge, err := getFloat("HOUSE_EDGE", 0.02)
	if err != nil {
		return nil, fmt.Errorf("HOUSE_EDGE: %w", err)
	}
	minBet, err := getInt64("MIN_BET_SATOSHIS", 600)
	if err != nil {
		return nil, fmt.Errorf("MIN_BET_SATOSHIS: %w", err)
	}
	maxBet, err := getInt64("MAX_BET_SATOSHIS", 1_000_000)
	if err != nil {
		return nil, fmt.Errorf("MAX_BET_SATOSHIS: %w", err)
	}
	minMult, err := getFloat("MIN_MULTIPLIER", 1.1)
	if err != nil {
		return nil, fmt.Errorf("MIN_MULTIPLIER: %w", err)
	}
	maxMult, err := getFloat("MAX_MULTIPLIER", 98.0)
	if err != nil {
		return nil, fmt.Errorf("MAX_MULTIPLIER: %w", err)
	}
	minConf, err := getInt("MIN_CONFIRMATIONS_PAYOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("MIN_CONFIRMATIONS_PAYOUT: %w", err)
	}
	seedWindow, err := getInt("SEED_PUBLIC_WINDOW_DAYS", 7)
	if err != nil {
		return nil, fmt.Errorf("SEED_PUBLIC_WINDOW_DAYS: %w", err)
	}

	cfg.Game = GameConfig{
		HouseEdge:            houseEdge,
		MinBetSatoshis:       minBet,
		MaxBetSatoshis:       maxBet,
		MinMultiplier:        minMult,
		MaxMultiplier:        maxMult,
		MinConfirmations:     minConf,
		SeedPublicWindowDays: seedWindow,
	}

	// ── Vault ─────────────────────────────────────────────────────────────────
	var masterKey []byte
	if raw := os.Getenv("MASTER_ENCRYPTION_KEY"); raw != "" {
		masterKey, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("MASTER_ENCRYPTION_KEY: invalid base64: %w", err)
		}
	}
	txFee, err := getInt64("DEFAULT_TX_FEE_SATOSHIS", 250)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TX_FEE_SATOSHIS: %w", err)
	}
	feeBuffer, err := getInt64("FEE_BUFFER_SATOSHIS", 1000)
	if err != nil {
		return nil, fmt.Errorf("FEE_BUFFER_SATOSHIS: %w", err)
	}
	dust, err := getInt64("DUST_LIMIT_SATOSHIS", 546)
	if err != nil {
		return nil, fmt.Errorf("DUST_LIMIT_SATOSHIS: %w", err)
	}
	retries, err := getInt("PAYOUT_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("PAYOUT_MAX_RETRIES: %w", err)
	}
	workers, err := getInt("PAYOUT_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("PAYOUT_WORKERS: %w", err)
	}

	cfg.Vault = VaultConfig{
		MasterKey:          masterKey,
		DefaultTxFee:       txFee,
		FeeBuffer:          feeBuffer,
		DustLimit:          dust,
		PayoutMaxRetries:   retries,
		PayoutSettleDelay:  getDuration("PAYOUT_SETTLE_DELAY", 3*time.Second),
		PayoutWorkers:      workers,
		ColdStorageAddress: getEnv("COLD_STORAGE_ADDRESS", ""),
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	cfg.WS = WSConfig{
		PingInterval:      getDuration("WS_PING_INTERVAL", 30*time.Second),
		PingTimeout:       getDuration("WS_PING_TIMEOUT", 20*time.Second),
		ReconnectDelay:    getDuration("WS_RECONNECT_DELAY", 5*time.Second),
		MaxReconnectDelay: getDuration("WS_MAX_RECONNECT_DELAY", 60*time.Second),
	}

	// ── Admin ─────────────────────────────────────────────────────────────────
	cfg.Admin = AdminConfig{
		APIKey:             getEnv("ADMIN_API_KEY", ""),
		AllowedIPs:         getEnv("ADMIN_IP_WHITELIST", ""),
		JWTSecret:          getEnv("ADMIN_JWT_SECRET", ""),
		SessionTTL:         getDuration("ADMIN_SESSION_TTL", 8*time.Hour),
		OperatorName:       getEnv("ADMIN_OPERATOR_NAME", "admin"),
		OperatorPassBcrypt: getEnv("ADMIN_OPERATOR_PASSWORD_BCRYPT", ""),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Log warning and fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
