package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

// Every variable load() reads. Tests blank them all so values leaking in
// from the host environment cannot skew assertions; t.Setenv restores the
// originals afterwards, and the getters treat empty the same as unset.
var loadEnvKeys = []string{
	"PORT", "BACKOFFICE_PORT", "APP_ENV", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
	"MONGO_URI", "MONGO_DB", "MONGO_CONNECT_TIMEOUT",
	"NETWORK", "MEMPOOL_API", "MEMPOOL_WS", "BLOCKSTREAM_API",
	"API_REQUEST_TIMEOUT", "BROADCAST_TIMEOUT",
	"HOUSE_EDGE", "MIN_BET_SATOSHIS", "MAX_BET_SATOSHIS",
	"MIN_MULTIPLIER", "MAX_MULTIPLIER", "MIN_CONFIRMATIONS_PAYOUT", "SEED_PUBLIC_WINDOW_DAYS",
	"MASTER_ENCRYPTION_KEY", "DEFAULT_TX_FEE_SATOSHIS", "FEE_BUFFER_SATOSHIS",
	"DUST_LIMIT_SATOSHIS", "PAYOUT_MAX_RETRIES", "PAYOUT_SETTLE_DELAY", "PAYOUT_WORKERS",
	"COLD_STORAGE_ADDRESS",
	"WS_PING_INTERVAL", "WS_PING_TIMEOUT", "WS_RECONNECT_DELAY", "WS_MAX_RECONNECT_DELAY",
	"ADMIN_API_KEY", "ADMIN_IP_WHITELIST", "ADMIN_JWT_SECRET",
	"ADMIN_SESSION_TTL", "ADMIN_OPERATOR_NAME", "ADMIN_OPERATOR_PASSWORD_BCRYPT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range loadEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.BackofficePort != "8081" {
		t.Errorf("BackofficePort = %q, want 8081", cfg.Server.BackofficePort)
	}
	if cfg.IsProd() {
		t.Error("default environment must not be production")
	}
	if cfg.Server.ReadTimeout != 10*time.Second || cfg.Server.WriteTimeout != 10*time.Second {
		t.Errorf("server timeouts = %v/%v, want 10s/10s",
			cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}

	if cfg.Mongo.URI != "mongodb://localhost:27017" {
		t.Errorf("Mongo URI = %q", cfg.Mongo.URI)
	}
	if cfg.Mongo.Database != "dicevault_test" {
		t.Errorf("Mongo database = %q, want dicevault_test outside production", cfg.Mongo.Database)
	}

	// Development defaults to testnet, and the explorer endpoints must
	// follow the network, not the environment.
	if cfg.IsMainnet() {
		t.Error("default network must be testnet")
	}
	if cfg.Explorer.MempoolAPI != "https://mempool.space/testnet/api" {
		t.Errorf("MempoolAPI = %q", cfg.Explorer.MempoolAPI)
	}
	if cfg.Explorer.MempoolWS != "wss://mempool.space/testnet/api/v1/ws" {
		t.Errorf("MempoolWS = %q", cfg.Explorer.MempoolWS)
	}
	if cfg.Explorer.BlockstreamAPI != "https://blockstream.info/testnet/api" {
		t.Errorf("BlockstreamAPI = %q", cfg.Explorer.BlockstreamAPI)
	}

	if cfg.Game.HouseEdge != 0.02 {
		t.Errorf("HouseEdge = %v, want 0.02", cfg.Game.HouseEdge)
	}
	if cfg.Game.MinBetSatoshis != 600 || cfg.Game.MaxBetSatoshis != 1_000_000 {
		t.Errorf("bet bounds = %d/%d, want 600/1000000",
			cfg.Game.MinBetSatoshis, cfg.Game.MaxBetSatoshis)
	}
	if cfg.Game.MinMultiplier != 1.1 || cfg.Game.MaxMultiplier != 98.0 {
		t.Errorf("multiplier bounds = %v/%v, want 1.1/98",
			cfg.Game.MinMultiplier, cfg.Game.MaxMultiplier)
	}
	if cfg.Game.MinConfirmations != 0 {
		t.Errorf("MinConfirmations = %d, want 0 (mempool acceptance)", cfg.Game.MinConfirmations)
	}
	if cfg.Game.SeedPublicWindowDays != 7 {
		t.Errorf("SeedPublicWindowDays = %d, want 7", cfg.Game.SeedPublicWindowDays)
	}

	if len(cfg.Vault.MasterKey) != 0 {
		t.Errorf("MasterKey defaulted to %d bytes, want unset", len(cfg.Vault.MasterKey))
	}
	if cfg.Vault.DefaultTxFee != 250 || cfg.Vault.FeeBuffer != 1000 || cfg.Vault.DustLimit != 546 {
		t.Errorf("fee defaults = %d/%d/%d, want 250/1000/546",
			cfg.Vault.DefaultTxFee, cfg.Vault.FeeBuffer, cfg.Vault.DustLimit)
	}
	if cfg.Vault.PayoutMaxRetries != 3 || cfg.Vault.PayoutWorkers != 4 {
		t.Errorf("payout defaults = %d retries / %d workers, want 3/4",
			cfg.Vault.PayoutMaxRetries, cfg.Vault.PayoutWorkers)
	}
	if cfg.Vault.PayoutSettleDelay != 3*time.Second {
		t.Errorf("PayoutSettleDelay = %v, want 3s", cfg.Vault.PayoutSettleDelay)
	}

	if cfg.WS.PingInterval != 30*time.Second || cfg.WS.PingTimeout != 20*time.Second {
		t.Errorf("WS ping = %v/%v, want 30s/20s", cfg.WS.PingInterval, cfg.WS.PingTimeout)
	}
	if cfg.WS.ReconnectDelay != 5*time.Second || cfg.WS.MaxReconnectDelay != 60*time.Second {
		t.Errorf("WS reconnect = %v/%v, want 5s/60s",
			cfg.WS.ReconnectDelay, cfg.WS.MaxReconnectDelay)
	}

	if cfg.Admin.SessionTTL != 8*time.Hour {
		t.Errorf("SessionTTL = %v, want 8h", cfg.Admin.SessionTTL)
	}
	if cfg.Admin.OperatorName != "admin" {
		t.Errorf("OperatorName = %q, want admin", cfg.Admin.OperatorName)
	}
}

func TestLoadProductionDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProd() {
		t.Fatal("expected production environment")
	}
	if !cfg.IsMainnet() {
		t.Error("production must default to mainnet")
	}
	if cfg.Explorer.MempoolAPI != "https://mempool.space/api" {
		t.Errorf("MempoolAPI = %q, want mainnet endpoint", cfg.Explorer.MempoolAPI)
	}
	if cfg.Mongo.Database != "dicevault" {
		t.Errorf("Mongo database = %q, want dicevault in production", cfg.Mongo.Database)
	}
}

func TestLoadExplicitNetworkBeatsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("NETWORK", NetworkTestnet)

	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// load() honors the explicit choice and derives matching endpoints;
	// Validate() is what rejects the combination at boot.
	if cfg.IsMainnet() {
		t.Error("explicit NETWORK=testnet was overridden")
	}
	if !strings.Contains(cfg.Explorer.MempoolAPI, "testnet") {
		t.Errorf("MempoolAPI = %q, want testnet endpoint", cfg.Explorer.MempoolAPI)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted testnet in production")
	}
}

func TestLoadRejectsUnparseableNumbers(t *testing.T) {
	cases := []struct {
		key, value, wantErr string
	}{
		{"MIN_BET_SATOSHIS", "abc", "invalid integer"},
		{"MAX_BET_SATOSHIS", "1e6", "invalid integer"},
		{"HOUSE_EDGE", "two percent", "invalid float"},
		{"PAYOUT_WORKERS", "4.5", "invalid integer"},
		{"SEED_PUBLIC_WINDOW_DAYS", "week", "invalid integer"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := load()
			if err == nil {
				t.Fatalf("load accepted %s=%q", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Errorf("error %q does not name %s", err, tc.key)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("WS_PING_INTERVAL", "fast")

	// Durations are tuning knobs, not correctness knobs: a typo falls back
	// to the default instead of refusing to boot.
	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WS.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s fallback", cfg.WS.PingInterval)
	}
}

func TestLoadMasterKey(t *testing.T) {
	clearEnv(t)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("MASTER_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))

	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Vault.MasterKey) != 32 {
		t.Fatalf("MasterKey = %d bytes, want 32", len(cfg.Vault.MasterKey))
	}

	clearEnv(t)
	t.Setenv("MASTER_ENCRYPTION_KEY", "%%%not-base64%%%")
	if _, err := load(); err == nil || !strings.Contains(err.Error(), "MASTER_ENCRYPTION_KEY") {
		t.Errorf("load on garbage key material: err = %v, want MASTER_ENCRYPTION_KEY error", err)
	}
}

// validProdConfig returns a configuration that passes Validate with the
// production guard active. Tests break exactly one rule at a time.
func validProdConfig() *Config {
	return &Config{
		Server: ServerConfig{Env: "production"},
		Explorer: ExplorerConfig{
			Network:    NetworkMainnet,
			MempoolAPI: "https://mempool.space/api",
		},
		Game: GameConfig{
			HouseEdge:      0.02,
			MinBetSatoshis: 600,
			MaxBetSatoshis: 1_000_000,
			MinMultiplier:  1.1,
			MaxMultiplier:  98.0,
		},
		Vault: VaultConfig{
			MasterKey:        make([]byte, 32),
			DustLimit:        546,
			PayoutMaxRetries: 3,
			PayoutWorkers:    4,
		},
		Admin: AdminConfig{
			APIKey:    "k",
			JWTSecret: "s",
		},
	}
}

func TestValidateAcceptsProductionConfig(t *testing.T) {
	if err := validProdConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing master key",
			mutate:  func(c *Config) { c.Vault.MasterKey = nil },
			wantErr: "MASTER_ENCRYPTION_KEY must be set",
		},
		{
			name:    "short master key",
			mutate:  func(c *Config) { c.Vault.MasterKey = make([]byte, 16) },
			wantErr: "32 bytes",
		},
		{
			name:    "unknown network",
			mutate:  func(c *Config) { c.Explorer.Network = "regtest" },
			wantErr: "NETWORK must be mainnet or testnet",
		},
		{
			name:    "testnet in production",
			mutate:  func(c *Config) { c.Explorer.Network = NetworkTestnet },
			wantErr: "NETWORK must be mainnet in production",
		},
		{
			name:    "testnet explorer in production",
			mutate:  func(c *Config) { c.Explorer.MempoolAPI = "https://mempool.space/testnet/api" },
			wantErr: "points at testnet in production",
		},
		{
			name:    "missing admin API key",
			mutate:  func(c *Config) { c.Admin.APIKey = "" },
			wantErr: "ADMIN_API_KEY must be set in production",
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Admin.JWTSecret = "" },
			wantErr: "ADMIN_JWT_SECRET must be set in production",
		},
		{
			name:    "house edge of one",
			mutate:  func(c *Config) { c.Game.HouseEdge = 1.0 },
			wantErr: "HOUSE_EDGE must be in [0, 1)",
		},
		{
			name:    "negative house edge",
			mutate:  func(c *Config) { c.Game.HouseEdge = -0.01 },
			wantErr: "HOUSE_EDGE must be in [0, 1)",
		},
		{
			name:    "inverted bet bounds",
			mutate:  func(c *Config) { c.Game.MaxBetSatoshis = c.Game.MinBetSatoshis },
			wantErr: "bet bounds invalid",
		},
		{
			name:    "multiplier below even money",
			mutate:  func(c *Config) { c.Game.MinMultiplier = 0.5 },
			wantErr: "multiplier bounds invalid",
		},
		{
			name:    "negative confirmations",
			mutate:  func(c *Config) { c.Game.MinConfirmations = -1 },
			wantErr: "MIN_CONFIRMATIONS_PAYOUT must be >= 0",
		},
		{
			name:    "zero dust limit",
			mutate:  func(c *Config) { c.Vault.DustLimit = 0 },
			wantErr: "DUST_LIMIT_SATOSHIS must be positive",
		},
		{
			name:    "zero payout workers",
			mutate:  func(c *Config) { c.Vault.PayoutWorkers = 0 },
			wantErr: "PAYOUT_WORKERS must be >= 1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validProdConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := validProdConfig()
	cfg.Vault.MasterKey = nil
	cfg.Admin.APIKey = ""
	cfg.Admin.JWTSecret = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted invalid config")
	}
	for _, want := range []string{"MASTER_ENCRYPTION_KEY", "ADMIN_API_KEY", "ADMIN_JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %s violation", err, want)
		}
	}
}

func TestValidateDevelopmentSkipsProductionGuard(t *testing.T) {
	cfg := validProdConfig()
	cfg.Server.Env = "development"
	cfg.Explorer.Network = NetworkTestnet
	cfg.Explorer.MempoolAPI = "https://mempool.space/testnet/api"
	cfg.Admin.APIKey = ""
	cfg.Admin.JWTSecret = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config rejected: %v", err)
	}
}
