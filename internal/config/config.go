// Package config handles application configuration from environment variables
// and the JSON config file under the Railgun home directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Contracts holds the Railgun contract addresses deployed on one network.
type Contracts struct {
	Proxy      string `json:"proxy"`
	Poseidon   string `json:"poseidon,omitempty"`
	Verifier   string `json:"verifier,omitempty"`
	RelayAdapt string `json:"relay_adapt,omitempty"`
}

// Config holds all application configuration
type Config struct {
	// Credentials
	PrivateKey     string // Hex-encoded, optional 0x prefix
	WalletPassword string // Default password for wallet vaults
	APIKey         string // Engine API key
	APIURL         string // Engine base URL

	// Networks
	RPCEndpoints   map[string]string
	Contracts      map[string]Contracts
	ChainIDs       map[string]int64
	DefaultNetwork string

	// Storage
	HomeDir     string
	DatabaseURL string // PostgreSQL connection string (optional, uses files if not set)

	// Server settings
	LogLevel     string
	LogFormat    string
	Transport    string // "stdio", "sse", "http"
	ListenAddr   string
	MetricsAddr  string
	OTLPEndpoint string

	// Pricing
	FallbackETHPriceUSD float64

	// SendRateLimit caps fund-moving tool calls per minute. Zero disables it.
	SendRateLimit int

	// ConfigFile is the path that was read, empty if none was found.
	ConfigFile string
}

// Defaults
const (
	DefaultAPIURL         = "https://api.railgun.org/v1"
	DefaultNetwork        = "ethereum"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultTransport      = "stdio"
	DefaultListenAddr     = ":8090"
	DefaultETHPriceUSD    = 2000.0
	DefaultSendRateLimit  = 20
	DefaultHomeDirName    = ".railgun"
	DefaultConfigFileName = "config.json"
)

// Transports accepted by the MCP server.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// DefaultRPCEndpoints are used when neither env nor file provide a URL.
var DefaultRPCEndpoints = map[string]string{
	"ethereum": "https://eth-mainnet.g.alchemy.com/v2/your-api-key",
	"arbitrum": "https://arb-mainnet.g.alchemy.com/v2/your-api-key",
	"polygon":  "https://polygon-mainnet.g.alchemy.com/v2/your-api-key",
	"bsc":      "https://bsc-dataseed.binance.org/",
}

// rpcEnvVars maps network names to the env var holding their RPC URL.
var rpcEnvVars = map[string]string{
	"ethereum": "ETHEREUM_RPC_URL",
	"arbitrum": "ARBITRUM_RPC_URL",
	"polygon":  "POLYGON_RPC_URL",
	"bsc":      "BSC_RPC_URL",
}

// DefaultContracts are the mainnet Railgun deployments.
var DefaultContracts = map[string]Contracts{
	"ethereum": {
		Proxy:      "0xFA7093CDD9EE6932B4eb2c9e1cde7CE00B1FA4b9",
		Poseidon:   "0x3e3a3D69dc66bA10737F531ed088954a9EC89d97",
		Verifier:   "0x87C7fd0635Fb4E2FE5A3b40d5a57E96cE01a0B7a",
		RelayAdapt: "0x4025ee6512DBbda97049Bcf5AA5D38C54aF6bE8a",
	},
	"arbitrum": {
		Proxy:      "0xFA7093CDD9EE6932B4eb2c9e1cde7CE00B1FA4b9",
		RelayAdapt: "0x5aD95C537b002770a39dea342c4bb2b68B1497aA",
	},
	"polygon": {
		Proxy:      "0x19b620929f97b7b990801496c3b361ca5def8c71",
		Poseidon:   "0x3e3a3D69dc66bA10737F531ed088954a9EC89d97",
		Verifier:   "0x87C7fd0635Fb4E2FE5A3b40d5a57E96cE01a0B7a",
		RelayAdapt: "0xc3f2C8F9d5F0705De706b1302B7a039e1e11aC88",
	},
	"bsc": {
		Proxy:      "0x590162bf4b50f6576a459b75309ee21d92178a10",
		Poseidon:   "0x3e3a3D69dc66bA10737F531ed088954a9EC89d97",
		Verifier:   "0x87C7fd0635Fb4E2FE5A3b40d5a57E96cE01a0B7a",
		RelayAdapt: "0x741936fb83DDf324636D3048b3E6bC800B8D9e12",
	},
}

// DefaultChainIDs maps network names to EVM chain IDs.
var DefaultChainIDs = map[string]int64{
	"ethereum": 1,
	"polygon":  137,
	"bsc":      56,
	"arbitrum": 42161,
}

// fileConfig mirrors the JSON config file layout.
type fileConfig struct {
	PrivateKey       string               `json:"private_key"`
	WalletPassword   string               `json:"wallet_password"`
	APIKey           string               `json:"api_key"`
	APIURL           string               `json:"railgun_api_url"`
	RPCEndpoints     map[string]string    `json:"rpc_endpoints"`
	RailgunContracts map[string]Contracts `json:"railgun_contracts"`
	DefaultNetwork   string               `json:"default_network"`
	DatabaseURL      string               `json:"database_url"`
	LogLevel         string               `json:"log_level"`
	LogFormat        string               `json:"log_format"`
	Transport        string               `json:"transport"`
	ListenAddr       string               `json:"listen_addr"`
	MetricsAddr      string               `json:"metrics_addr"`
	ETHPriceUSD      float64              `json:"eth_price_usd"`
	SendRateLimit    *int                 `json:"send_rate_limit"`
}

// Load reads configuration from the environment and the config file.
// Environment variables win over the file, the file wins over defaults.
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := defaults()
	cfg.HomeDir = getEnv("RAILGUN_HOME", defaultHomeDir())

	path := filepath.Join(cfg.HomeDir, DefaultConfigFileName)
	fc, err := readFile(path)
	switch {
	case err == nil:
		cfg.ConfigFile = path
		cfg.applyFile(fc)
	case errors.Is(err, os.ErrNotExist):
	default:
		slog.Warn("failed to load config file", "path", path, "error", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{
		APIURL:              DefaultAPIURL,
		RPCEndpoints:        make(map[string]string, len(DefaultRPCEndpoints)),
		Contracts:           make(map[string]Contracts, len(DefaultContracts)),
		ChainIDs:            make(map[string]int64, len(DefaultChainIDs)),
		DefaultNetwork:      DefaultNetwork,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
		Transport:           DefaultTransport,
		ListenAddr:          DefaultListenAddr,
		FallbackETHPriceUSD: DefaultETHPriceUSD,
		SendRateLimit:       DefaultSendRateLimit,
	}
	for k, v := range DefaultRPCEndpoints {
		cfg.RPCEndpoints[k] = v
	}
	for k, v := range DefaultContracts {
		cfg.Contracts[k] = v
	}
	for k, v := range DefaultChainIDs {
		cfg.ChainIDs[k] = v
	}
	return cfg
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultHomeDirName
	}
	return filepath.Join(home, DefaultHomeDirName)
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured home dir
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}

func (c *Config) applyFile(fc *fileConfig) {
	setIf(&c.PrivateKey, fc.PrivateKey)
	setIf(&c.WalletPassword, fc.WalletPassword)
	setIf(&c.APIKey, fc.APIKey)
	setIf(&c.APIURL, fc.APIURL)
	setIf(&c.DefaultNetwork, fc.DefaultNetwork)
	setIf(&c.DatabaseURL, fc.DatabaseURL)
	setIf(&c.LogLevel, fc.LogLevel)
	setIf(&c.LogFormat, fc.LogFormat)
	setIf(&c.Transport, fc.Transport)
	setIf(&c.ListenAddr, fc.ListenAddr)
	setIf(&c.MetricsAddr, fc.MetricsAddr)
	if fc.ETHPriceUSD > 0 {
		c.FallbackETHPriceUSD = fc.ETHPriceUSD
	}
	if fc.SendRateLimit != nil {
		c.SendRateLimit = *fc.SendRateLimit
	}
	for network, u := range fc.RPCEndpoints {
		if u != "" {
			c.RPCEndpoints[strings.ToLower(network)] = u
		}
	}
	// Contract overrides merge per address so a file can patch one field.
	for network, override := range fc.RailgunContracts {
		network = strings.ToLower(network)
		cur := c.Contracts[network]
		setIf(&cur.Proxy, override.Proxy)
		setIf(&cur.Poseidon, override.Poseidon)
		setIf(&cur.Verifier, override.Verifier)
		setIf(&cur.RelayAdapt, override.RelayAdapt)
		c.Contracts[network] = cur
	}
}

func (c *Config) applyEnv() {
	setIf(&c.PrivateKey, os.Getenv("RAILGUN_PRIVATE_KEY"))
	setIf(&c.WalletPassword, os.Getenv("RAILGUN_WALLET_PASSWORD"))
	setIf(&c.APIKey, os.Getenv("RAILGUN_API_KEY"))
	setIf(&c.APIURL, os.Getenv("RAILGUN_API_URL"))
	setIf(&c.DefaultNetwork, os.Getenv("RAILGUN_DEFAULT_NETWORK"))
	setIf(&c.DatabaseURL, os.Getenv("DATABASE_URL"))
	setIf(&c.LogLevel, os.Getenv("LOG_LEVEL"))
	setIf(&c.LogFormat, os.Getenv("LOG_FORMAT"))
	setIf(&c.Transport, os.Getenv("MCP_TRANSPORT"))
	setIf(&c.ListenAddr, os.Getenv("MCP_LISTEN_ADDR"))
	setIf(&c.MetricsAddr, os.Getenv("METRICS_ADDR"))
	setIf(&c.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	c.FallbackETHPriceUSD = getEnvFloat("ETH_PRICE_USD", c.FallbackETHPriceUSD)
	c.SendRateLimit = getEnvInt("SEND_RATE_LIMIT", c.SendRateLimit)
	for network, key := range rpcEnvVars {
		setIf2(c.RPCEndpoints, network, os.Getenv(key))
	}
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey != "" {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 || !isHex(key) {
			return fmt.Errorf("RAILGUN_PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	for _, network := range c.Networks() {
		raw := c.RPCEndpoints[network]
		if raw == "" {
			return fmt.Errorf("RPC URL for %s is required", network)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("RPC URL for %s is not a valid URL", network)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("RPC URL for %s must use http(s) or ws(s)", network)
		}
	}

	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("RAILGUN_API_URL must be an absolute URL")
		}
	}

	switch c.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		return fmt.Errorf("MCP_TRANSPORT must be one of stdio, sse, http (got %q)", c.Transport)
	}

	if _, ok := c.RPCEndpoints[c.DefaultNetwork]; !ok {
		return fmt.Errorf("default network %q has no RPC endpoint", c.DefaultNetwork)
	}
	return nil
}

// Networks returns the configured network names in stable order.
func (c *Config) Networks() []string {
	names := make([]string, 0, len(c.RPCEndpoints))
	for name := range c.RPCEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RPCURL returns the RPC URL for a network.
func (c *Config) RPCURL(network string) string {
	return c.RPCEndpoints[network]
}

// ChainID returns the chain ID for a network, defaulting to mainnet.
func (c *Config) ChainID(network string) int64 {
	if id, ok := c.ChainIDs[network]; ok {
		return id
	}
	return 1
}

// RailgunProxy returns the Railgun proxy contract address for a network.
func (c *Config) RailgunProxy(network string) string {
	return c.Contracts[network].Proxy
}

// EngineConfigured reports whether private-pool operations can be served.
func (c *Config) EngineConfigured() bool {
	return c.APIKey != "" && c.APIURL != ""
}

// Summary is the redacted configuration view exposed to tool callers.
type Summary struct {
	APIKeySet         bool              `json:"api_key_set"`
	WalletPasswordSet bool              `json:"wallet_password_set"`
	PrivateKeySet     bool              `json:"private_key_set"`
	APIURL            string            `json:"api_url"`
	RPCEndpoints      map[string]string `json:"rpc_endpoints"`
	DefaultNetwork    string            `json:"default_network"`
	Storage           string            `json:"storage"`
	ConfigFile        string            `json:"config_file,omitempty"`
}

// Summary returns the configuration with secrets reduced to booleans and
// RPC URLs reduced to host names (API keys often live in the path).
func (c *Config) Summary() Summary {
	hosts := make(map[string]string, len(c.RPCEndpoints))
	for network, raw := range c.RPCEndpoints {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			hosts[network] = u.Host
		} else {
			hosts[network] = raw
		}
	}
	storage := "files"
	if c.DatabaseURL != "" {
		storage = "postgres"
	}
	return Summary{
		APIKeySet:         c.APIKey != "",
		WalletPasswordSet: c.WalletPassword != "",
		PrivateKeySet:     c.PrivateKey != "",
		APIURL:            c.APIURL,
		RPCEndpoints:      hosts,
		DefaultNetwork:    c.DefaultNetwork,
		Storage:           storage,
		ConfigFile:        c.ConfigFile,
	}
}

// WriteFile writes a starter config file, refusing to overwrite one.
func WriteFile(path string, fc map[string]any) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setIf2(m map[string]string, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
