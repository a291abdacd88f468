// Package config loads node configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
)

// Clock modes.
const (
	ClockWall   = "wall"   // block time follows wall time
	ClockManual = "manual" // block time only moves when told to
)

// Storage modes.
const (
	StorageConsole  = "console"
	StoragePostgres = "postgres"
	StorageNone     = "none"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Chain
	ClockMode         string
	ClockSyncInterval time.Duration
	ChainStartTime    uint64 // zero means wall-clock now
	GenesisFund       *uint256.Int

	// Protocol
	AdminAddress     string
	Reporters        []string
	Curators         []string
	CurationRequired bool
	MinLiquidity     *uint256.Int

	// Fees, in basis points of every trade fee
	FeeProtocolBps uint64
	FeeCreatorBps  uint64
	FeeLPBps       uint64

	// Oracle
	OracleLiveness       time.Duration
	OracleReporterBond   *uint256.Int
	OracleDisputerBond   *uint256.Int
	OracleWinnerShareBps uint64

	// Read API and event stream
	CacheTTL       time.Duration
	CacheMaxItems  int64
	WSSendBuffer   int
	WSPingInterval time.Duration
	WSPongTimeout  time.Duration

	// Storage
	StorageMode              string // "postgres", "console" or "none"
	StorageQueueSize         int
	StorageTimeout           time.Duration
	StorageFailureThreshold  int // consecutive failed writes before /ready fails
	StorageRecoveryThreshold int // consecutive good writes before it passes again
	PostgresHost             string
	PostgresPort             string
	PostgresUser             string
	PostgresPass             string
	PostgresDB               string
	PostgresSSL              string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		ClockMode:         getEnvOrDefault("CLOCK_MODE", ClockWall),
		ClockSyncInterval: getDurationOrDefault("CLOCK_SYNC_INTERVAL", time.Second),
		ChainStartTime:    getUint64OrDefault("CHAIN_START_TIME", 0),
		GenesisFund:       getAmountOrDefault("GENESIS_FUND", fixed.Units(1_000_000)),

		AdminAddress:     getEnvOrDefault("ADMIN_ADDRESS", "0x00000000000000000000000000000000000ad000"),
		Reporters:        getListOrDefault("ORACLE_REPORTERS", nil),
		Curators:         getListOrDefault("CURATORS", nil),
		CurationRequired: getBoolOrDefault("CURATION_REQUIRED", false),
		MinLiquidity:     getAmountOrDefault("MIN_LIQUIDITY", fixed.One()),

		FeeProtocolBps: getUint64OrDefault("FEE_PROTOCOL_BPS", 3000),
		FeeCreatorBps:  getUint64OrDefault("FEE_CREATOR_BPS", 3000),
		FeeLPBps:       getUint64OrDefault("FEE_LP_BPS", 4000),

		OracleLiveness:       getDurationOrDefault("ORACLE_LIVENESS", 2*time.Hour),
		OracleReporterBond:   getAmountOrDefault("ORACLE_REPORTER_BOND", fixed.Zero()),
		OracleDisputerBond:   getAmountOrDefault("ORACLE_DISPUTER_BOND", fixed.Zero()),
		OracleWinnerShareBps: getUint64OrDefault("ORACLE_WINNER_SHARE_BPS", 5000),

		CacheTTL:       getDurationOrDefault("CACHE_TTL", time.Minute),
		CacheMaxItems:  int64(getIntOrDefault("CACHE_MAX_ITEMS", 10_000)),
		WSSendBuffer:   getIntOrDefault("WS_SEND_BUFFER", 256),
		WSPingInterval: getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSPongTimeout:  getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),

		StorageMode:              getEnvOrDefault("STORAGE_MODE", StorageConsole),
		StorageQueueSize:         getIntOrDefault("STORAGE_QUEUE_SIZE", 1024),
		StorageTimeout:           getDurationOrDefault("STORAGE_TIMEOUT", 5*time.Second),
		StorageFailureThreshold:  getIntOrDefault("STORAGE_FAILURE_THRESHOLD", 3),
		StorageRecoveryThreshold: getIntOrDefault("STORAGE_RECOVERY_THRESHOLD", 2),
		PostgresHost:             getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:             getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:             getEnvOrDefault("POSTGRES_USER", "settlement"),
		PostgresPass:             getEnvOrDefault("POSTGRES_PASSWORD", "settlement"),
		PostgresDB:               getEnvOrDefault("POSTGRES_DB", "settlement_engine"),
		PostgresSSL:              getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.ClockMode != ClockWall && c.ClockMode != ClockManual {
		return fmt.Errorf("CLOCK_MODE must be %q or %q, got %q", ClockWall, ClockManual, c.ClockMode)
	}
	if c.ClockMode == ClockWall && c.ClockSyncInterval <= 0 {
		return fmt.Errorf("CLOCK_SYNC_INTERVAL must be positive, got %v", c.ClockSyncInterval)
	}

	if !common.IsHexAddress(c.AdminAddress) || common.HexToAddress(c.AdminAddress) == (common.Address{}) {
		return fmt.Errorf("ADMIN_ADDRESS must be a non-zero hex address, got %q", c.AdminAddress)
	}
	for _, list := range []struct {
		key   string
		addrs []string
	}{{"ORACLE_REPORTERS", c.Reporters}, {"CURATORS", c.Curators}} {
		for _, a := range list.addrs {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("%s: invalid address %q", list.key, a)
			}
		}
	}

	if c.FeeProtocolBps+c.FeeCreatorBps+c.FeeLPBps != fixed.BpsDenominator {
		return fmt.Errorf("FEE_PROTOCOL_BPS + FEE_CREATOR_BPS + FEE_LP_BPS must equal %d, got %d",
			fixed.BpsDenominator, c.FeeProtocolBps+c.FeeCreatorBps+c.FeeLPBps)
	}
	if c.OracleWinnerShareBps > fixed.BpsDenominator {
		return fmt.Errorf("ORACLE_WINNER_SHARE_BPS must be at most %d, got %d", fixed.BpsDenominator, c.OracleWinnerShareBps)
	}
	if c.OracleLiveness <= 0 {
		return fmt.Errorf("ORACLE_LIVENESS must be positive, got %v", c.OracleLiveness)
	}

	if c.StorageMode != StorageConsole && c.StorageMode != StoragePostgres && c.StorageMode != StorageNone {
		return fmt.Errorf("STORAGE_MODE must be 'console', 'postgres' or 'none', got %q", c.StorageMode)
	}
	if c.StorageFailureThreshold <= 0 || c.StorageRecoveryThreshold <= 0 {
		return fmt.Errorf("STORAGE_FAILURE_THRESHOLD and STORAGE_RECOVERY_THRESHOLD must be positive")
	}

	if c.CacheMaxItems <= 0 {
		return fmt.Errorf("CACHE_MAX_ITEMS must be positive, got %d", c.CacheMaxItems)
	}

	return nil
}

// Admin returns the admin address.
func (c *Config) Admin() common.Address {
	return common.HexToAddress(c.AdminAddress)
}

// ReporterAddresses returns the whitelisted oracle reporters.
func (c *Config) ReporterAddresses() []common.Address {
	return toAddresses(c.Reporters)
}

// CuratorAddresses returns the initial curators.
func (c *Config) CuratorAddresses() []common.Address {
	return toAddresses(c.Curators)
}

func toAddresses(in []string) []common.Address {
	out := make([]common.Address, len(in))
	for i, s := range in {
		out[i] = common.HexToAddress(s)
	}
	return out
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getUint64OrDefault(key string, defaultValue uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return v
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return b
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getAmountOrDefault parses a decimal token amount such as "12.5".
func getAmountOrDefault(key string, defaultValue *uint256.Int) *uint256.Int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	amount, err := fixed.Parse(value)
	if err != nil {
		return defaultValue
	}

	return amount
}

// getListOrDefault splits a comma-separated value, dropping blanks.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
