// Package environment reads the process's startup configuration from
// environment variables, per the external-interfaces contract the system is
// driven by. There is no config file: every value named here is required
// unless stated otherwise.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
)

// String reads a required string-valued environment variable.
func String(name string) (string, error) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", name)
	}

	if value == "" {
		return "", fmt.Errorf("environment variable %q is empty", name)
	}

	return value, nil
}

// Uint64 reads a required unsigned-integer-valued environment variable.
func Uint64(name string) (uint64, error) {
	raw, err := String(name)
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("environment variable %q is not a valid unsigned integer: %w", name, err)
	}

	return value, nil
}

// StringOrDefault reads an optional string-valued environment variable,
// returning def when it is unset or empty.
func StringOrDefault(name, def string) string {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return def
	}

	return value
}

// BoolOrDefault reads an optional boolean-valued environment variable,
// returning def when it is unset or unparseable.
func BoolOrDefault(name string, def bool) bool {
	value, ok := os.LookupEnv(name)
	if !ok {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}

	return parsed
}

// DurationSeconds reads a required environment variable holding a duration
// expressed in whole seconds.
func DurationSeconds(name string) (time.Duration, error) {
	value, err := Uint64(name)
	if err != nil {
		return 0, err
	}

	return time.Duration(value) * time.Second, nil
}

// DurationMillis reads a required environment variable holding a duration
// expressed in whole milliseconds.
func DurationMillis(name string) (time.Duration, error) {
	value, err := Uint64(name)
	if err != nil {
		return 0, err
	}

	return time.Duration(value) * time.Millisecond, nil
}

// GasAndFeeConfiguration mirrors the GAS_FEE_CONF compact record: gas price
// and gas adjustment expressed as rational numerator/denominator pairs.
type GasAndFeeConfiguration struct {
	GasPriceNumerator      uint64 `mapstructure:"gas_price_num"`
	GasPriceDenominator    uint64 `mapstructure:"gas_price_den"`
	GasAdjustmentNumerator uint64 `mapstructure:"gas_adjustment_num"`
	GasAdjustmentDenom     uint64 `mapstructure:"gas_adjustment_den"`
}

// Validate checks that every field of the record is a positive integer, as
// required by the external-interfaces contract.
func (c GasAndFeeConfiguration) Validate() error {
	switch {
	case c.GasPriceNumerator == 0:
		return fmt.Errorf("gas_price_num must be positive")
	case c.GasPriceDenominator == 0:
		return fmt.Errorf("gas_price_den must be positive")
	case c.GasAdjustmentNumerator == 0:
		return fmt.Errorf("gas_adjustment_num must be positive")
	case c.GasAdjustmentDenom == 0:
		return fmt.Errorf("gas_adjustment_den must be positive")
	}

	return nil
}

// GasFeeConf reads and decodes the GAS_FEE_CONF environment variable, a
// compact "key=value,key=value,..." record.
func GasFeeConf(name string) (GasAndFeeConfiguration, error) {
	raw, err := String(name)
	if err != nil {
		return GasAndFeeConfiguration{}, err
	}

	fields, err := parseCompactRecord(raw)
	if err != nil {
		return GasAndFeeConfiguration{}, fmt.Errorf("environment variable %q: %w", name, err)
	}

	var cfg GasAndFeeConfiguration

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return GasAndFeeConfiguration{}, err
	}

	if err := decoder.Decode(fields); err != nil {
		return GasAndFeeConfiguration{}, fmt.Errorf("environment variable %q: %w", name, err)
	}

	if err := cfg.Validate(); err != nil {
		return GasAndFeeConfiguration{}, fmt.Errorf("environment variable %q: %w", name, err)
	}

	return cfg, nil
}

// parseCompactRecord parses a "k1=v1,k2=v2" string into a string map.
func parseCompactRecord(raw string) (map[string]string, error) {
	fields := make(map[string]string)

	start := 0

	for start < len(raw) {
		end := indexByte(raw[start:], ',')
		var segment string

		if end < 0 {
			segment = raw[start:]
			start = len(raw)
		} else {
			segment = raw[start : start+end]
			start += end + 1
		}

		eq := indexByte(segment, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed field %q, expected key=value", segment)
		}

		fields[segment[:eq]] = segment[eq+1:]
	}

	return fields, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}

	return -1
}

// ServerConfig is the status/telemetry HTTP surface's listen and
// middleware configuration, the env-driven equivalent of the teacher's
// [server] TOML table.
type ServerConfig struct {
	ListenAddress  string
	EnableCORS     bool
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// ServerConfigFromEnv reads the status server's configuration, all of it
// optional with sensible defaults since the status surface is diagnostic,
// not load-bearing for the transaction pipeline.
func ServerConfigFromEnv() ServerConfig {
	origins := StringOrDefault("SERVER_ALLOWED_ORIGINS", "")

	var allowed []string
	if origins != "" {
		allowed = strings.Split(origins, ",")
	}

	return ServerConfig{
		ListenAddress:  StringOrDefault("SERVER_LISTEN_ADDRESS", ":7171"),
		EnableCORS:     BoolOrDefault("SERVER_ENABLE_CORS", false),
		AllowedOrigins: allowed,
		ReadTimeout:    durationSecondsOrDefault("SERVER_READ_TIMEOUT_SECONDS", 5*time.Second),
		WriteTimeout:   durationSecondsOrDefault("SERVER_WRITE_TIMEOUT_SECONDS", 5*time.Second),
	}
}

func durationSecondsOrDefault(name string, def time.Duration) time.Duration {
	d, err := DurationSeconds(name)
	if err != nil {
		return def
	}

	return d
}

// NetworkNodeGRPCVar derives the per-network gRPC environment variable name
// from a protocol's network identifier, e.g. "osmoTestnet" becomes
// "OSMO_TESTNET__NODE_GRPC".
func NetworkNodeGRPCVar(network string) (string, error) {
	return NetworkEnvVar(network, "NODE_GRPC")
}

// NetworkEnvVar derives a per-network environment variable name from a
// protocol's network identifier and a suffix, joined by the same "__"
// separator id.rs's dex_node_grpc_var uses, e.g. NetworkEnvVar("osmoTestnet",
// "POOL_ADDRESSES") becomes "OSMO_TESTNET__POOL_ADDRESSES".
func NetworkEnvVar(network, suffix string) (string, error) {
	if network == "" {
		return "", fmt.Errorf("protocol's network identifier is zero-length")
	}

	snake := strcase.ToScreamingSnake(network)

	return snake + "__" + suffix, nil
}

// CompactRecord reads and parses a required environment variable holding a
// "key=value,key=value" compact record into a string map, the same shape
// GasFeeConf decodes into a struct.
func CompactRecord(name string) (map[string]string, error) {
	raw, err := String(name)
	if err != nil {
		return nil, err
	}

	fields, err := parseCompactRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("environment variable %q: %w", name, err)
	}

	return fields, nil
}
