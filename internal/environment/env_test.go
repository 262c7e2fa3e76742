package environment

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Setenv("FOO_VAR", "bar")

	value, err := String("FOO_VAR")
	require.NoError(t, err)
	require.Equal(t, "bar", value)

	_, err = String("NOT_SET_VAR_XYZ")
	require.Error(t, err)

	os.Unsetenv("EMPTY_VAR")
	t.Setenv("EMPTY_VAR", "")
	_, err = String("EMPTY_VAR")
	require.Error(t, err)
}

func TestUint64(t *testing.T) {
	t.Setenv("AMOUNT_VAR", "42")

	value, err := Uint64("AMOUNT_VAR")
	require.NoError(t, err)
	require.Equal(t, uint64(42), value)

	t.Setenv("AMOUNT_VAR", "not-a-number")
	_, err = Uint64("AMOUNT_VAR")
	require.Error(t, err)
}

func TestDurationSecondsAndMillis(t *testing.T) {
	t.Setenv("IDLE_DURATION_SECONDS", "30")
	d, err := DurationSeconds("IDLE_DURATION_SECONDS")
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)

	t.Setenv("RETRY_MS", "500")
	d, err = DurationMillis("RETRY_MS")
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, d)
}

func TestStringOrDefault(t *testing.T) {
	t.Setenv("SERVICE_NAME_VAR", "oracle-price-feeder")
	require.Equal(t, "oracle-price-feeder", StringOrDefault("SERVICE_NAME_VAR", "fallback"))
	require.Equal(t, "fallback", StringOrDefault("NOT_SET_SERVICE_NAME_VAR", "fallback"))
}

func TestBoolOrDefault(t *testing.T) {
	t.Setenv("TELEMETRY_ENABLED_VAR", "true")
	require.True(t, BoolOrDefault("TELEMETRY_ENABLED_VAR", false))
	require.False(t, BoolOrDefault("NOT_SET_TELEMETRY_ENABLED_VAR", false))

	t.Setenv("TELEMETRY_ENABLED_VAR_BAD", "not-a-bool")
	require.True(t, BoolOrDefault("TELEMETRY_ENABLED_VAR_BAD", true))
}

func TestGasFeeConf(t *testing.T) {
	t.Setenv("GAS_FEE_CONF", "gas_price_num=1,gas_price_den=100,gas_adjustment_num=15,gas_adjustment_den=10")

	cfg, err := GasFeeConf("GAS_FEE_CONF")
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.GasPriceNumerator)
	require.Equal(t, uint64(100), cfg.GasPriceDenominator)
	require.Equal(t, uint64(15), cfg.GasAdjustmentNumerator)
	require.Equal(t, uint64(10), cfg.GasAdjustmentDenom)
}

func TestGasFeeConfRejectsZero(t *testing.T) {
	t.Setenv("GAS_FEE_CONF", "gas_price_num=0,gas_price_den=100,gas_adjustment_num=15,gas_adjustment_den=10")

	_, err := GasFeeConf("GAS_FEE_CONF")
	require.Error(t, err)
}

func TestNetworkNodeGRPCVar(t *testing.T) {
	cases := map[string]string{
		"osmoTestnet": "OSMO_TESTNET__NODE_GRPC",
		"osmosis":     "OSMOSIS__NODE_GRPC",
		"astro-port":  "ASTRO_PORT__NODE_GRPC",
	}

	for input, expected := range cases {
		actual, err := NetworkNodeGRPCVar(input)
		require.NoError(t, err)
		require.Equal(t, expected, actual)
	}

	_, err := NetworkNodeGRPCVar("")
	require.Error(t, err)
}

func TestServerConfigFromEnv_Defaults(t *testing.T) {
	cfg := ServerConfigFromEnv()
	require.Equal(t, ":7171", cfg.ListenAddress)
	require.False(t, cfg.EnableCORS)
	require.Empty(t, cfg.AllowedOrigins)
	require.Equal(t, 5*time.Second, cfg.ReadTimeout)
}

func TestServerConfigFromEnv_ReadsOverrides(t *testing.T) {
	t.Setenv("SERVER_LISTEN_ADDRESS", ":9090")
	t.Setenv("SERVER_ENABLE_CORS", "true")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "10")

	cfg := ServerConfigFromEnv()
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.True(t, cfg.EnableCORS)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, 10*time.Second, cfg.ReadTimeout)
}

func TestNetworkEnvVar(t *testing.T) {
	actual, err := NetworkEnvVar("osmoTestnet", "POOL_ADDRESSES")
	require.NoError(t, err)
	require.Equal(t, "OSMO_TESTNET__POOL_ADDRESSES", actual)

	_, err = NetworkEnvVar("", "POOL_ADDRESSES")
	require.Error(t, err)
}

func TestCompactRecord(t *testing.T) {
	t.Setenv("OSMO_TESTNET__POOL_ADDRESSES", "OSMO=nolus1poolosmo,NLS=nolus1poolnls")

	fields, err := CompactRecord("OSMO_TESTNET__POOL_ADDRESSES")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"OSMO": "nolus1poolosmo", "NLS": "nolus1poolnls"}, fields)

	_, err = CompactRecord("NOT_SET_COMPACT_RECORD")
	require.Error(t, err)
}
