package environment

import "time"

// ServiceConfig is every startup value the process needs beyond the status
// server (ServerConfig, above) and the per-network node endpoints (read
// separately via NetworkEnvVar once the admin contract's protocol registry
// is known). Fields map directly onto spec.md §6's named variables, plus a
// handful this system cannot start without that spec.md's env-var list
// does not name: `NodeRPCURI` (the node client needs a Tendermint RPC
// endpoint alongside the gRPC one spec.md does name, for broadcast_sync),
// `ChainID`/`AddressPrefix` (signing and address derivation need both and
// spec.md's data model assumes, rather than sources, them), and the
// gas-limit/alarm-batch/restart-policy knobs every task and the supervisor
// need a value for (spec.md treats hard_gas_limit, fallback_gas, and the
// per-task alarm batch cap as task-identity fields without naming their
// environment source).
type ServiceConfig struct {
	NodeGRPCURI     string
	NodeRPCURI      string
	SigningMnemonic string
	FeeTokenDenom   string
	ChainID         string
	AddressPrefix   string
	GasFeeConf      GasAndFeeConfiguration

	AdminContractAddress string

	IdleDuration              time.Duration
	TimeoutDuration           time.Duration
	BalanceReporterIdle       time.Duration
	BroadcastDelay            time.Duration
	BroadcastRetryDelay       time.Duration
	UpdateCurrenciesInterval  time.Duration
	DurationBeforeStartJitter time.Duration

	HardGasLimit uint64
	FallbackGas  uint64
	AlarmsMax    uint64

	RestartMaxRestarts int
	RestartBaseBackoff time.Duration
	RestartMaxBackoff  time.Duration
}

// ServiceConfigFromEnv reads every startup value spec.md §6 names, plus the
// additions documented on ServiceConfig, failing fast on the first missing
// or malformed required variable.
func ServiceConfigFromEnv() (ServiceConfig, error) {
	var cfg ServiceConfig
	var err error

	if cfg.NodeGRPCURI, err = String("NODE_GRPC_URI"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.NodeRPCURI, err = String("NODE_RPC_URI"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.SigningMnemonic, err = String("SIGNING_KEY_MNEMONIC"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.FeeTokenDenom, err = String("FEE_TOKEN_DENOM"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.ChainID, err = String("CHAIN_ID"); err != nil {
		return ServiceConfig{}, err
	}
	cfg.AddressPrefix = StringOrDefault("ADDRESS_PREFIX", "nolus")

	if cfg.GasFeeConf, err = GasFeeConf("GAS_FEE_CONF"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.AdminContractAddress, err = String("ADMIN_CONTRACT_ADDRESS"); err != nil {
		return ServiceConfig{}, err
	}

	if cfg.IdleDuration, err = DurationSeconds("IDLE_DURATION_SECONDS"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.TimeoutDuration, err = DurationSeconds("TIMEOUT_DURATION_SECONDS"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.BalanceReporterIdle, err = DurationSeconds("BALANCE_REPORTER_IDLE_DURATION_SECONDS"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.BroadcastDelay, err = DurationSeconds("BROADCAST_DELAY_DURATION_SECONDS"); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.BroadcastRetryDelay, err = DurationMillis("BROADCAST_RETRY_DELAY_DURATION_MILLISECONDS"); err != nil {
		return ServiceConfig{}, err
	}

	cfg.UpdateCurrenciesInterval = durationSecondsOrDefault("UPDATE_CURRENCIES_INTERVAL_SECONDS", 10*time.Minute)
	cfg.DurationBeforeStartJitter = durationSecondsOrDefault("DURATION_BEFORE_START_JITTER_SECONDS", 2*time.Second)

	cfg.HardGasLimit = uint64OrDefault("HARD_GAS_LIMIT", 400_000)
	cfg.FallbackGas = uint64OrDefault("FALLBACK_GAS", 250_000)
	cfg.AlarmsMax = uint64OrDefault("ALARMS_MAX_COUNT", 20)

	cfg.RestartMaxRestarts = int(uint64OrDefault("RESTART_MAX_RESTARTS", 5))
	cfg.RestartBaseBackoff = durationSecondsOrDefault("RESTART_BASE_BACKOFF_SECONDS", 1*time.Second)
	cfg.RestartMaxBackoff = durationSecondsOrDefault("RESTART_MAX_BACKOFF_SECONDS", 60*time.Second)

	return cfg, nil
}

func uint64OrDefault(name string, def uint64) uint64 {
	v, err := Uint64(name)
	if err != nil {
		return def
	}

	return v
}
