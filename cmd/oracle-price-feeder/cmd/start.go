package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/broadcast"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/contract"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/dex"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/environment"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/metrics"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/supervisor"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/task"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
	"github.com/Nolus-Protocol/oracle-price-feeder/pkg/closer"
	v1 "github.com/Nolus-Protocol/oracle-price-feeder/router/v1"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "starts the transaction pipeline: feeders, alarm pollers, and the broadcaster",
	RunE:  startCmdHandler,
}

func startCmdHandler(cmd *cobra.Command, _ []string) error {
	logger, err := buildLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := environment.ServiceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	group, ctx := errgroup.WithContext(ctx)

	shutdown := closer.NewCloser()
	trapSignal(cancel, shutdown, logger)

	signerAddress, signer, mainNode, err := setupSigner(ctx, cfg)
	if err != nil {
		return err
	}

	protocols, err := mainNode.QueryWasm(ctx, cfg.AdminContractAddress, contract.AdminProtocolsQuery())
	if err != nil {
		return fmt.Errorf("failed to query admin contract's protocol registry: %w", err)
	}

	protocolConfigs, err := contract.ParseProtocolConfigs(protocols)
	if err != nil {
		return fmt.Errorf("failed to decode admin contract's protocol registry: %w", err)
	}

	dexNodeClients, err := dialDexNodeClients(ctx, cfg, protocolConfigs)
	if err != nil {
		return err
	}

	creationCtx := &task.CreationContext{
		NodeClient:     mainNode,
		SignerAddress:  signerAddress,
		DexNodeClients: dexNodeClients,
		Log:            logger,
	}

	entries, err := buildTaskEntries(cfg, protocolConfigs, creationCtx)
	if err != nil {
		return err
	}

	sender, receiver := txqueue.New()

	recorder, err := metrics.New(metrics.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	for i := range entries {
		if poller, ok := entries[i].Runnable.(*task.AlarmPoller); ok {
			entries[i].Runnable = poller.WithMetrics(recorder)
		}
	}

	broadcaster := broadcast.New(mainNode, signer, receiver, cfg.BroadcastDelay, cfg.BroadcastRetryDelay, logger).
		WithMetrics(recorder)

	sv := supervisor.New(logger)
	trapReload(sv, logger)

	group.Go(func() error {
		return sv.Run(ctx, sender, broadcaster.Run, entries)
	})

	serverCfg := environment.ServerConfigFromEnv()
	group.Go(func() error {
		return startServer(ctx, shutdown, logger, serverCfg, signer, sv, recorder)
	})

	return group.Wait()
}

func buildLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	logLvlStr, err := cmd.Flags().GetString(flagLogLevel)
	if err != nil {
		return zerolog.Logger{}, err
	}

	logFormatStr, err := cmd.Flags().GetString(flagLogFormat)
	if err != nil {
		return zerolog.Logger{}, err
	}

	logLvl, err := zerolog.ParseLevel(logLvlStr)
	if err != nil {
		return zerolog.Logger{}, err
	}

	var logWriter io.Writer
	switch strings.ToLower(logFormatStr) {
	case logFormatJSON:
		logWriter = os.Stderr
	case logFormatText:
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		return zerolog.Logger{}, fmt.Errorf("invalid logging format: %s", logFormatStr)
	}

	return zerolog.New(logWriter).Level(logLvl).With().Timestamp().Logger(), nil
}

// setupSigner derives the signing key from the configured mnemonic, dials
// the main chain node, and performs the initial sequence-number fetch
// spec.md §4.6 calls for before any task is spawned.
func setupSigner(ctx context.Context, cfg environment.ServiceConfig) (string, *chain.Signer, *chain.NodeClient, error) {
	privKey, err := chain.DeriveSigningKey(cfg.SigningMnemonic)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	address, err := chain.AddressFromPubKey(privKey.PubKey(), cfg.AddressPrefix)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to derive signer address: %w", err)
	}

	mainNode, err := chain.NewNodeClient(ctx, cfg.NodeGRPCURI, cfg.NodeRPCURI)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to dial chain node: %w", err)
	}

	signer := chain.NewSigner(
		privKey,
		address,
		cfg.ChainID,
		cfg.FeeTokenDenom,
		cfg.GasFeeConf,
		chain.MakeEncodingConfig(),
		mainNode,
	)

	if err := signer.FetchSequenceNumber(ctx); err != nil {
		return "", nil, nil, fmt.Errorf("failed initial sequence-number fetch: %w", err)
	}

	return address, signer, mainNode, nil
}

// dialDexNodeClients dials one shared node client per distinct DEX-side
// network named by the admin contract's protocol registry, keyed the way
// task.CreationContext.DexNodeClients expects. The Tendermint RPC leg is
// best-effort only (task code never broadcasts through a DEX client), so
// the main chain's own RPC endpoint is reused rather than requiring one
// per network.
func dialDexNodeClients(ctx context.Context, cfg environment.ServiceConfig, protocols map[string]contract.ProtocolConfig) (map[string]task.NodeQueryClient, error) {
	clients := make(map[string]task.NodeQueryClient)

	for _, proto := range protocols {
		if _, ok := clients[proto.Network]; ok {
			continue
		}

		grpcVar, err := environment.NetworkNodeGRPCVar(proto.Network)
		if err != nil {
			return nil, fmt.Errorf("failed to derive node gRPC variable for network %q: %w", proto.Network, err)
		}

		grpcEndpoint, err := environment.String(grpcVar)
		if err != nil {
			return nil, err
		}

		client, err := chain.NewNodeClient(ctx, grpcEndpoint, cfg.NodeRPCURI)
		if err != nil {
			return nil, fmt.Errorf("failed to dial node for network %q: %w", proto.Network, err)
		}

		clients[proto.Network] = client
	}

	return clients, nil
}

// buildTaskEntries builds one feeder entry per protocol and one alarm
// entry per configured time/price alarm contract, staggering each
// subsequent entry's start by DurationBeforeStartJitter per spec.md §3's
// "duration before start" jitter field.
func buildTaskEntries(cfg environment.ServiceConfig, protocols map[string]contract.ProtocolConfig, creationCtx *task.CreationContext) ([]supervisor.Entry, error) {
	var entries []supervisor.Entry
	restartPolicy := supervisor.RestartPolicy{
		MaxRestarts: cfg.RestartMaxRestarts,
		BaseBackoff: cfg.RestartBaseBackoff,
		MaxBackoff:  cfg.RestartMaxBackoff,
	}

	stagger := func(i int) time.Duration {
		return time.Duration(i) * cfg.DurationBeforeStartJitter
	}

	for protocolName, proto := range protocols {
		dexNameVar, err := environment.NetworkEnvVar(proto.Network, "DEX")
		if err != nil {
			return nil, err
		}
		dexNameStr, err := environment.String(dexNameVar)
		if err != nil {
			return nil, err
		}

		dexImpl, err := dex.New(dex.Name(dexNameStr))
		if err != nil {
			return nil, fmt.Errorf("protocol %q: %w", protocolName, err)
		}

		poolVar, err := environment.NetworkEnvVar(proto.Network, "POOL_ADDRESSES")
		if err != nil {
			return nil, err
		}
		poolAddresses, err := environment.CompactRecord(poolVar)
		if err != nil {
			return nil, err
		}

		quoteCurrencyVar, err := environment.NetworkEnvVar(proto.Network, "QUOTE_CURRENCY")
		if err != nil {
			return nil, err
		}
		quoteCurrency, err := environment.String(quoteCurrencyVar)
		if err != nil {
			return nil, err
		}

		feeder := task.NewFeeder(task.FeederConfig{
			Protocol:                 protocolName,
			Dex:                      dexImpl,
			DexName:                  dex.Name(dexNameStr),
			OracleAddress:            proto.OracleAddress,
			PoolAddressesByCurrency:  poolAddresses,
			QuoteCurrency:            quoteCurrency,
			UpdateCurrenciesInterval: cfg.UpdateCurrenciesInterval,
			IdleDuration:             cfg.IdleDuration,
			TimeoutDuration:          cfg.TimeoutDuration,
			HardGasLimit:             cfg.HardGasLimit,
			FallbackGas:              cfg.FallbackGas,
		}, creationCtx, creationCtx.DexNodeClients[proto.Network])

		entries = append(entries, supervisor.Entry{
			Descriptor: task.Descriptor{
				Name:                "feeder-" + protocolName,
				IdleDuration:        cfg.IdleDuration,
				TimeoutDuration:     cfg.TimeoutDuration,
				DurationBeforeStart: stagger(len(entries)),
			},
			Runnable: feeder,
			Policy:   restartPolicy,
		})

		for _, alarm := range []struct {
			kind    task.AlarmKind
			address string
		}{
			{task.AlarmKindTime, proto.TimeAlarmAddress},
			{task.AlarmKindPrice, proto.PriceAlarmAddress},
		} {
			if alarm.address == "" {
				continue
			}

			poller := task.NewAlarmPoller(task.AlarmConfig{
				Kind:            alarm.kind,
				ContractAddress: alarm.address,
				MaxCount:        uint32(cfg.AlarmsMax),
				IdleDuration:    cfg.IdleDuration,
				TimeoutDuration: cfg.TimeoutDuration,
				HardGasLimit:    cfg.HardGasLimit,
				FallbackGas:     cfg.FallbackGas,
			}, creationCtx)

			entries = append(entries, supervisor.Entry{
				Descriptor: task.Descriptor{
					Name:                string(alarm.kind) + "-alarms-" + protocolName,
					IdleDuration:        cfg.IdleDuration,
					TimeoutDuration:     cfg.TimeoutDuration,
					DurationBeforeStart: stagger(len(entries)),
				},
				Runnable: poller,
				Policy:   restartPolicy,
			})
		}
	}

	return entries, nil
}

// trapSignal listens for SIGINT/SIGTERM and cancels the root context, the
// same idiom the teacher's cmd/start.go uses, additionally closing the
// shared shutdown signal the status server watches independently of the
// supervisor's errgroup context.
func trapSignal(cancel context.CancelFunc, shutdown *closer.Closer, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("caught signal; shutting down...")
		cancel()
		shutdown.Close()
	}()
}

// trapReload listens for SIGHUP, the conventional "reload configuration"
// signal, and bumps the supervisor's configuration version so its Run
// loop drains the current task generation and respawns a fresh one. It
// does not itself reread environment variables: the respawned generation
// runs the same entries, but any task whose Run method consults live
// configuration on each spawn picks up changes made since the process
// started.
func trapReload(sv *supervisor.Supervisor, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for sig := range sigCh {
			logger.Info().Str("signal", sig.String()).Msg("caught signal; reloading configuration")
			sv.BumpConfigurationVersion()
		}
	}()
}

// startServer runs the status/telemetry HTTP surface until the shutdown
// signal fires, then drains in-flight requests within a bounded deadline.
func startServer(
	ctx context.Context,
	shutdown *closer.Closer,
	logger zerolog.Logger,
	cfg environment.ServerConfig,
	signer v1.SignerStatus,
	sv v1.SupervisorStatus,
	recorder v1.Metrics,
) error {
	rtr := mux.NewRouter()
	v1Router := v1.New(logger, cfg, signer, sv, recorder)
	v1Router.RegisterRoutes(rtr, "")

	server := &http.Server{
		Handler:           rtr,
		Addr:              cfg.ListenAddress,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen_addr", cfg.ListenAddress).Msg("starting status server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case <-shutdown.Done():
	case <-ctx.Done():
	case err := <-serverErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info().Str("listen_addr", cfg.ListenAddress).Msg("shutting down status server...")

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Err(err).Msg("error shutting down status server")
		return err
	}

	return nil
}
