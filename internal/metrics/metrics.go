// Package metrics exposes broadcaster and task counters through the same
// Prometheus-capable telemetry sink the teacher wires into its router.
package metrics

import (
	"fmt"

	"github.com/cosmos/cosmos-sdk/telemetry"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/environment"
)

// Config mirrors the subset of telemetry.Config this system reads from the
// environment rather than a TOML file.
type Config struct {
	Enabled                 bool
	ServiceName             string
	EnableHostname          bool
	EnableHostnameLabel     bool
	EnableServiceLabel      bool
	PrometheusRetentionTime int64
}

// ConfigFromEnv reads the telemetry configuration from the environment.
// Unlike the signer/gas/node configuration, telemetry is optional and
// disabled by default: the status server still serves /healthz either way.
func ConfigFromEnv() Config {
	return Config{
		Enabled:                 environment.BoolOrDefault("TELEMETRY_ENABLED", false),
		ServiceName:             environment.StringOrDefault("TELEMETRY_SERVICE_NAME", "oracle-price-feeder"),
		EnableHostname:          environment.BoolOrDefault("TELEMETRY_ENABLE_HOSTNAME", false),
		EnableHostnameLabel:     environment.BoolOrDefault("TELEMETRY_ENABLE_HOSTNAME_LABEL", false),
		EnableServiceLabel:      environment.BoolOrDefault("TELEMETRY_ENABLE_SERVICE_LABEL", true),
		PrometheusRetentionTime: 60,
	}
}

// Recorder wraps the telemetry sink with the handful of counters this
// system's transaction pipeline reports: broadcasts by outcome, retries,
// sequence-number refreshes, and alarms dispatched.
type Recorder struct {
	metrics *telemetry.Metrics
}

// New constructs a Recorder. When cfg.Enabled is false, telemetry.New
// returns a nil *telemetry.Metrics: the counters below become no-ops and
// Gather reports an error instead of a metric set.
func New(cfg Config) (*Recorder, error) {
	metrics, err := telemetry.New(telemetry.Config{
		Enabled:                 cfg.Enabled,
		ServiceName:             cfg.ServiceName,
		EnableHostname:          cfg.EnableHostname,
		EnableHostnameLabel:     cfg.EnableHostnameLabel,
		EnableServiceLabel:      cfg.EnableServiceLabel,
		PrometheusRetentionTime: cfg.PrometheusRetentionTime,
	})
	if err != nil {
		return nil, err
	}

	return &Recorder{metrics: metrics}, nil
}

// Gather renders the current metric set in the requested format
// ("prometheus" or "text"), per telemetry.FormatPrometheus/FormatText.
func (r *Recorder) Gather(format string) (telemetry.GatherResponse, error) {
	if r.metrics == nil {
		return telemetry.GatherResponse{}, fmt.Errorf("telemetry is disabled")
	}

	return r.metrics.Gather(format)
}

// IncBroadcast records one broadcast outcome (ok, signature_failed,
// contract_error) for the given task source; the broadcaster records a
// transport-level failure through IncRetry instead.
func (r *Recorder) IncBroadcast(source, outcome string) {
	telemetry.IncrCounter(1, "broadcast", outcome, source)
}

// IncRetry records one broadcaster retry for the given task source.
func (r *Recorder) IncRetry(source string) {
	telemetry.IncrCounter(1, "broadcast", "retry", source)
}

// IncSequenceRefresh records one forced sequence-number refresh, triggered
// by the consecutive-error budget wrapping.
func (r *Recorder) IncSequenceRefresh(source string) {
	telemetry.IncrCounter(1, "sequence", "refresh", source)
}

// IncAlarmsDispatched records the number of alarms dispatched by one
// dispatch_alarms execution.
func (r *Recorder) IncAlarmsDispatched(source string, count uint32) {
	telemetry.IncrCounter(float32(count), "alarms", "dispatched", source)
}
