// Package v1 registers the status/telemetry HTTP surface: a liveness and
// per-task state check, and a metrics scrape endpoint. There is no
// price read-model route here — this system drives contracts directly
// rather than voting on oracle exchange rates, so it has nothing
// equivalent to the teacher's /prices endpoint to expose.
package v1

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cosmos/cosmos-sdk/telemetry"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/environment"
	"github.com/Nolus-Protocol/oracle-price-feeder/pkg/httputil"
	"github.com/Nolus-Protocol/oracle-price-feeder/router/middleware"
)

// Router registers v1 status/metrics API routes.
type Router struct {
	logger     zerolog.Logger
	cfg        environment.ServerConfig
	signer     SignerStatus
	supervisor SupervisorStatus
	metrics    Metrics
}

// New creates a new status-surface router.
func New(logger zerolog.Logger, cfg environment.ServerConfig, signer SignerStatus, supervisor SupervisorStatus, metrics Metrics) *Router {
	return &Router{
		logger:     logger.With().Str("module", "router").Logger(),
		cfg:        cfg,
		signer:     signer,
		supervisor: supervisor,
		metrics:    metrics,
	}
}

// RegisterRoutes registers routes on the provided sub-router.
func (r *Router) RegisterRoutes(rtr *mux.Router, prefix string) {
	v1Router := rtr.PathPrefix(prefix).Subrouter()

	mChain := middleware.Build(r.logger, r.cfg)

	if r.cfg.EnableCORS {
		v1Router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			for _, origin := range r.cfg.AllowedOrigins {
				if origin == req.Header.Get("Origin") {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With",
			)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.WriteHeader(http.StatusOK)
		})
	}

	v1Router.Handle(
		"/healthz",
		mChain.ThenFunc(r.healthzHandler()),
	).Methods(httputil.MethodGET)

	v1Router.Handle(
		"/metrics",
		mChain.ThenFunc(r.metricsHandler()),
	).Methods(httputil.MethodGET)
}

func (r *Router) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		states := r.supervisor.TaskStates()

		tasks := make(map[string]string, len(states))
		for name, state := range states {
			tasks[name] = state.String()
		}

		resp := HealthZResponse{
			Status:              StatusAvailable,
			SignerSequenceAgeMS: r.signer.SequenceAge().Milliseconds(),
			Tasks:               tasks,
		}

		httputil.RespondWithJSON(w, http.StatusOK, resp)
	}
}

func (r *Router) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		format := strings.TrimSpace(req.FormValue("format"))
		if format == "" {
			format = telemetry.FormatPrometheus
		}

		gr, err := r.metrics.Gather(format)
		if err != nil {
			httputil.RespondWithError(w, http.StatusBadRequest, fmt.Errorf("failed to gather metrics: %w", err))
			return
		}

		w.Header().Set("Content-Type", gr.ContentType)
		_, _ = w.Write(gr.Metrics)
	}
}
