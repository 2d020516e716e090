package server

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	AuthToken      string
	AllowedOrigins []string
	IngestRate     float64 // requests per second, 0 disables limiting
	IngestBurst    int
	DashboardPath  string // optional static dashboard page served at /
}

// NewRouter wires the API, the sensor stream, health and metrics endpoints
func NewRouter(api *APIHandler, stream *StreamHandler, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(logger))

	var limiter *rate.Limiter
	if cfg.IngestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.IngestRate), max(cfg.IngestBurst, 1))
	}
	auth := requireToken(cfg.AuthToken, logger)

	r.HandleFunc("/health", api.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Handle("/sensor",
		auth(rateLimit(limiter, TransportHTTP)(http.HandlerFunc(api.HandleIngest))),
	).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sensor", api.HandleQuery).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sensor/latest", api.HandleLatest).Methods(http.MethodGet)
	apiRouter.HandleFunc("/ranges", api.HandleRanges).Methods(http.MethodGet)
	apiRouter.HandleFunc("/stats", api.HandleStats).Methods(http.MethodGet)
	apiRouter.HandleFunc("/devices", stream.HandleDevices).Methods(http.MethodGet)

	r.Handle("/sensor-stream", auth(stream)).Methods(http.MethodGet)

	if cfg.DashboardPath != "" {
		r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, cfg.DashboardPath)
		}).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if len(cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
}
