package observability

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgeio/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// AdminConfig wires the admin routes to a running relay. Nil funcs disable
// their routes. A non-empty Token guards /status and /reconnect.
type AdminConfig struct {
	Service   string
	Version   string
	Token     string
	Status    func() any
	Reconnect func()
}

// NewAdminRouter serves /healthz, /status, /metrics and POST /reconnect.
func NewAdminRouter(cfg AdminConfig) http.Handler {
	RegisterMetrics()
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"uptime":  time.Since(started).Round(time.Second).String(),
			"service": cfg.Service,
			"version": cfg.Version,
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if strings.TrimSpace(cfg.Token) != "" {
			r.Use(auth.Middleware(auth.StaticToken{Token: strings.TrimSpace(cfg.Token)}))
		}
		if cfg.Status != nil {
			r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, cfg.Status())
			})
		}
		if cfg.Reconnect != nil {
			r.Post("/reconnect", func(w http.ResponseWriter, _ *http.Request) {
				cfg.Reconnect()
				writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
			})
		}
	})
	return r
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().Msgf(
			"observability.admin %s %s status=%d dur=%v",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Msgf("observability.admin encode failed err=%v", err)
	}
}
