package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tafahom/backend/internal/auth"
	"github.com/tafahom/backend/internal/billing"
	"github.com/tafahom/backend/internal/pipeline"
	"github.com/tafahom/backend/internal/translation"
)

// Pinger reports backend liveness for the health endpoint.
type Pinger func(ctx context.Context) error

// Deps is everything the router needs. StreamHandler is the websocket
// endpoint from internal/ws, passed as a plain http.Handler.
type Deps struct {
	Verifier      auth.Verifier
	Orchestrator  *pipeline.Orchestrator
	Wallet        *billing.Service
	Records       translation.Store
	StreamHandler http.Handler
	MediaRoot     string
	DBPing        Pinger
	Logger        *slog.Logger
}

// NewRouter builds the full route table.
func NewRouter(d Deps) *mux.Router {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", Health(d.DBPing)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if d.StreamHandler != nil {
		r.Handle("/ws/translation/stream/", d.StreamHandler)
		r.Handle("/ws/translation/stream", d.StreamHandler)
	}

	if d.MediaRoot != "" {
		r.PathPrefix("/media/").Handler(
			http.StripPrefix("/media/", http.FileServer(http.Dir(d.MediaRoot))))
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(RequireAuth(d.Verifier, log))

	api.HandleFunc("/translation/text-to-sign", TextToSign(d.Orchestrator, d.Wallet, d.Records, log)).Methods(http.MethodPost)
	api.HandleFunc("/translation/voice-to-sign", VoiceToSign(d.Orchestrator, d.Wallet, d.Records, log)).Methods(http.MethodPost)
	api.HandleFunc("/translation/history", History(d.Records, log)).Methods(http.MethodGet)
	api.HandleFunc("/credits", Credits(d.Wallet, log)).Methods(http.MethodGet)
	api.HandleFunc("/credits/history", CreditHistory(d.Wallet, log)).Methods(http.MethodGet)

	return r
}

// Health answers liveness probes. A failing database ping degrades the
// status without taking the endpoint down.
func Health(ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, code, map[string]string{"status": status})
	}
}
