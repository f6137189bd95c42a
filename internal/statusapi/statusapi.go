package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sensorsim/internal/emitter"
	"github.com/sensorsim/internal/models"
	"github.com/sensorsim/internal/sensors"
	"github.com/sensorsim/internal/websocket"
	"go.uber.org/zap"
)

// Scheduler is what the API needs from emitter.Scheduler.
type Scheduler interface {
	State() emitter.State
	CyclesCompleted() int
	Inject(ctx context.Context, c sensors.Class, value float64) (models.Reading, error)
}

type api struct {
	sched Scheduler
	log   *zap.Logger
}

type healthResponse struct {
	State  string `json:"state"`
	Cycles int    `json:"cycles"`
}

type injectRequest struct {
	Value *float64 `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter wires health, metrics, the live feed and override injection.
// hub may be nil, in which case /ws is not served.
func NewRouter(sched Scheduler, hub *websocket.Hub, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	a := &api{sched: sched, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.HandleFunc("/inject/{class}", a.inject).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS)
	}

	access := zap.NewStdLog(log.Named("http")).Writer()
	return handlers.RecoveryHandler()(handlers.LoggingHandler(access, r))
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	state := a.sched.State()
	status := http.StatusOK
	if !state.Active() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{State: state.String(), Cycles: a.sched.CyclesCompleted()})
}

func (a *api) inject(w http.ResponseWriter, r *http.Request) {
	class, err := sensors.ParseClass(mux.Vars(r)["class"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing value"})
		return
	}

	reading, err := a.sched.Inject(r.Context(), class, *req.Value)
	switch {
	case errors.Is(err, emitter.ErrNotRunning):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, reading)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Status API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
