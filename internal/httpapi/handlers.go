package httpapi

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"

	svcerrors "github.com/R3E-Network/jamef_tracker/internal/errors"
	"github.com/R3E-Network/jamef_tracker/internal/httputil"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/storage"
)

const (
	defaultLookupLimit = 50
	maxLookupLimit     = 500
	healthCheckTimeout = 3 * time.Second
)

type handler struct {
	tracker Tracker
	lookups storage.LookupStore
	checks  map[string]HealthCheck
	logger  *logging.Logger
	version string
	started time.Time
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Timestamp    string            `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Timestamp  string         `json:"timestamp"`
	Uptime     string         `json:"uptime"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// LookupLogResponse is returned by GET /consultas.
type LookupLogResponse struct {
	Count     int              `json:"count"`
	Consultas []storage.Lookup `json:"consultas"`
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, RootResponse{
		Status:  "ok",
		Message: "Jamef Rastreamento API rodando",
	})
}

func (h *handler) track(w http.ResponseWriter, r *http.Request) {
	nf := mux.Vars(r)["numero_nf"]
	cnpj := r.URL.Query().Get("cnpj")

	result, err := h.tracker.Lookup(r.Context(), nf, cnpj)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).WithField("nf", nf).Warn("Tracking failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *handler) lookupLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLookupLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, svcerrors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxLookupLimit {
		limit = maxLookupLimit
	}

	entries, err := h.lookups.Recent(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, svcerrors.Unavailable("lookup log unavailable", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LookupLogResponse{Count: len(entries), Consultas: entries})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Service:   ServiceName,
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Dependencies = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				h.logger.WithContext(ctx).WithError(err).WithField("dependency", name).Warn("Health check failed")
				resp.Dependencies[name] = "unhealthy"
				resp.Status = "degraded"
				continue
			}
			resp.Dependencies[name] = "healthy"
		}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) info(w http.ResponseWriter, r *http.Request) {
	resp := InfoResponse{
		Status:     "active",
		Service:    ServiceName,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Statistics: processStats(r.Context()),
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// processStats reports resource usage of the API process. Chromium children
// are not included.
func processStats(ctx context.Context) map[string]any {
	stats := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
		stats["rss_bytes"] = mem.RSS
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats["threads"] = threads
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats["cpu_percent"] = cpu
	}
	if children, err := proc.ChildrenWithContext(ctx); err == nil {
		stats["child_processes"] = len(children)
	} else {
		stats["child_processes"] = 0
	}
	return stats
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorBody{
		Detail: "Not Found",
		Code:   string(svcerrors.CodeNotFound),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.ErrorBody{Detail: "Method Not Allowed"})
}
