package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/commands"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/session"
)

const healthCheckKey = "health:check"

// StatsSource reports interaction counters. *commands.Router implements it.
type StatsSource interface {
	Stats() commands.Stats
}

// Server serves the HTTP endpoints.
type Server struct {
	stats   StatsSource
	binds   *binds.Service
	kv      session.KV
	started time.Time
}

// NewServer creates a Server. the health check reads from kv.
func NewServer(stats StatsSource, b *binds.Service, kv session.KV) *Server {
	return &Server{stats: stats, binds: b, kv: kv, started: time.Now()}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/binds", s.bindsHandler)
	return mux
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}
	status := http.StatusOK
	if _, _, err := s.kv.Get(ctx, healthCheckKey); err != nil {
		slog.Warn("Health check: session store unreachable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "session store unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, healthData)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.stats.Stats()))
}

// bindsHandler lists the binds of a guild, optionally narrowed by type and id.
func (s *Server) bindsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()
	guildID := q.Get("guild_id")
	if guildID == "" {
		writeError(w, http.StatusBadRequest, "guild_id is required")
		return
	}
	var f binds.Filter
	if t := q.Get("type"); t != "" {
		if !models.IsValidBindType(models.BindType(t)) {
			writeError(w, http.StatusBadRequest, "unknown bind type")
			return
		}
		f.Type = models.BindType(t)
	}
	if raw := q.Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "id must be an integer")
			return
		}
		f.ID = id
	}

	list, err := s.binds.GetBinds(r.Context(), guildID, f)
	if err != nil {
		slog.Error("Server.bindsHandler: failed to load binds", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load binds")
		return
	}
	if list == nil {
		list = []models.GuildBind{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}
