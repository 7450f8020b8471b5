package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/commands"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/scheduler"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/BTreeMap/RoleBridge/internal/store"
	"github.com/BTreeMap/RoleBridge/internal/testutil"
)

type fixedStats commands.Stats

func (f fixedStats) Stats() commands.Stats { return commands.Stats(f) }

type brokenKV struct{ session.KV }

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func newTestServer(t *testing.T) (*Server, *binds.Service) {
	t.Helper()
	st := store.NewInMemoryStore()
	b := binds.NewService(st)
	seed := models.GuildBind{Roles: []string{"999"}, Criteria: models.BindCriteria{Type: models.BindTypeGroup, ID: 12345, Group: &models.GroupCriteria{Roleset: models.IntPtr(10)}}}
	if err := b.CreateBind(context.Background(), "guild-1", seed); err != nil {
		t.Fatalf("CreateBind failed: %v", err)
	}
	return NewServer(fixedStats{Commands: 4, Errors: 1}, b, st), b
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "healthy")

	s.kv = brokenKV{}
	rr = serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusServiceUnavailable, rr.Code, "degraded health")
	testutil.AssertJSONResponse(t, rr, "degraded")

	rr = serve(s, testutil.CreateHTTPRequest(t, http.MethodPost, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "health POST")
	if got := rr.Header().Get("Allow"); got != http.MethodGet {
		t.Errorf("Allow = %q", got)
	}
}

func TestStatsHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/stats", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "stats")
	body := testutil.AssertJSONResponse(t, rr, "ok")
	result, ok := body["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result in %v", body)
	}
	if result["commands"] != float64(4) || result["errors"] != float64(1) {
		t.Errorf("unexpected stats %v", result)
	}
}

func TestBindsHandler(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantCode   int
		wantStatus string
		wantCount  int
	}{
		{"all binds", "/binds?guild_id=guild-1", http.StatusOK, "ok", 1},
		{"by type and id", "/binds?guild_id=guild-1&type=group&id=12345", http.StatusOK, "ok", 1},
		{"other id", "/binds?guild_id=guild-1&type=group&id=1", http.StatusOK, "ok", 0},
		{"unknown guild", "/binds?guild_id=guild-2", http.StatusOK, "ok", 0},
		{"missing guild", "/binds", http.StatusBadRequest, "error", 0},
		{"bad type", "/binds?guild_id=guild-1&type=pets", http.StatusBadRequest, "error", 0},
		{"bad id", "/binds?guild_id=guild-1&id=abc", http.StatusBadRequest, "error", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, tt.url, nil))
			testutil.AssertHTTPStatus(t, tt.wantCode, rr.Code, tt.url)
			body := testutil.AssertJSONResponse(t, rr, tt.wantStatus)
			if tt.wantStatus != "ok" {
				return
			}
			list, ok := body["result"].([]interface{})
			if !ok {
				t.Fatalf("result is not a list: %v", body["result"])
			}
			if len(list) != tt.wantCount {
				t.Errorf("got %d binds, want %d", len(list), tt.wantCount)
			}
		})
	}
}

func TestApplyOptsDefaults(t *testing.T) {
	cfg := applyOpts(nil)
	if cfg.Addr != DefaultAddr || cfg.SweepSchedule != scheduler.DefaultSweepSchedule || cfg.SessionTTL != session.DefaultTTL {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	cfg = applyOpts([]Option{WithAddr(":9090"), WithSessionTTL(time.Minute), WithRedisURL("redis://localhost:6379/0"), WithCommandRegistration(true)})
	if cfg.Addr != ":9090" || cfg.SessionTTL != time.Minute || cfg.RedisURL == "" || !cfg.RegisterCommands {
		t.Errorf("options not applied: %+v", cfg)
	}
}
