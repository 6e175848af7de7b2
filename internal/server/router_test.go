package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/itsfuad/Poketab-Backend/internal/config"
	"github.com/itsfuad/Poketab-Backend/internal/ws"

	"github.com/gin-gonic/gin"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Port: "0", Env: "dev", ClientURL: "http://localhost:5173"}
	hub := ws.NewHub()
	return SetupRouter(cfg, hub, ws.NewDispatcher(nil, hub, nil))
}

func TestHealthz(t *testing.T) {
	r := testRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS preflight = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestWsEndpointRejectsPlainHTTP(t *testing.T) {
	r := testRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.ServeHTTP(w, req)
	// No upgrade headers: the websocket upgrader refuses the request.
	if w.Code == http.StatusOK {
		t.Errorf("GET /ws without upgrade = %d, want an error status", w.Code)
	}
}
