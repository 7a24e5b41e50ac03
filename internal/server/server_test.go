package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/dexguard/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		Env:          "development",
		LogLevel:     "error",
		LogFormat:    "text",
		ScoreTimeout: 50 * time.Millisecond,
	}
}

// newTestServer creates a server with in-memory storage and a log-only sink
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), config.DefaultRiskParams())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/healthz",
		"GET:/health/ready",
		"GET:/metrics",
		"POST:/v1/assess",
		"GET:/v1/assessments/:hash",
		"GET:/v1/alerts",
		"POST:/v1/admin/reload",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Assessment endpoint tests
// ---------------------------------------------------------------------------

func TestAssessEndpoint(t *testing.T) {
	s := newTestServer(t)

	body := `{
		"transaction": {
			"txHash": "0xabc123",
			"fromAddress": "0xaaaa000000000000000000000000000000000001",
			"amount": 2000000,
			"tokenPair": "ETH/USDC",
			"gasPrice": 50,
			"slippage": 0.0001,
			"routeLength": 6
		}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/assess", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["txHash"] != "0xabc123" {
		t.Errorf("Expected txHash echoed back, got %v", resp["txHash"])
	}
	if resp["riskScore"] == nil {
		t.Error("Expected riskScore in response")
	}
	// Amount, slippage, and route length all trip the flash-loan heuristic.
	score, _ := resp["riskScore"].(float64)
	if score <= 0 {
		t.Errorf("Expected positive risk score for flash-loan shaped input, got %v", score)
	}
}

func TestAssessEndpoint_InvalidTransaction(t *testing.T) {
	s := newTestServer(t)

	// Missing tx hash
	body := `{"transaction": {"amount": 100}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/assess", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing hash, got %d", w.Code)
	}
}

func TestAssessEndpoint_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/assess", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/alerts", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if _, ok := resp["count"]; !ok {
		t.Error("Expected count in alerts response")
	}
}

func TestAssessmentsEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Score one transaction, then list it back by hash. The lookup route
	// validates the hash shape, so use a full 32-byte one.
	hash := "0x" + strings.Repeat("fe", 32)
	body := `{"transaction": {"txHash": "` + hash + `", "amount": 10}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/assess", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("assess failed: %d", w.Code)
	}

	// The record is written asynchronously; poll briefly.
	deadline := time.Now().Add(time.Second)
	for {
		w = httptest.NewRecorder()
		req = httptest.NewRequest("GET", "/v1/assessments/"+hash, nil)
		s.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if resp.Count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected 1 stored assessment, got %d", resp.Count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAssessmentsEndpoint_InvalidHash(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/assessments/not-a-hash", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed hash, got %d", w.Code)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected nosniff header, got %q", got)
	}
}

func TestReloadEndpoint_NoFileUsesDefaults(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/reload", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for reload without params file, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
