package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"can-session-logger/internal/can"
	"can-session-logger/internal/logging"
	"can-session-logger/internal/session"

	"github.com/goccy/go-json"
)

func newTestServer(t *testing.T, connect bool) (*Server, *session.Controller) {
	t.Helper()

	logger := logging.Discard()
	conn := can.NewConnection(can.Options{ReceiveTimeout: 20 * time.Millisecond, Logger: logger})
	ctrl := session.NewController(conn, session.Config{
		Channel: "api-" + t.Name(),
		BusKind: can.BusVirtual,
		Bitrate: 500000,
		LogPath: filepath.Join(t.TempDir(), "can_log.csv"),
		Logger:  logger,
	})
	t.Cleanup(ctrl.Shutdown)

	if connect {
		if err := ctrl.Connect(); err != nil {
			t.Fatalf("connect: %v", err)
		}
		if err := ctrl.StartListening(); err != nil {
			t.Fatalf("listen: %v", err)
		}
	}

	return NewServer(ServerConfig{Logger: logger}, ctrl), ctrl
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthAndRoot(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec, body := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
	services := body["services"].(map[string]any)
	if services["bus"] != "disconnected" {
		t.Errorf("bus = %v, want disconnected", services["bus"])
	}

	rec, body = do(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Errorf("root status %d", rec.Code)
	}
	analysis := body["endpoints"].(map[string]any)["analysis"].(map[string]any)
	if note, _ := analysis["note"].(string); !strings.Contains(note, "logging off") {
		t.Errorf("analysis listing does not say it stops logging: %v", analysis)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}
}

func TestPeriodicRequiresConnection(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec, body := do(t, s, http.MethodPost, "/api/session/periodic", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409 (%v)", rec.Code, body)
	}

	rec, _ = do(t, s, http.MethodPost, "/api/session/send", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("send status %d, want 409", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, false)

	for _, target := range []string{"/api/session/logging", "/api/session/periodic", "/api/session/send"} {
		rec, _ := do(t, s, http.MethodGet, target, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: status %d, want 405", target, rec.Code)
		}
	}
}

func TestSendAndAnalyse(t *testing.T) {
	s, ctrl := newTestServer(t, true)

	rec, body := do(t, s, http.MethodPost, "/api/session/logging", "")
	if rec.Code != http.StatusOK || body["logging"] != true {
		t.Fatalf("toggle logging: %d %v", rec.Code, body)
	}

	frames := []string{
		`{"can_id":"0x100","data":"0102"}`,
		`{"can_id":"0x200","data":"03"}`,
		`{"can_id":"0x100","data":""}`,
	}
	for _, f := range frames {
		rec, body := do(t, s, http.MethodPost, "/api/session/send", f)
		if rec.Code != http.StatusOK {
			t.Fatalf("send %s: %d %v", f, rec.Code, body)
		}
	}
	waitFor(t, "frames to be logged", func() bool { return ctrl.Snapshot().FramesLogged == 3 })

	rec, body = do(t, s, http.MethodGet, "/api/analysis/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: %d %v", rec.Code, body)
	}
	summary := body["summary"].(map[string]any)
	if summary["total_messages"] != float64(3) || summary["unique_can_ids"] != float64(2) {
		t.Errorf("unexpected summary %v", summary)
	}
	if ctrl.State().Logging() {
		t.Error("analysis left logging on")
	}

	rec, body = do(t, s, http.MethodGet, "/api/analysis/messages?can_id=0x100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("messages: %d %v", rec.Code, body)
	}
	if body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}
	first := body["messages"].([]any)[0].(map[string]any)
	if first["can_id_hex"] != "0x100" || first["data_hex"] != "0102" {
		t.Errorf("first message = %v", first)
	}

	rec, body = do(t, s, http.MethodGet, "/api/analysis/frequency?top_n=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("frequency: %d %v", rec.Code, body)
	}
	freq := body["frequency"].([]any)
	if len(freq) != 1 || freq[0].(map[string]any)["id"] != "0x100" {
		t.Errorf("frequency = %v", freq)
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, true)

	cases := []string{
		`{"can_id":"zz"}`,
		`{"can_id":"0x100","data":"0g"}`,
		`{"can_id":"0x100","data":"010203040506070809"}`,
		`{"can_id":"0x800"}`,
		`not json`,
	}
	for _, c := range cases {
		rec, _ := do(t, s, http.MethodPost, "/api/session/send", c)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", c, rec.Code)
		}
	}
}

func TestSummaryOfEmptyLogIsNull(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec, body := do(t, s, http.MethodGet, "/api/analysis/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body["summary"] != nil {
		t.Errorf("summary = %v, want null", body["summary"])
	}
}

func TestBadQueryParams(t *testing.T) {
	s, _ := newTestServer(t, false)

	for _, target := range []string{
		"/api/analysis/messages?can_id=nope",
		"/api/analysis/frequency?top_n=x",
		"/api/analysis/messages?limit=-1",
	} {
		rec, _ := do(t, s, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}
