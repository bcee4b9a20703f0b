package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go.aimuz.me/dawn/config"
	"go.aimuz.me/dawn/history"
	"go.aimuz.me/dawn/internal/app"
	"go.aimuz.me/dawn/internal/types"
)

type fixture struct {
	srv     *httptest.Server
	hub     *Hub
	cfgPath string
	history *history.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	hist, err := history.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}

	hub := NewHub()
	svc := app.New(app.Deps{Config: cfg, History: hist, Emitter: hub}, app.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, nil) }()

	srv := httptest.NewServer(NewServer(svc, hub))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		cancel()
		<-done
		_ = hist.Close()
	})
	return &fixture{srv: srv, hub: hub, cfgPath: cfgPath, history: hist}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var st app.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Recording || len(st.Bindings) != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestPutSettingsPersists(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPut, "/api/settings", `{"smartTranscription": true, "language": "de"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	saved, err := config.LoadFrom(f.cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.SmartTranscription || saved.Language != "de" {
		t.Errorf("saved = %+v", saved)
	}
	if !saved.CloudTranscription {
		t.Error("merge dropped untouched fields")
	}

	resp, _ = f.do(t, http.MethodPut, "/api/settings", `{"language": 5}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad settings status = %d", resp.StatusCode)
	}
	_, body = f.do(t, http.MethodGet, "/api/settings", "")
	var cfg config.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "de" {
		t.Errorf("rejected update changed language to %q", cfg.Language)
	}
}

func TestRebind(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPut, "/api/hotkeys/assistant", `{"display": "Hyper + Nope"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var rb rebindResponse
	if err := json.Unmarshal(body, &rb); err != nil {
		t.Fatal(err)
	}
	if rb.Warning == "" || !rb.Binding.Enabled {
		t.Errorf("response = %+v", rb)
	}

	resp, _ = f.do(t, http.MethodPut, "/api/hotkeys/karaoke", `{"display": "Z"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown mode status = %d", resp.StatusCode)
	}
}

func TestPhrases(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/phrases", `{"original": "dawn app", "replacement": "Dawn"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var pair types.PhrasePair
	if err := json.Unmarshal(body, &pair); err != nil || pair.ID == "" {
		t.Fatalf("pair = %+v, err %v", pair, err)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/phrases", `{"original": "  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty phrase status = %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodPut, "/api/phrases/"+pair.ID, `{"original": "dawn", "replacement": "Dawn"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("update status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/phrases/"+pair.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/phrases/"+pair.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
}

func TestMutationsRequireJSON(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/phrases", strings.NewReader("original=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"first", "second"} {
		if err := f.history.Add(types.Transcription{Text: text, Timestamp: time.Now().UnixMilli()}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	resp, body := f.do(t, http.MethodGet, "/api/history?limit=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var items []types.Transcription
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Text != "second" {
		t.Errorf("items = %+v", items)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/history?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebsocketEvents(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.srv), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.hub.Emit(app.EventTranscriptionErr, types.TranscriptionError{Mode: "assistant", Message: "boom"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event string                   `json:"event"`
		Data  types.TranscriptionError `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Event != app.EventTranscriptionErr || msg.Data.Message != "boom" {
		t.Errorf("message = %+v", msg)
	}
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	h := http.Header{"Origin": []string{"https://example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.srv), h)
	if err == nil {
		conn.Close()
		t.Fatal("Dial() from foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v", resp)
	}
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:7717", true},
		{"http://[::1]:7717", true},
		{"wails://wails", true},
		{"https://example.com", false},
		{"http://127.0.0.1.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := localOrigin(r); got != tt.want {
			t.Errorf("localOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
