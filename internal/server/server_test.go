package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tvcornix-go/internal/config"
	"tvcornix-go/internal/route"
	"tvcornix-go/internal/signal"
	"tvcornix-go/internal/store"
	"tvcornix-go/internal/telegram"
	"tvcornix-go/internal/util"
)

const testSecret = "test-secret"

type fixture struct {
	engine    *gin.Engine
	store     *store.Store
	server    *Server
	sendCalls *atomic.Int32
}

func newFixture(t *testing.T, telegramStatus int) *fixture {
	t.Helper()

	var calls atomic.Int32
	tgAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if telegramStatus != http.StatusOK {
			w.WriteHeader(telegramStatus)
			_, _ = w.Write([]byte(`{"ok":false,"description":"simulated failure"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	t.Cleanup(tgAPI.Close)

	cfg := &config.Config{}
	cfg.Server.WebhookSecret = testSecret

	log := zerolog.Nop()
	tg := telegram.NewClient("123:token", "-100", log,
		telegram.WithBaseURL(tgAPI.URL), telegram.WithRetry(1, 0))
	st := store.Open(filepath.Join(t.TempDir(), "signals.json"), log)
	srv := New(cfg, log, util.NewRingBuffer(50), st, route.NewRouter(tg, log), tg)

	return &fixture{engine: srv.Engine(), store: st, server: srv, sendCalls: &calls}
}

func (f *fixture) post(t *testing.T, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return out
}

const slBody = `{"action":"sl","side":"long","symbol":"BYBIT:BTCUSDT.P","tag":"SFP_SL"}`

func authHeader() map[string]string {
	return map[string]string{"X-Webhook-Secret": testSecret}
}

func TestWebhookRejectsMissingToken(t *testing.T) {
	f := newFixture(t, http.StatusOK)

	rec := f.post(t, "/webhook", slBody, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = f.post(t, "/webhook", slBody, map[string]string{"X-Webhook-Secret": "wrong-secret"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", rec.Code)
	}
	if f.sendCalls.Load() != 0 {
		t.Fatalf("unauthorized requests must never reach Telegram")
	}
}

func TestWebhookAcceptsQueryToken(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	rec := f.post(t, "/webhook?token="+testSecret, slBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookIgnoresTelegramUpdates(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	rec := f.post(t, "/webhook", `{"update_id":12345,"message":{"text":"hi"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeJSON(t, rec)["status"] != "ignored" {
		t.Fatalf("expected ignored status: %s", rec.Body.String())
	}
	if f.sendCalls.Load() != 0 {
		t.Fatalf("misrouted updates must not be relayed")
	}
}

func TestWebhookValidationFailure(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	rec := f.post(t, "/webhook", `{"action":"entry","symbol":"BTCUSDT","size_type":"percent"}`, authHeader())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	details, ok := body["details"].([]any)
	if !ok || len(details) < 3 {
		t.Fatalf("expected itemized error details: %s", rec.Body.String())
	}
	if len(f.store.Recent()) != 0 {
		t.Fatalf("rejected webhooks must not be persisted")
	}
}

func TestWebhookSuccessPersistsRecord(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	rec := f.post(t, "/webhook", slBody, authHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeJSON(t, rec)
	if body["cornixCommand"] != "/close BTCUSDT #SFP_SL" {
		t.Fatalf("unexpected command in response: %v", body["cornixCommand"])
	}
	if body["action"] != "sl" {
		t.Fatalf("unexpected action: %v", body["action"])
	}

	recent := f.store.Recent()
	if len(recent) != 1 {
		t.Fatalf("expected one stored record, got %d", len(recent))
	}
	stored := recent[0]
	if stored.CornixCommand != "/close BTCUSDT #SFP_SL" || stored.Status != "sent" {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if f.store.Snapshot().TotalSignals != 1 {
		t.Fatalf("expected stats update")
	}
}

func TestWebhookTransportFailure(t *testing.T) {
	f := newFixture(t, http.StatusBadGateway)
	rec := f.post(t, "/webhook", slBody, authHeader())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(f.store.Recent()) != 0 {
		t.Fatalf("failed relays must not be stored as sent")
	}
	if f.store.Snapshot().Errors24h != 1 {
		t.Fatalf("expected error counter bump, got %+v", f.store.Snapshot())
	}
}

func TestWebhookEntryFlow(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	body := `{
		"action": "entry", "side": "long", "symbol": "BTCUSDT",
		"size_type": "usd", "size": 100, "tp1": 92000, "sl": 88000
	}`
	rec := f.post(t, "/webhook", body, authHeader())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	command := decodeJSON(t, rec)["cornixCommand"].(string)
	want := "Pair: BTCUSDT\nAction: Long\nEntry: Market\nTP1: 92000\nStop Loss: 88000"
	if command != want {
		t.Fatalf("unexpected entry command:\n%s\nwant:\n%s", command, want)
	}
}

func TestDashboardEndpoints(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	f.server.SetBotInfo(&telegram.BotInfo{ID: 9, Username: "relay_bot"}, true)

	if rec := f.get(t, "/"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from root, got %d", rec.Code)
	}

	rec := f.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}
	if decodeJSON(t, rec)["telegram"] != "connected" {
		t.Fatalf("expected connected state: %s", rec.Body.String())
	}

	f.post(t, "/webhook", slBody, authHeader())
	rec = f.get(t, "/api/signals")
	body := decodeJSON(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("expected one signal, got %v", body["count"])
	}

	rec = f.get(t, "/api/stats")
	stats := decodeJSON(t, rec)["stats"].(map[string]any)
	if stats["totalSignals"] != float64(1) {
		t.Fatalf("unexpected stats: %s", rec.Body.String())
	}

	if rec := f.get(t, "/api/status"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d", rec.Code)
	}
	if rec := f.get(t, "/api/logs"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from logs, got %d", rec.Code)
	}
	if rec := f.get(t, "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	ts := httptest.NewServer(f.engine)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	// Give the server a beat to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)
	f.post(t, "/webhook", slBody, authHeader())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec signal.Record
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if rec.Symbol != "BYBIT:BTCUSDT.P" || rec.CornixCommand != "/close BTCUSDT #SFP_SL" {
		t.Fatalf("unexpected broadcast record %+v", rec)
	}
}
