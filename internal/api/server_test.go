package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/storefront-telemetry/internal/ingestion"
	"github.com/nerrad567/storefront-telemetry/internal/inventory"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
	"github.com/nerrad567/storefront-telemetry/migrations"
)

type testEnv struct {
	srv      *Server
	handler  http.Handler
	registry *device.Registry
	store    *inventory.SQLiteStore
	hub      *broadcast.Hub
}

type stubCheck struct{ err error }

func (c stubCheck) HealthCheck(context.Context) error { return c.err }

// testServer wires a server over a migrated SQLite database in t.TempDir.
func testServer(t *testing.T, checks map[string]HealthChecker) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	env := &testEnv{
		registry: device.NewRegistry(device.NewSQLiteRepository(db.DB)),
		store:    inventory.NewSQLiteStore(db.DB),
		hub:      broadcast.NewHub(broadcast.Config{}),
	}
	t.Cleanup(env.hub.Close)

	readings := reading.NewSQLiteRepository(db.DB)
	pipeline := ingestion.New(ingestion.Deps{
		Devices:    env.registry,
		Readings:   readings,
		Reconciler: inventory.NewReconciler(env.store, inventory.Config{}),
		Publisher:  env.hub,
	})

	env.srv, err = New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{Path: "/ws"},
		Logger:   logging.Discard(),
		Registry: env.registry,
		Ingester: pipeline,
		Readings: readings,
		Items:    env.store,
		Hub:      env.hub,
		Checks:   checks,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	env.handler = env.srv.Handler()
	return env
}

func (e *testEnv) addDevice(t *testing.T, d *device.Device) {
	t.Helper()
	if d.Name == "" {
		d.Name = "Device " + d.ID
	}
	if d.Location.Warehouse == "" {
		d.Location = sensor.Location{Warehouse: "WH-1", Zone: "A"}
	}
	if err := e.registry.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("CreateDevice(%s) error: %v", d.ID, err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func ptrFloat(f float64) *float64 { return &f }

func ptrString(s string) *string { return &s }

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("New(Deps{}) should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Fatal("New() without registry should fail")
	}
}

// ─── Health & stats ─────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthChecker
		code   int
		status string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all ok", map[string]HealthChecker{"database": stubCheck{}, "mqtt": stubCheck{}}, http.StatusOK, "ok"},
		{"one down", map[string]HealthChecker{"database": stubCheck{}, "mqtt": stubCheck{errors.New("not connected")}}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServer(t, tt.checks)
			w := env.do(t, http.MethodGet, "/api/v1/health", "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			resp := decode[struct {
				Status     string            `json:"status"`
				Version    string            `json:"version"`
				Components []ComponentHealth `json:"components"`
			}](t, w)
			if resp.Status != tt.status {
				t.Errorf("status = %q, want %q", resp.Status, tt.status)
			}
			if len(resp.Components) != len(tt.checks) {
				t.Errorf("components = %d, want %d", len(resp.Components), len(tt.checks))
			}
			for i := 1; i < len(resp.Components); i++ {
				if resp.Components[i-1].Name > resp.Components[i].Name {
					t.Errorf("components not sorted: %v", resp.Components)
				}
			}
		})
	}
}

func TestStats(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{ID: "TEMP_001", Kind: sensor.KindTemperature})

	w := env.do(t, http.MethodPost, "/api/v1/readings", `{"device_id":"TEMP_001","value":21}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d: %s", w.Code, w.Body.String())
	}
	env.do(t, http.MethodPost, "/api/v1/readings", `{"device_id":"NOPE","value":1}`)

	w = env.do(t, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	stats := decode[SystemStats](t, w)
	if stats.Version != "test" {
		t.Errorf("version = %q", stats.Version)
	}
	if stats.Ingestion.Accepted != 1 || stats.Ingestion.Rejected != 1 {
		t.Errorf("ingestion = %+v, want 1 accepted and 1 rejected", stats.Ingestion)
	}
	if stats.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines should be reported")
	}
}

// ─── Readings ───────────────────────────────────────────────────────

func TestIngestStatusCodes(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{
		ID:         "TEMP_001",
		Kind:       sensor.KindTemperature,
		Thresholds: &device.Thresholds{Min: ptrFloat(0), Max: ptrFloat(30)},
	})

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"accepted", `{"device_id":"TEMP_001","value":22.5,"unit":"C"}`, http.StatusCreated, ""},
		{"camel case", `{"deviceId":"TEMP_001","sensorType":"temperature","value":23}`, http.StatusCreated, ""},
		{"malformed json", `{"device_id":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing device", `{"value":1}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing value", `{"device_id":"TEMP_001"}`, http.StatusBadRequest, ErrCodeValidation},
		{"bad sensor type", `{"device_id":"TEMP_001","sensor_type":"sonar","value":1}`, http.StatusBadRequest, ErrCodeValidation},
		{"unknown device", `{"device_id":"GHOST","value":1}`, http.StatusNotFound, ErrCodeUnknownDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/readings", tt.body)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
			if tt.err == "" {
				return
			}
			resp := decode[Error](t, w)
			if resp.Code != tt.err {
				t.Errorf("code = %q, want %q", resp.Code, tt.err)
			}
		})
	}
}

func TestIngestThresholdAlert(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{
		ID:         "TEMP_001",
		Kind:       sensor.KindTemperature,
		Thresholds: &device.Thresholds{Min: ptrFloat(0), Max: ptrFloat(30)},
	})

	w := env.do(t, http.MethodPost, "/api/v1/readings", `{"device_id":"TEMP_001","value":35}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	rd := decode[reading.Reading](t, w)
	if rd.Alert == nil || !rd.Alert.Triggered {
		t.Fatalf("alert = %+v, want triggered", rd.Alert)
	}
	if rd.Location.Warehouse != "WH-1" {
		t.Errorf("location = %+v, want device location", rd.Location)
	}

	w = env.do(t, http.MethodGet, "/api/v1/readings/"+rd.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := decode[reading.Reading](t, w); got.ID != rd.ID || got.Alert == nil {
		t.Errorf("stored reading = %+v", got)
	}
}

func TestListReadings(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{
		ID:         "TEMP_001",
		Kind:       sensor.KindTemperature,
		Thresholds: &device.Thresholds{Max: ptrFloat(30)},
	})
	env.addDevice(t, &device.Device{ID: "HUM_001", Kind: sensor.KindHumidity})

	for _, body := range []string{
		`{"device_id":"TEMP_001","value":20}`,
		`{"device_id":"TEMP_001","value":40}`,
		`{"device_id":"HUM_001","value":55}`,
	} {
		if w := env.do(t, http.MethodPost, "/api/v1/readings", body); w.Code != http.StatusCreated {
			t.Fatalf("ingest %s: status = %d", body, w.Code)
		}
	}

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"all", "", http.StatusOK, 3},
		{"by device", "?device_id=TEMP_001", http.StatusOK, 2},
		{"alerts only", "?alert=true", http.StatusOK, 1},
		{"no alerts", "?alert=false", http.StatusOK, 2},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"window in future", "?from=" + time.Now().Add(time.Hour).UTC().Format(time.RFC3339), http.StatusOK, 0},
		{"bad alert", "?alert=maybe", http.StatusBadRequest, 0},
		{"bad from", "?from=yesterday", http.StatusBadRequest, 0},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/readings"+tt.query, "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			resp := decode[struct {
				Readings []reading.Reading `json:"readings"`
				Count    int               `json:"count"`
			}](t, w)
			if resp.Count != tt.count || len(resp.Readings) != tt.count {
				t.Errorf("count = %d (%d readings), want %d", resp.Count, len(resp.Readings), tt.count)
			}
		})
	}
}

func TestGetReadingNotFound(t *testing.T) {
	env := testServer(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/readings/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

// ─── Devices ────────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{ID: "TEMP_001", Kind: sensor.KindTemperature})
	env.addDevice(t, &device.Device{ID: "RFID_001", Kind: sensor.KindRFID,
		Location: sensor.Location{Warehouse: "WH-2"}})

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 2},
		{"?kind=rfid", http.StatusOK, 1},
		{"?warehouse=WH-1", http.StatusOK, 1},
		{"?warehouse=WH-9", http.StatusOK, 0},
		{"?kind=sonar", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			resp := decode[struct {
				Count int `json:"count"`
			}](t, w)
			if resp.Count != tt.count {
				t.Errorf("count = %d, want %d", resp.Count, tt.count)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{ID: "TEMP_001", Kind: sensor.KindTemperature})

	w := env.do(t, http.MethodGet, "/api/v1/devices/TEMP_001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if d := decode[device.Device](t, w); d.ID != "TEMP_001" || d.Kind != sensor.KindTemperature {
		t.Errorf("device = %+v", d)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/devices/GHOST", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", w.Code)
	}
}

func TestUpdateDeviceStatus(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{ID: "TEMP_001", Kind: sensor.KindTemperature})

	sub := env.hub.Subscribe(broadcast.Filter{Kinds: []broadcast.Kind{broadcast.KindDeviceStatusChanged}})
	defer sub.Close()

	tests := []struct {
		name string
		id   string
		body string
		code int
	}{
		{"maintenance", "TEMP_001", `{"status":"maintenance","battery_level":40}`, http.StatusOK},
		{"offline", "TEMP_001", `{"is_online":false}`, http.StatusOK},
		{"bad status", "TEMP_001", `{"status":"exploded"}`, http.StatusBadRequest},
		{"bad battery", "TEMP_001", `{"battery_level":140}`, http.StatusBadRequest},
		{"malformed", "TEMP_001", `{`, http.StatusBadRequest},
		{"missing", "GHOST", `{"status":"active"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPatch, "/api/v1/devices/"+tt.id+"/status", tt.body)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
		})
	}

	d, err := env.registry.GetDevice(context.Background(), "TEMP_001")
	if err != nil {
		t.Fatalf("GetDevice() error: %v", err)
	}
	if d.Status != device.StatusMaintenance || d.IsOnline {
		t.Errorf("device status = %q online = %v", d.Status, d.IsOnline)
	}
	if d.BatteryLevel == nil || *d.BatteryLevel != 40 {
		t.Errorf("battery = %v, want 40", d.BatteryLevel)
	}

	for i := 0; i < 2; i++ {
		select {
		case e := <-sub.Events():
			if e.DeviceID != "TEMP_001" {
				t.Errorf("event device = %q", e.DeviceID)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected status event %d", i+1)
		}
	}
}

// ─── Items ──────────────────────────────────────────────────────────

func TestItemsAndMovements(t *testing.T) {
	env := testServer(t, nil)
	ctx := context.Background()
	if err := env.store.CreateItem(ctx, &inventory.Item{ID: "SKU-1", Name: "Widget", Quantity: 10, LowStockThreshold: 2}); err != nil {
		t.Fatalf("CreateItem() error: %v", err)
	}
	env.addDevice(t, &device.Device{ID: "RFID_001", Kind: sensor.KindRFID, CatalogItemID: ptrString("SKU-1")})

	body := `{"device_id":"RFID_001","value":"tag-1","metadata":{"action":"outbound","quantity":3}}`
	if w := env.do(t, http.MethodPost, "/api/v1/readings", body); w.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d: %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/v1/items/SKU-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("item status = %d", w.Code)
	}
	if item := decode[inventory.Item](t, w); item.Quantity != 7 {
		t.Errorf("quantity = %d, want 7", item.Quantity)
	}

	w = env.do(t, http.MethodGet, "/api/v1/items/SKU-1/movements", "")
	if w.Code != http.StatusOK {
		t.Fatalf("movements status = %d", w.Code)
	}
	list := decode[inventory.MovementList](t, w)
	if len(list.Movements) != 1 {
		t.Fatalf("movements = %d, want 1", len(list.Movements))
	}
	if m := list.Movements[0]; m.Previous != 10 || m.Current != 7 {
		t.Errorf("movement = %+v, want 10 -> 7", m)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/items/SKU-9", http.StatusNotFound},
		{"/api/v1/items/SKU-9/movements", http.StatusNotFound},
		{"/api/v1/items/SKU-1/movements?limit=-1", http.StatusBadRequest},
		{"/api/v1/items/SKU-1/movements?offset=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(t, http.MethodGet, tt.path, ""); w.Code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.code)
		}
	}
}

// ─── Middleware ─────────────────────────────────────────────────────

func TestRequestIDHeader(t *testing.T) {
	env := testServer(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	r.Header.Set("X-Request-ID", "req-42")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{ID: "TEMP_001", Kind: sensor.KindTemperature})

	big := `{"device_id":"TEMP_001","value":1,"unit":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewBufferString(big))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRecoverPanics(t *testing.T) {
	env := testServer(t, nil)
	h := withRequestID(env.srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── WebSocket ──────────────────────────────────────────────────────

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	return msg
}

func waitSubscribers(t *testing.T, hub *broadcast.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", hub.SubscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketSubscribeReceivesFilteredEvents(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{
		ID:         "TEMP_001",
		Kind:       sensor.KindTemperature,
		Thresholds: &device.Thresholds{Max: ptrFloat(30)},
	})
	conn := dialWS(t, env)

	if err := conn.WriteJSON(map[string]any{
		"type":    "subscribe",
		"id":      "1",
		"payload": map[string]any{"kinds": []string{"alert.raised"}},
	}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if resp := readWS(t, conn); resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("response = %+v", resp)
	}
	waitSubscribers(t, env.hub, 1)

	if w := env.do(t, http.MethodPost, "/api/v1/readings", `{"device_id":"TEMP_001","value":45}`); w.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d", w.Code)
	}

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != string(broadcast.KindAlertRaised) {
		t.Fatalf("message = %+v, want alert.raised event", msg)
	}
}

func TestWebSocketLaterSubscribeWidens(t *testing.T) {
	env := testServer(t, nil)
	env.addDevice(t, &device.Device{ID: "HUM_001", Kind: sensor.KindHumidity})
	conn := dialWS(t, env)

	for i, payload := range []map[string]any{
		{"kinds": []string{"alert.raised"}},
		{},
	} {
		if err := conn.WriteJSON(map[string]any{"type": "subscribe", "id": fmt.Sprint(i), "payload": payload}); err != nil {
			t.Fatalf("write error: %v", err)
		}
		if resp := readWS(t, conn); resp.Type != WSTypeResponse {
			t.Fatalf("response = %+v", resp)
		}
	}
	waitSubscribers(t, env.hub, 1)

	if w := env.do(t, http.MethodPost, "/api/v1/readings", `{"device_id":"HUM_001","value":40}`); w.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d", w.Code)
	}

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != string(broadcast.KindReadingIngested) {
		t.Fatalf("message = %+v, want reading.ingested after widening to every event", msg)
	}
}

func TestWebSocketPingAndErrors(t *testing.T) {
	env := testServer(t, nil)
	conn := dialWS(t, env)

	tests := []struct {
		name string
		send string
		want string
	}{
		{"ping", `{"type":"ping","id":"p"}`, WSTypePong},
		{"invalid json", `{`, WSTypeError},
		{"unknown type", `{"type":"dance"}`, WSTypeError},
		{"unknown kind", `{"type":"subscribe","payload":{"kinds":["weather.changed"]}}`, WSTypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write error: %v", err)
			}
			if msg := readWS(t, conn); msg.Type != tt.want {
				t.Errorf("type = %q, want %q", msg.Type, tt.want)
			}
		})
	}
	if n := env.hub.SubscriberCount(); n != 0 {
		t.Errorf("subscribers = %d, want 0 after rejected subscribe", n)
	}
}

func TestWebSocketUnsubscribeEndsSubscription(t *testing.T) {
	env := testServer(t, nil)
	conn := dialWS(t, env)

	send := func(v any) {
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write error: %v", err)
		}
		readWS(t, conn)
	}

	send(map[string]any{"type": "subscribe", "payload": map[string]any{"devices": []string{"A", "B"}}})
	waitSubscribers(t, env.hub, 1)

	send(map[string]any{"type": "unsubscribe", "payload": map[string]any{"devices": []string{"A"}}})
	waitSubscribers(t, env.hub, 1)

	send(map[string]any{"type": "unsubscribe", "payload": map[string]any{"devices": []string{"B"}}})
	waitSubscribers(t, env.hub, 0)
}

func TestWebSocketDisconnectReleasesSubscription(t *testing.T) {
	env := testServer(t, nil)
	conn := dialWS(t, env)

	if err := conn.WriteJSON(map[string]any{"type": "subscribe"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	readWS(t, conn)
	waitSubscribers(t, env.hub, 1)

	conn.Close()
	waitSubscribers(t, env.hub, 0)
}
