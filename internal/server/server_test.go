package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"factoryline/internal/config"
	"factoryline/internal/db"
	"factoryline/internal/domain"
	"factoryline/internal/engine"
	"factoryline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("plant-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitPlant(context.Background(), cfg.Plant.ID, "", "tester"); err != nil {
		t.Fatalf("init plant: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{APIKeys: map[string]string{"test-key": "tester"}, AllowActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

var apiKeyHeader = map[string]string{"X-Api-Key": "test-key"}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/stock", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, body)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %s, want unauthorized", envelope.Error.Code)
	}
}

func TestAdjustAndReadStock(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/stock/adjust", map[string]any{
		"workstation_id": 7,
		"item_type":      "PRODUCT",
		"item_id":        1,
		"delta":          50,
	}, apiKeyHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust status = %d, body %s", resp.StatusCode, body)
	}
	var entry domain.LedgerEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.BalanceAfter != 50 || entry.ReasonCode != domain.ReasonAdjustment {
		t.Fatalf("entry = %+v", entry)
	}

	resp, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/stock/7/PRODUCT/1", nil, apiKeyHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, body %s", resp.StatusCode, body)
	}
	var rec domain.StockRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Quantity != 50 {
		t.Fatalf("quantity = %d, want 50", rec.Quantity)
	}
}

func TestInsufficientStockMapsToConflict(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/stock/adjust", map[string]any{
		"workstation_id": 7,
		"item_type":      "PRODUCT",
		"item_id":        1,
		"delta":          -1,
	}, apiKeyHeader)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if envelope.Error.Code != "insufficient_stock" {
		t.Fatalf("code = %s, want insufficient_stock", envelope.Error.Code)
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	// seed stock with the actor header path
	hdr := map[string]string{"X-Actor-Id": "operator"}
	resp, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/stock/adjust", map[string]any{
		"workstation_id": 7, "item_type": "PRODUCT", "item_id": 1, "delta": 10,
	}, hdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed status = %d, body %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/orders/customer", map[string]any{
		"lines": []map[string]any{{"item_type": "PRODUCT", "item_id": 1, "quantity": 5}},
	}, apiKeyHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var o domain.Order
	if err := json.Unmarshal(body, &o); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if o.Number != "CO-000001" || o.Status != domain.StatusPending {
		t.Fatalf("order = %+v", o)
	}

	resp, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/orders/customer/"+o.ID+"/confirm", nil, apiKeyHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &o); err != nil {
		t.Fatal(err)
	}
	if o.Scenario != domain.ScenarioDirectFulfillment {
		t.Fatalf("scenario = %s", o.Scenario)
	}

	resp, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/orders/customer/"+o.ID+"/fulfill", nil, apiKeyHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fulfill status = %d, body %s", resp.StatusCode, body)
	}

	// double fulfill is an illegal transition
	resp, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/orders/customer/"+o.ID+"/fulfill", nil, apiKeyHeader)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("refulfill status = %d, body %s", resp.StatusCode, body)
	}
}
