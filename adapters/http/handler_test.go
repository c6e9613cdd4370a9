package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/tokenrank/adapters/clock"
	"github.com/artpar/tokenrank/adapters/hasher"
	tokhttp "github.com/artpar/tokenrank/adapters/http"
	"github.com/artpar/tokenrank/adapters/idgen"
	"github.com/artpar/tokenrank/adapters/memory"
	"github.com/artpar/tokenrank/app"
	"github.com/rs/zerolog"
)

var testTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	server   *httptest.Server
	profiles *memory.ProfileStore
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		profiles: memory.NewProfileStore(),
		clock:    clock.NewFake(testTime),
	}
	log := memory.NewUsageLogStore()
	cache := memory.NewRankCache()
	codes := memory.NewDeviceCodeStore()
	h := hasher.Fake{}

	ingest := app.NewIngestService(app.IngestDeps{
		Profiles: f.profiles,
		Log:      log,
		Cache:    cache,
		Hasher:   h,
		Clock:    f.clock,
		IDGen:    idgen.NewSequential("entry-"),
		Logger:   zerolog.Nop(),
	})
	rank := app.NewRankService(app.RankDeps{
		Profiles: f.profiles,
		Log:      log,
		Cache:    cache,
		Clock:    f.clock,
		Logger:   zerolog.Nop(),
	})
	device := app.NewDeviceService(app.DeviceDeps{
		Profiles: f.profiles,
		Codes:    codes,
		Hasher:   h,
		Clock:    f.clock,
		Logger:   zerolog.Nop(),
	})

	handler := tokhttp.NewHandler(ingest, rank, device, zerolog.Nop(), tokhttp.HandlerConfig{})
	router := tokhttp.NewRouter(handler, tokhttp.NewHealthHandler(), zerolog.Nop(), tokhttp.RouterConfig{})

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) register(t *testing.T, handle, key string) {
	t.Helper()
	if _, err := f.profiles.Upsert(context.Background(), handle, key, testTime); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func (f *fixture) post(t *testing.T, path string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func otlpBody(handle, key string, tokenType string, value int64) string {
	return fmt.Sprintf(`{
		"resourceMetrics": [{
			"resource": {"attributes": [
				{"key": "twitter_handle", "value": {"stringValue": %q}},
				{"key": "cr_api_key", "value": {"stringValue": %q}}
			]},
			"scopeMetrics": [{
				"metrics": [{
					"name": "token.usage",
					"sum": {"dataPoints": [{
						"asInt": "%d",
						"attributes": [{"key": "token_type", "value": {"stringValue": %q}}]
					}]}
				}]
			}]
		}]
	}`, handle, key, value, tokenType)
}

func TestIngestEndpoint(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "sk_rank_aaa")

	resp, body := f.post(t, "/api/v1/metrics", otlpBody("alice", "sk_rank_aaa", "input", 1500))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["tokens"].(float64) != 1500 {
		t.Errorf("tokens = %v, want 1500", body["tokens"])
	}
}

func TestIngestEndpoint_Errors(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "sk_rank_aaa")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   "malformed_payload",
		},
		{
			name:       "missing attributes",
			body:       otlpBody("", "", "input", 100),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "missing_attributes",
		},
		{
			name:       "wrong key",
			body:       otlpBody("alice", "sk_rank_nope", "input", 100),
			wantStatus: http.StatusForbidden,
			wantCode:   "invalid_credentials",
		},
		{
			name:       "unknown handle",
			body:       otlpBody("ghost", "sk_rank_aaa", "input", 100),
			wantStatus: http.StatusForbidden,
			wantCode:   "invalid_credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.post(t, "/api/v1/metrics", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			errObj, ok := body["error"].(map[string]any)
			if !ok {
				t.Fatalf("no error object in body: %v", body)
			}
			if errObj["code"] != tt.wantCode {
				t.Errorf("error code = %v, want %s", errObj["code"], tt.wantCode)
			}
		})
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "sk_rank_aaa")
	f.register(t, "bob", "sk_rank_bbb")

	f.post(t, "/api/v1/metrics", otlpBody("alice", "sk_rank_aaa", "input", 300))
	f.post(t, "/api/v1/metrics", otlpBody("bob", "sk_rank_bbb", "input", 700))

	resp, body := f.get(t, "/api/leaderboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	rows := body["users"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0].(map[string]any)
	if first["twitter_handle"] != "bob" {
		t.Errorf("top handle = %v, want bob", first["twitter_handle"])
	}
	if first["rank"].(float64) != 1 {
		t.Errorf("top rank = %v, want 1", first["rank"])
	}
	if first["total_tokens"].(float64) != 700 {
		t.Errorf("top total = %v, want 700", first["total_tokens"])
	}

	stats := body["stats"].(map[string]any)
	if stats["active_users_24h"].(float64) != 2 {
		t.Errorf("active users = %v, want 2", stats["active_users_24h"])
	}
	if stats["last_24h_tokens"].(float64) != 1000 {
		t.Errorf("last 24h tokens = %v, want 1000", stats["last_24h_tokens"])
	}
	if stats["peak_throughput"].(float64) <= 0 {
		t.Errorf("peak throughput = %v, want > 0", stats["peak_throughput"])
	}
	if _, ok := stats["graph_data"].([]any); !ok {
		t.Errorf("graph_data missing or wrong shape: %v", stats["graph_data"])
	}
}

func TestUserEndpoint(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "sk_rank_aaa")
	f.post(t, "/api/v1/metrics", otlpBody("alice", "sk_rank_aaa", "cache_read", 400))
	f.post(t, "/api/v1/metrics", otlpBody("alice", "sk_rank_aaa", "input", 100))

	resp, body := f.get(t, "/api/user/alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["rank"].(float64) != 1 {
		t.Errorf("rank = %v, want 1", body["rank"])
	}
	// 400 cache reads out of 500 prompt tokens.
	if body["savings_score"].(float64) != 80 {
		t.Errorf("savings_score = %v, want 80", body["savings_score"])
	}
	// Cache reads are excluded from the ranking total.
	if body["total_tokens"].(float64) != 100 {
		t.Errorf("total_tokens = %v, want 100", body["total_tokens"])
	}
}

func TestUserEndpoint_NotFound(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/api/user/ghost")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeviceFlowEndpoints(t *testing.T) {
	f := newFixture(t)

	// Start
	resp, body := f.post(t, "/api/auth/device", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	code := body["device_code"].(string)
	if len(code) != 6 {
		t.Errorf("device code %q, want 6 chars", code)
	}
	if body["interval"].(float64) != 5 {
		t.Errorf("interval = %v, want 5", body["interval"])
	}
	if uri, _ := body["verification_uri"].(string); !strings.Contains(uri, code) {
		t.Errorf("verification_uri %v does not carry the code", body["verification_uri"])
	}

	// Poll while pending
	resp, body = f.get(t, "/api/auth/device?code="+code)
	if resp.StatusCode != http.StatusOK || body["status"] != "pending" {
		t.Fatalf("pending poll = %d %v", resp.StatusCode, body)
	}

	// Verify from the browser
	resp, body = f.post(t, "/api/auth/device/verify",
		fmt.Sprintf(`{"code": %q, "twitter_handle": "@Carol"}`, code))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, want 200", resp.StatusCode)
	}
	if body["twitter_handle"] != "carol" {
		t.Errorf("verified handle = %v, want carol", body["twitter_handle"])
	}

	// Poll again: complete, key handed out
	resp, body = f.get(t, "/api/auth/device?code="+code)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete poll status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "complete" {
		t.Fatalf("poll status = %v, want complete", body["status"])
	}
	apiKey := body["api_key"].(string)
	if !strings.HasPrefix(apiKey, "sk_rank_") {
		t.Errorf("api key %q missing sk_rank_ prefix", apiKey)
	}

	// The issued key verifies
	resp, body = f.post(t, "/api/auth/verify", fmt.Sprintf(`{"api_key": %q}`, apiKey))
	if resp.StatusCode != http.StatusOK || body["valid"] != true {
		t.Fatalf("verify key = %d %v", resp.StatusCode, body)
	}

	// One-time pickup: the code is gone now
	resp, _ = f.get(t, "/api/auth/device?code="+code)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second poll status = %d, want 404", resp.StatusCode)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/auth/generate", `{"twitter_handle": "dave"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	key := body["api_key"].(string)
	if !strings.HasPrefix(key, "sk_rank_") {
		t.Errorf("key %q missing prefix", key)
	}

	// Missing handle rejected
	resp, _ = f.post(t, "/api/auth/generate", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing handle status = %d, want 400", resp.StatusCode)
	}
}

func TestVerifyEndpoint_InvalidKey(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/auth/verify", `{"api_key": "sk_rank_bogus"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["valid"] != false {
		t.Errorf("valid = %v, want false", body["valid"])
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
	resp, body = f.get(t, "/healthz/ready")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz/ready = %d %v", resp.StatusCode, body)
	}
}

func TestReadinessReportsUnhealthyDependency(t *testing.T) {
	health := tokhttp.NewHealthHandler(failingDep{})
	rec := httptest.NewRecorder()
	health.Readiness(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("unhealthy")) {
		t.Errorf("body %q missing unhealthy status", rec.Body.String())
	}
}

type failingDep struct{}

func (failingDep) HealthCheck(ctx context.Context) error {
	return fmt.Errorf("connection refused")
}
