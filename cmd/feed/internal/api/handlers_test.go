package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/api"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/auth"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/hub"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/repository"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/testutils"
	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

var supported = []string{"GOOG", "TSLA"}

type fixture struct {
	server   *httptest.Server
	hub      *hub.Hub
	store    *testutils.MockSubscriptionStore
	cache    *repository.RedisStore
	verifier *auth.Verifier
}

func setup(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	cache := repository.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	store := testutils.NewMockSubscriptionStore()
	h := hub.NewHub(store, nil, supported, zap.NewNop())
	verifier := auth.NewVerifier("test-secret", time.Hour)

	mux := http.NewServeMux()
	api.NewServer(h, store, cache, verifier, supported, zap.NewNop()).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &fixture{server: server, hub: h, store: store, cache: cache, verifier: verifier}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAPI_Supported(t *testing.T) {
	f := setup(t)

	resp := f.do(t, "GET", "/api/supported", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var tickers []string
	json.NewDecoder(resp.Body).Decode(&tickers)
	if len(tickers) != 2 {
		t.Errorf("Expected 2 supported tickers, got %v", tickers)
	}
}

func TestAPI_Subscribe_RequiresAuth(t *testing.T) {
	f := setup(t)

	resp := f.do(t, "POST", "/api/subscribe", "", map[string]string{"ticker": "GOOG"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestAPI_Subscribe_InvalidTicker(t *testing.T) {
	f := setup(t)
	token, _ := f.verifier.Issue("u1")

	resp := f.do(t, "POST", "/api/subscribe", token, map[string]string{"ticker": "BOGUS"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid ticker, got %d", resp.StatusCode)
	}
	if f.store.Has("u1", "BOGUS") {
		t.Error("Invalid ticker must not be persisted")
	}
}

func TestAPI_Subscribe_PersistsAndReachesLiveConnections(t *testing.T) {
	f := setup(t)
	token, _ := f.verifier.Issue("u1")

	// Simulate an already-open connection for the same user
	client := testutils.NewMockClient("c1", "u1")
	f.hub.Register(client, nil)

	resp := f.do(t, "POST", "/api/subscribe", token, map[string]string{"ticker": "goog"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	// Lowercase input is normalized before validation
	if !f.store.Has("u1", "GOOG") {
		t.Error("Subscription should be persisted")
	}

	interested := false
	for _, c := range f.hub.InterestedIn("GOOG") {
		if c == client {
			interested = true
		}
	}
	if !interested {
		t.Error("Open connection should gain the interest without reconnecting")
	}

	var body map[string][]string
	json.NewDecoder(resp.Body).Decode(&body)
	if len(body["subscriptions"]) != 1 || body["subscriptions"][0] != "GOOG" {
		t.Errorf("Expected subscriptions list [GOOG], got %v", body["subscriptions"])
	}
}

func TestAPI_Unsubscribe_RemovesFromLiveConnections(t *testing.T) {
	f := setup(t)
	token, _ := f.verifier.Issue("u1")

	client := testutils.NewMockClient("c1", "u1")
	f.hub.Register(client, []string{"GOOG"})
	f.store.AddSubscription(context.Background(), "u1", "GOOG")

	resp := f.do(t, "POST", "/api/unsubscribe", token, map[string]string{"ticker": "GOOG"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if f.store.Has("u1", "GOOG") {
		t.Error("Subscription should be removed from the store")
	}
	if len(f.hub.InterestedIn("GOOG")) != 0 {
		t.Error("Open connection should lose the interest immediately")
	}
}

func TestAPI_Subscriptions(t *testing.T) {
	f := setup(t)
	token, _ := f.verifier.Issue("u1")
	f.store.AddSubscription(context.Background(), "u1", "TSLA")

	resp := f.do(t, "GET", "/api/subscriptions", token, nil)
	defer resp.Body.Close()

	var subs []string
	json.NewDecoder(resp.Body).Decode(&subs)
	if len(subs) != 1 || subs[0] != "TSLA" {
		t.Errorf("Expected [TSLA], got %v", subs)
	}
}

func TestAPI_Prices(t *testing.T) {
	f := setup(t)
	f.cache.Publish(context.Background(), models.PriceUpdate{Symbol: "GOOG", Price: 2900.5, SeqID: 1})

	resp := f.do(t, "GET", "/api/prices?symbols=GOOG", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var snaps []models.PriceUpdate
	json.NewDecoder(resp.Body).Decode(&snaps)
	if len(snaps) != 1 || snaps[0].Price != 2900.5 {
		t.Errorf("Expected cached GOOG snapshot, got %v", snaps)
	}
}

func TestAPI_Prices_InvalidSymbol(t *testing.T) {
	f := setup(t)

	resp := f.do(t, "GET", "/api/prices?symbols=BOGUS", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid symbol, got %d", resp.StatusCode)
	}
}
