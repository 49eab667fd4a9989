package hub_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/engine"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/hub"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/testutils"
	"github.com/shubham-shewale/ticker-feed/pkg/models"
	"github.com/shubham-shewale/ticker-feed/pkg/protocol"
)

var supported = []string{"AAPL", "TSLA", "GOOG"}

func setup() (*hub.Hub, *testutils.MockSubscriptionStore) {
	store := testutils.NewMockSubscriptionStore()
	return hub.NewHub(store, nil, supported, zap.NewNop()), store
}

func subscribeReq(id string, symbols ...string) protocol.WSRequest {
	return protocol.WSRequest{
		Action:  protocol.ActionSubscribe,
		Payload: protocol.RequestPayload{Symbols: symbols},
		ID:      id,
	}
}

func unsubscribeReq(id string, symbols ...string) protocol.WSRequest {
	return protocol.WSRequest{
		Action:  protocol.ActionUnsubscribe,
		Payload: protocol.RequestPayload{Symbols: symbols},
		ID:      id,
	}
}

// assertInvariant checks both directions of the interest index for one
// client/symbol pair.
func assertInvariant(t *testing.T, h *hub.Hub, client hub.Client, symbol string, want bool) {
	t.Helper()

	inIndex := false
	for _, c := range h.InterestedIn(symbol) {
		if c == client {
			inIndex = true
		}
	}
	inClient := false
	for _, s := range h.Interests(client) {
		if s == symbol {
			inClient = true
		}
	}
	if inIndex != inClient {
		t.Fatalf("Index invariant broken for %s: index=%v client=%v", symbol, inIndex, inClient)
	}
	if inIndex != want {
		t.Errorf("Expected interest(%s)=%v, got %v", symbol, want, inIndex)
	}
}

func TestHub_Subscribe_Success(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	h.HandleCommand(client, subscribeReq("req-1", "AAPL"))

	if client.LastMsgType() != protocol.TypeAck {
		t.Errorf("Expected ack, got %s", client.LastMsgType())
	}
	assertInvariant(t, h, client, "AAPL", true)

	if !store.Has("u1", "AAPL") {
		t.Error("Subscription should be persisted to the store")
	}
}

func TestHub_Subscribe_InvalidSymbolRejectsWholeRequest(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	h.HandleCommand(client, subscribeReq("req-2", "AAPL", "INVALID_STOCK"))

	if client.LastMsgType() != protocol.TypeError {
		t.Fatalf("Expected error for invalid symbol, got %s", client.LastMsgType())
	}
	// No mutation may happen for a rejected request
	assertInvariant(t, h, client, "AAPL", false)
	if store.Has("u1", "AAPL") {
		t.Error("Rejected request must not persist anything")
	}

	lastMsg := client.Messages[len(client.Messages)-1]
	if !strings.Contains(lastMsg.Message, "INVALID_STOCK") {
		t.Errorf("Error should name the offending symbol, got: %s", lastMsg.Message)
	}
}

func TestHub_Subscribe_Idempotency(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	h.HandleCommand(client, subscribeReq("", "AAPL"))
	h.HandleCommand(client, subscribeReq("", "AAPL"))

	if got := len(h.Interests(client)); got != 1 {
		t.Errorf("Expected 1 interest after duplicate subscribe, got %d", got)
	}
}

func TestHub_Unsubscribe_Logic(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	h.HandleCommand(client, subscribeReq("", "AAPL", "TSLA"))
	h.HandleCommand(client, unsubscribeReq("", "AAPL"))

	assertInvariant(t, h, client, "AAPL", false)
	assertInvariant(t, h, client, "TSLA", true)

	if store.Has("u1", "AAPL") {
		t.Error("AAPL should be removed from the store")
	}
	if !store.Has("u1", "TSLA") {
		t.Error("TSLA should still be in the store")
	}
}

func TestHub_Unsubscribe_NotSubscribed(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	h.HandleCommand(client, unsubscribeReq("err-check", "GOOG"))

	if client.LastMsgType() != protocol.TypeError {
		t.Errorf("Expected error response for unsubscribing non-watched symbol")
	}
}

func TestHub_UnsubscribeAll(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	h.HandleCommand(client, subscribeReq("", "AAPL", "TSLA"))
	h.HandleCommand(client, protocol.WSRequest{Action: protocol.ActionUnsubscribeAll})

	if got := len(h.Interests(client)); got != 0 {
		t.Errorf("Expected empty interest set, got %d symbols", got)
	}
	if store.Has("u1", "AAPL") || store.Has("u1", "TSLA") {
		t.Error("Store should be empty after unsubscribe_all")
	}
}

func TestHub_Register_SeedsFromWatchlist(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1", "u1")

	h.Register(client, []string{"AAPL", "GOOG", "BOGUS"})

	assertInvariant(t, h, client, "AAPL", true)
	assertInvariant(t, h, client, "GOOG", true)
	if got := len(h.Interests(client)); got != 2 {
		t.Errorf("Unsupported seed symbols must be skipped, got %d interests", got)
	}
}

func TestHub_Unregister(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, []string{"AAPL", "TSLA"})

	h.Unregister(client)

	assertInvariant(t, h, client, "AAPL", false)
	assertInvariant(t, h, client, "TSLA", false)
	if !client.Closed {
		t.Error("Unregister should close the client")
	}

	// Safe to call again, and for clients that never registered
	h.Unregister(client)
	h.Unregister(testutils.NewMockClient("ghost", "u9"))
}

func TestHub_SetUserInterest_Retroactive(t *testing.T) {
	h, _ := setup()
	c1 := testutils.NewMockClient("c1", "u1")
	c2 := testutils.NewMockClient("c2", "u1")
	other := testutils.NewMockClient("c3", "u2")
	h.Register(c1, nil)
	h.Register(c2, nil)
	h.Register(other, nil)

	if touched := h.SetUserInterest("u1", "AAPL", true); touched != 2 {
		t.Errorf("Expected 2 connections touched, got %d", touched)
	}
	assertInvariant(t, h, c1, "AAPL", true)
	assertInvariant(t, h, c2, "AAPL", true)
	assertInvariant(t, h, other, "AAPL", false)

	// Unsubscribing removes every open connection of the user at once
	h.SetUserInterest("u1", "AAPL", false)
	assertInvariant(t, h, c1, "AAPL", false)
	assertInvariant(t, h, c2, "AAPL", false)

	h.Broadcast(models.PriceUpdate{Symbol: "AAPL", Price: 100})
	if len(c1.PriceUpdates()) != 0 || len(c2.PriceUpdates()) != 0 {
		t.Error("No tick may be delivered after unsubscribe returned")
	}
}

func TestHub_Broadcast_OnlyInterested(t *testing.T) {
	h, _ := setup()
	sub := testutils.NewMockClient("c1", "u1")
	bystander := testutils.NewMockClient("c2", "u2")
	h.Register(sub, []string{"GOOG"})
	h.Register(bystander, []string{"TSLA"})

	h.Broadcast(models.PriceUpdate{Symbol: "GOOG", Price: 2900, SeqID: 1})

	if got := len(sub.PriceUpdates()); got != 1 {
		t.Fatalf("Expected 1 delivery to subscriber, got %d", got)
	}
	if got := len(bystander.PriceUpdates()); got != 0 {
		t.Errorf("Expected 0 deliveries to bystander, got %d", got)
	}
}

func TestHub_Broadcast_IsolatesFailingClient(t *testing.T) {
	h, _ := setup()
	broken := testutils.NewMockClient("c1", "u1")
	broken.PanicOnSend = true
	healthy := testutils.NewMockClient("c2", "u2")
	h.Register(broken, []string{"GOOG"})
	h.Register(healthy, []string{"GOOG"})

	h.Broadcast(models.PriceUpdate{Symbol: "GOOG", Price: 2900, SeqID: 1})

	if got := len(healthy.PriceUpdates()); got != 1 {
		t.Errorf("Healthy client must still receive the tick, got %d deliveries", got)
	}
}

// Scenario from the feed contract: a user subscribed to GOOG only sees
// exactly one delivery per GOOG tick and nothing for TSLA.
func TestHub_EngineFanout_GoogOnly(t *testing.T) {
	store := testutils.NewMockSubscriptionStore()
	h := hub.NewHub(store, nil, []string{"GOOG", "TSLA"}, zap.NewNop())
	// No snapshotter wired: this test counts tick deliveries only
	e := engine.NewEngine(zap.NewNop(), []string{"GOOG", "TSLA"},
		&testutils.MockRand{ValFloat: 0.5}, &testutils.MockClock{}, time.Second, h)

	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, []string{"GOOG"})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.Advance(ctx)
	}

	var googTicks, tslaTicks []models.PriceUpdate
	for _, u := range client.PriceUpdates() {
		if u.SeqID == 0 {
			continue // admission snapshot, not a tick
		}
		switch u.Symbol {
		case "GOOG":
			googTicks = append(googTicks, u)
		case "TSLA":
			tslaTicks = append(tslaTicks, u)
		}
	}

	if len(googTicks) != 3 {
		t.Errorf("Expected exactly 3 GOOG deliveries, got %d", len(googTicks))
	}
	if len(tslaTicks) != 0 {
		t.Errorf("Expected 0 TSLA deliveries, got %d", len(tslaTicks))
	}
	for i, u := range googTicks {
		if u.SeqID != int64(i+1) {
			t.Errorf("Per-symbol ordering broken: delivery %d has SeqID %d", i, u.SeqID)
		}
	}
}

func TestHub_Register_PushesSnapshot(t *testing.T) {
	store := testutils.NewMockSubscriptionStore()
	h := hub.NewHub(store, nil, supported, zap.NewNop())
	e := engine.NewEngine(zap.NewNop(), []string{"GOOG"},
		&testutils.MockRand{ValFloat: 0.5}, &testutils.MockClock{}, time.Second, h)
	h.SetSnapshotter(e)

	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, []string{"GOOG"})

	// Snapshot push is async
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(client.PriceUpdates()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	updates := client.PriceUpdates()
	if len(updates) == 0 {
		t.Fatal("Expected an immediate snapshot after registration")
	}
	if updates[0].Symbol != "GOOG" || updates[0].Price != 2900.00 {
		t.Errorf("Unexpected snapshot: %+v", updates[0])
	}
}

func TestHub_RaceCondition(t *testing.T) {
	// Run with `go test -race ./...`
	h, _ := setup()
	client := testutils.NewMockClient("c1", "u1")
	h.Register(client, nil)

	go func() {
		h.HandleCommand(client, subscribeReq("", "AAPL"))
	}()
	go func() {
		h.HandleCommand(client, unsubscribeReq("", "AAPL"))
	}()
	go func() {
		h.Broadcast(models.PriceUpdate{Symbol: "AAPL", Price: 100})
	}()
	go func() {
		h.Unregister(client)
	}()
}
