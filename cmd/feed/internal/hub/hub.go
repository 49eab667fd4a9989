package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/repository"
	"github.com/shubham-shewale/ticker-feed/pkg/models"
	"github.com/shubham-shewale/ticker-feed/pkg/protocol"
)

// ErrInvalidSymbol is returned for symbols outside the supported set.
var ErrInvalidSymbol = errors.New("invalid symbol")

type Client interface {
	ID() string
	UserID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// Snapshotter supplies the current price per symbol so newly subscribed
// connections see a value immediately instead of waiting a full tick.
type Snapshotter interface {
	Snapshot(symbols []string) []models.PriceUpdate
}

// Hub is the interest registry and fanout broker. It maintains a
// bidirectional index: client C is in subscribers[S] iff S is in
// clientSubs[C], plus a user -> connections index so subscribe calls
// made over REST reach every open connection of that user without
// scanning all connections.
type Hub struct {
	subscribers map[string]map[Client]bool
	clientSubs  map[Client]map[string]bool
	userClients map[string]map[Client]bool

	supported map[string]bool
	store     repository.SubscriptionStore
	prices    Snapshotter
	logger    *zap.Logger
	mu        sync.RWMutex
}

func NewHub(store repository.SubscriptionStore, prices Snapshotter, supported []string, logger *zap.Logger) *Hub {
	h := &Hub{
		subscribers: make(map[string]map[Client]bool),
		clientSubs:  make(map[Client]map[string]bool),
		userClients: make(map[string]map[Client]bool),
		supported:   make(map[string]bool, len(supported)),
		store:       store,
		prices:      prices,
		logger:      logger,
	}
	for _, sym := range supported {
		h.supported[sym] = true
	}
	return h
}

// SetSnapshotter wires the price source after construction; the engine
// needs the hub as a sink, so the hub is built first.
func (h *Hub) SetSnapshotter(prices Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices = prices
}

// ValidSymbol reports whether a symbol is in the fixed supported set.
func (h *Hub) ValidSymbol(symbol string) bool {
	return h.supported[symbol]
}

// Register admits an authenticated client and seeds its interest set.
// Unsupported seed symbols are skipped.
func (h *Hub) Register(client Client, seed []string) {
	h.mu.Lock()
	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}
	uid := client.UserID()
	if h.userClients[uid] == nil {
		h.userClients[uid] = make(map[Client]bool)
	}
	h.userClients[uid][client] = true

	var seeded []string
	for _, sym := range seed {
		if h.supported[sym] && !h.clientSubs[client][sym] {
			h.addInterestLocked(client, sym)
			seeded = append(seeded, sym)
		}
	}
	h.mu.Unlock()

	h.logger.Info("Client registered",
		zap.String("client_id", client.ID()),
		zap.String("user_id", uid),
		zap.Strings("seed", seeded))

	h.pushSnapshots(seeded, client)
}

// Unregister removes a client from every index. Idempotent and safe to
// call for a client that was never registered.
func (h *Hub) Unregister(client Client) {
	h.mu.Lock()
	subs, ok := h.clientSubs[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	for sym := range subs {
		h.removeInterestLocked(client, sym)
	}
	delete(h.clientSubs, client)

	uid := client.UserID()
	if conns, ok := h.userClients[uid]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, uid)
		}
	}
	h.mu.Unlock()

	client.Close()
}

// SetInterest adds or removes one symbol for one client. Idempotent; a
// no-op for unregistered clients or unsupported symbols.
func (h *Hub) SetInterest(client Client, symbol string, interested bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clientSubs[client]; !ok || !h.supported[symbol] {
		return
	}
	if interested {
		h.addInterestLocked(client, symbol)
	} else {
		h.removeInterestLocked(client, symbol)
	}
}

// SetUserInterest applies a subscribe/unsubscribe to every open
// connection of a user, so a REST call takes effect without a
// reconnect. Returns the number of connections touched.
func (h *Hub) SetUserInterest(userID, symbol string, interested bool) int {
	h.mu.Lock()
	var touched []Client
	for client := range h.userClients[userID] {
		if interested {
			h.addInterestLocked(client, symbol)
		} else {
			h.removeInterestLocked(client, symbol)
		}
		touched = append(touched, client)
	}
	h.mu.Unlock()

	if interested {
		h.pushSnapshots([]string{symbol}, touched...)
	}
	return len(touched)
}

// InterestedIn returns the clients currently subscribed to a symbol.
func (h *Hub) InterestedIn(symbol string) []Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]Client, 0, len(h.subscribers[symbol]))
	for client := range h.subscribers[symbol] {
		clients = append(clients, client)
	}
	return clients
}

// Interests returns the symbols a client is currently subscribed to.
func (h *Hub) Interests(client Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	symbols := make([]string, 0, len(h.clientSubs[client]))
	for sym := range h.clientSubs[client] {
		symbols = append(symbols, sym)
	}
	return symbols
}

// Publish lets the hub act as an engine sink.
func (h *Hub) Publish(_ context.Context, update models.PriceUpdate) error {
	h.Broadcast(update)
	return nil
}

// Broadcast delivers one tick to every interested client. Deliveries
// are independent: one client failing or lagging never affects the
// others or the caller.
func (h *Hub) Broadcast(update models.PriceUpdate) {
	frame, err := priceFrame(update)
	if err != nil {
		h.logger.Error("Failed to encode tick", zap.String("symbol", update.Symbol), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscribers[update.Symbol] {
		h.sendSafe(client, frame)
	}
}

func (h *Hub) sendSafe(client Client, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("Dropped delivery to client",
				zap.String("client_id", client.ID()), zap.Any("panic", r))
		}
	}()
	client.SendBytes(frame)
}

// HandleCommand processes a websocket subscribe/unsubscribe request.
func (h *Hub) HandleCommand(client Client, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleSubscribe(client Client, req protocol.WSRequest) {
	// Reject the whole request on any unsupported symbol: no mutation
	// may happen for an invalid request.
	for _, sym := range req.Payload.Symbols {
		if !h.supported[sym] {
			h.sendError(client, req.ID, ErrInvalidSymbol.Error()+": "+sym)
			return
		}
	}
	if len(req.Payload.Symbols) == 0 {
		h.sendError(client, req.ID, "No symbols provided")
		return
	}

	h.mu.Lock()
	if _, ok := h.clientSubs[client]; !ok {
		h.mu.Unlock()
		return
	}
	var added []string
	for _, sym := range req.Payload.Symbols {
		// Idempotency: Ignore if already subscribed
		if h.clientSubs[client][sym] {
			continue
		}
		h.addInterestLocked(client, sym)
		added = append(added, sym)
	}
	h.mu.Unlock()

	// Persist so the watchlist survives reconnects
	for _, sym := range added {
		if err := h.store.AddSubscription(context.Background(), client.UserID(), sym); err != nil {
			h.logger.Error("Failed to persist subscription",
				zap.String("user_id", client.UserID()), zap.String("symbol", sym), zap.Error(err))
		}
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", req.Payload.Symbols))
	h.pushSnapshots(added, client)
}

func (h *Hub) handleUnsubscribe(client Client, req protocol.WSRequest) {
	for _, sym := range req.Payload.Symbols {
		if !h.supported[sym] {
			h.sendError(client, req.ID, ErrInvalidSymbol.Error()+": "+sym)
			return
		}
	}

	h.mu.Lock()
	var removed []string
	if subs, ok := h.clientSubs[client]; ok {
		for _, sym := range req.Payload.Symbols {
			if subs[sym] {
				h.removeInterestLocked(client, sym)
				removed = append(removed, sym)
			}
		}
	}
	h.mu.Unlock()

	if len(removed) == 0 {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
		return
	}

	for _, sym := range removed {
		if err := h.store.RemoveSubscription(context.Background(), client.UserID(), sym); err != nil {
			h.logger.Error("Failed to remove persisted subscription",
				zap.String("user_id", client.UserID()), zap.String("symbol", sym), zap.Error(err))
		}
	}

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
}

func (h *Hub) handleUnsubscribeAll(client Client, req protocol.WSRequest) {
	h.mu.Lock()
	var removed []string
	if subs, ok := h.clientSubs[client]; ok {
		for sym := range subs {
			h.removeInterestLocked(client, sym)
			removed = append(removed, sym)
		}
		// Keep the client registered with an empty interest set
		h.clientSubs[client] = make(map[string]bool)
	}
	h.mu.Unlock()

	for _, sym := range removed {
		if err := h.store.RemoveSubscription(context.Background(), client.UserID(), sym); err != nil {
			h.logger.Error("Failed to remove persisted subscription",
				zap.String("user_id", client.UserID()), zap.String("symbol", sym), zap.Error(err))
		}
	}

	h.sendAck(client, req.ID, "success", "Unsubscribed from all symbols")
}

// addInterestLocked and removeInterestLocked keep both sides of the
// index in step; callers hold h.mu.
func (h *Hub) addInterestLocked(client Client, symbol string) {
	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}
	h.clientSubs[client][symbol] = true
	if h.subscribers[symbol] == nil {
		h.subscribers[symbol] = make(map[Client]bool)
	}
	h.subscribers[symbol][client] = true
}

func (h *Hub) removeInterestLocked(client Client, symbol string) {
	if subs, ok := h.clientSubs[client]; ok {
		delete(subs, symbol)
	}
	if clients, ok := h.subscribers[symbol]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscribers, symbol)
		}
	}
}

// pushSnapshots sends the current price for each symbol to the given
// clients. Async so the caller never blocks on slow consumers.
func (h *Hub) pushSnapshots(symbols []string, clients ...Client) {
	h.mu.RLock()
	prices := h.prices
	h.mu.RUnlock()
	if len(symbols) == 0 || len(clients) == 0 || prices == nil {
		return
	}
	go func() {
		for _, update := range prices.Snapshot(symbols) {
			frame, err := priceFrame(update)
			if err != nil {
				continue
			}
			for _, client := range clients {
				h.sendSafe(client, frame)
			}
		}
	}()
}

func priceFrame(update models.PriceUpdate) ([]byte, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return nil, err
	}
	return json.Marshal(protocol.WSResponse{Type: protocol.TypePrice, Data: data})
}

func (h *Hub) sendAck(c Client, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c Client, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: id, Message: msg})
}
