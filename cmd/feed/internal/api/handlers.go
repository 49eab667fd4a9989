package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/auth"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/hub"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/repository"
)

// Server exposes the watchlist REST surface. Subscribe and unsubscribe
// also flow into the hub so open connections take effect immediately.
type Server struct {
	hub       *hub.Hub
	store     repository.SubscriptionStore
	cache     repository.PriceCache
	verifier  *auth.Verifier
	supported []string
	logger    *zap.Logger
}

func NewServer(
	h *hub.Hub,
	store repository.SubscriptionStore,
	cache repository.PriceCache,
	verifier *auth.Verifier,
	supported []string,
	logger *zap.Logger,
) *Server {
	return &Server{
		hub:       h,
		store:     store,
		cache:     cache,
		verifier:  verifier,
		supported: supported,
		logger:    logger,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/supported", s.handleSupported)
	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/subscriptions", s.withAuth(s.handleSubscriptions))
	mux.HandleFunc("POST /api/subscribe", s.withAuth(s.handleSubscribe))
	mux.HandleFunc("POST /api/unsubscribe", s.withAuth(s.handleUnsubscribe))
}

type tickerRequest struct {
	Ticker string `json:"ticker"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSupported(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.supported)
}

// handlePrices serves the last cached tick per requested symbol, or for
// the whole supported set when no symbols are given.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbols := s.supported
	if q := r.URL.Query().Get("symbols"); q != "" {
		symbols = nil
		for _, sym := range strings.Split(q, ",") {
			sym = normalize(sym)
			if !s.hub.ValidSymbol(sym) {
				writeError(w, http.StatusBadRequest, "invalid ticker")
				return
			}
			symbols = append(symbols, sym)
		}
	}

	snapshots, err := s.cache.GetSnapshots(r.Context(), symbols)
	if err != nil {
		s.logger.Error("Snapshot read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request, userID string) {
	subs, err := s.store.GetSubscriptions(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to load subscriptions", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, userID string) {
	s.mutateSubscription(w, r, userID, true)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, userID string) {
	s.mutateSubscription(w, r, userID, false)
}

func (s *Server) mutateSubscription(w http.ResponseWriter, r *http.Request, userID string, subscribe bool) {
	var req tickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ticker := normalize(req.Ticker)
	// Invalid symbol: reject with no mutation anywhere
	if !s.hub.ValidSymbol(ticker) {
		writeError(w, http.StatusBadRequest, "invalid ticker")
		return
	}

	var err error
	if subscribe {
		err = s.store.AddSubscription(r.Context(), userID, ticker)
	} else {
		err = s.store.RemoveSubscription(r.Context(), userID, ticker)
	}
	if err != nil {
		s.logger.Error("Failed to persist watchlist change",
			zap.String("user_id", userID), zap.String("symbol", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	// Propagate to every open connection of this user
	touched := s.hub.SetUserInterest(userID, ticker, subscribe)
	s.logger.Info("Watchlist updated",
		zap.String("user_id", userID),
		zap.String("symbol", ticker),
		zap.Bool("subscribed", subscribe),
		zap.Int("live_connections", touched))

	subs, err := s.store.GetSubscriptions(r.Context(), userID)
	if err != nil {
		subs = nil
	}
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"subscriptions": subs})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.verifier.Verify(auth.BearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
