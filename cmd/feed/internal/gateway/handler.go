package gateway

import (
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/auth"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/hub"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/repository"
)

// Gateway authenticates connection attempts and admits them to the hub.
type Gateway struct {
	hub      *hub.Hub
	verifier *auth.Verifier
	store    repository.SubscriptionStore
	logger   *zap.Logger
}

func NewGateway(h *hub.Hub, verifier *auth.Verifier, store repository.SubscriptionStore, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:      h,
		verifier: verifier,
		store:    store,
		logger:   logger,
	}
}

// HandleWS verifies the bearer credential before the upgrade; a
// rejected attempt never opens a data path.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := g.verifier.Verify(auth.BearerToken(r))
	if err != nil {
		g.logger.Warn("Rejected connection attempt", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	// Seed the interest set from the watchlist source of truth. If the
	// store is unreachable, admit with an empty set rather than
	// blocking the connection; the user can still subscribe live.
	seed, err := g.store.GetSubscriptions(r.Context(), userID)
	if err != nil {
		g.logger.Warn("Subscription store unavailable, admitting with empty watchlist",
			zap.String("user_id", userID), zap.Error(err))
		seed = nil
	}

	client := NewClient(conn, userID, g.hub, g.logger)
	g.hub.Register(client, seed)
	client.Start()
}
