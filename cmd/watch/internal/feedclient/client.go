package feedclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/pkg/models"
	"github.com/shubham-shewale/ticker-feed/pkg/protocol"
)

// ErrUnauthorized means the feed rejected the credential at handshake.
var ErrUnauthorized = fmt.Errorf("feed rejected credential")

// Client consumes the price stream over a persistent websocket.
type Client struct {
	url    string
	token  string
	logger *zap.Logger
}

func New(url, token string, logger *zap.Logger) *Client {
	return &Client{url: url, token: token, logger: logger}
}

// Dial opens the authenticated connection. The credential travels in
// the Authorization header; a 401 surfaces as ErrUnauthorized.
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dialing feed: %w", err)
	}
	return conn, nil
}

// Run reads the stream and forwards price events until the context is
// cancelled or the connection drops.
func (c *Client) Run(ctx context.Context, conn *websocket.Conn, events chan<- models.PriceUpdate) error {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading feed: %w", err)
		}

		var resp protocol.WSResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			c.logger.Warn("Malformed frame from feed", zap.Error(err))
			continue
		}
		if resp.Type != protocol.TypePrice {
			continue
		}

		var update models.PriceUpdate
		if err := json.Unmarshal(resp.Data, &update); err != nil {
			c.logger.Warn("Malformed price event", zap.Error(err))
			continue
		}

		select {
		case events <- update:
		case <-ctx.Done():
			return nil
		}
	}
}

// Subscribe sends a live subscribe request for extra symbols.
func (c *Client) Subscribe(conn *websocket.Conn, symbols ...string) error {
	req := protocol.WSRequest{
		Action:  protocol.ActionSubscribe,
		Payload: protocol.RequestPayload{Symbols: symbols},
	}
	return conn.WriteJSON(req)
}
