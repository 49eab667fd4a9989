package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/journal"
	"github.com/shubham-shewale/ticker-feed/pkg/models"
	"github.com/shubham-shewale/ticker-feed/pkg/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal       string
	UserIDVal   string
	Messages    []protocol.WSResponse // Stores decoded JSON control messages
	RawBytes    []string              // Stores raw frames
	Closed      bool
	PanicOnSend bool // simulates a connection torn down mid-delivery
	Mu          sync.Mutex
}

func NewMockClient(id, userID string) *MockClient {
	return &MockClient{IDVal: id, UserIDVal: userID, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string     { return m.IDVal }
func (m *MockClient) UserID() string { return m.UserIDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	if m.PanicOnSend {
		panic("send on closed connection")
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsgType() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1].Type
}

// PriceUpdates decodes every received price frame.
func (m *MockClient) PriceUpdates() []models.PriceUpdate {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	var updates []models.PriceUpdate
	for _, raw := range m.RawBytes {
		var resp protocol.WSResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.Type != protocol.TypePrice {
			continue
		}
		var update models.PriceUpdate
		if err := json.Unmarshal(resp.Data, &update); err != nil {
			continue
		}
		updates = append(updates, update)
	}
	return updates
}

// MockSubscriptionStore simulates the durable watchlist store
type MockSubscriptionStore struct {
	Subs       map[string]map[string]bool // userID -> symbols
	ShouldFail bool
	Mu         sync.Mutex
}

func NewMockSubscriptionStore() *MockSubscriptionStore {
	return &MockSubscriptionStore{Subs: make(map[string]map[string]bool)}
}

func (m *MockSubscriptionStore) GetSubscriptions(ctx context.Context, userID string) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("store unavailable")
	}
	var symbols []string
	for sym := range m.Subs[userID] {
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

func (m *MockSubscriptionStore) AddSubscription(ctx context.Context, userID, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("store unavailable")
	}
	if m.Subs[userID] == nil {
		m.Subs[userID] = make(map[string]bool)
	}
	m.Subs[userID][symbol] = true
	return nil
}

func (m *MockSubscriptionStore) RemoveSubscription(ctx context.Context, userID, symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("store unavailable")
	}
	delete(m.Subs[userID], symbol)
	return nil
}

func (m *MockSubscriptionStore) Close() error { return nil }

func (m *MockSubscriptionStore) Has(userID, symbol string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Subs[userID][symbol]
}

// MockSink collects engine output
type MockSink struct {
	Updates []models.PriceUpdate
	PanicOn string // symbol that triggers a panic, for isolation tests
	Mu      sync.Mutex
}

func (m *MockSink) Publish(ctx context.Context, update models.PriceUpdate) error {
	if m.PanicOn != "" && update.Symbol == m.PanicOn {
		panic("sink blew up")
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Updates = append(m.Updates, update)
	return nil
}

func (m *MockSink) BySymbol(symbol string) []models.PriceUpdate {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var updates []models.PriceUpdate
	for _, u := range m.Updates {
		if u.Symbol == symbol {
			updates = append(updates, u)
		}
	}
	return updates
}

type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time        { return m.CurrentTime }
func (m *MockClock) Sleep(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }

type MockRand struct {
	ValFloat float64
}

func (m *MockRand) Float64() float64 { return m.ValFloat }

// MockKafkaWriter records journal writes
type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

type MockKafkaConn struct {
	CreatedTopics []string
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	// Simulate "Ready" state immediately
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (journal.KafkaConn, error) {
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
