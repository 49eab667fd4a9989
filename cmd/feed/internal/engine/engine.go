package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

// initialDelay is how long after startup the first out-of-band emission
// happens, so early subscribers see a value before the first full tick.
const initialDelay = 200 * time.Millisecond

// seedPrices are the well-known starting values; unknown symbols get a
// random seed in [100, 1100).
var seedPrices = map[string]float64{
	"GOOG": 2900.00,
	"TSLA": 800.00,
	"AMZN": 3300.00,
	"META": 300.00,
	"NVDA": 200.00,
}

// Engine owns the authoritative current price per symbol and advances
// it on a fixed cadence. It has no knowledge of subscribers.
type Engine struct {
	logger     *zap.Logger
	symbols    []string
	tickPeriod time.Duration
	rand       Rand
	clock      Clock
	sinks      []Sink

	mu     sync.RWMutex
	prices map[string]float64
	seqs   map[string]int64
}

func NewEngine(
	logger *zap.Logger,
	symbols []string,
	rnd Rand,
	clock Clock,
	tickPeriod time.Duration,
	sinks ...Sink,
) *Engine {
	e := &Engine{
		logger:     logger,
		symbols:    symbols,
		tickPeriod: tickPeriod,
		rand:       rnd,
		clock:      clock,
		sinks:      sinks,
		prices:     make(map[string]float64),
		seqs:       make(map[string]int64),
	}
	for _, sym := range symbols {
		if seed, ok := seedPrices[sym]; ok {
			e.prices[sym] = seed
		} else {
			e.prices[sym] = round2(100 + rnd.Float64()*1000)
		}
	}
	return e
}

// Run drives the fixed cadence until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Engine Started",
		zap.Strings("symbols", e.symbols),
		zap.Duration("tick_period", e.tickPeriod))

	e.clock.Sleep(initialDelay)
	e.emitCurrent(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			e.clock.Sleep(e.tickPeriod)
			e.Advance(ctx)
		}
	}
}

// Advance computes one tick for every symbol and publishes the result.
// One symbol failing must not halt the others.
func (e *Engine) Advance(ctx context.Context) {
	for _, sym := range e.symbols {
		e.advanceSymbol(ctx, sym)
	}
}

func (e *Engine) advanceSymbol(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Tick panicked", zap.String("symbol", symbol), zap.Any("panic", r))
		}
	}()

	e.mu.Lock()
	old := e.prices[symbol]
	// small random percent change -1%..+1%
	pct := (e.rand.Float64() - 0.5) * 0.02
	next := round2(old * (1 + pct))
	// Prices must stay positive even if the delta range is ever widened
	if next <= 0 || math.IsNaN(next) || math.IsInf(next, 0) {
		next = old
	}
	e.prices[symbol] = next
	e.seqs[symbol]++
	seq := e.seqs[symbol]
	e.mu.Unlock()

	e.publish(ctx, models.PriceUpdate{
		Symbol:    symbol,
		Price:     next,
		Timestamp: e.clock.Now().UnixMilli(),
		SeqID:     seq,
	})
}

// emitCurrent publishes the seeded prices without advancing them.
func (e *Engine) emitCurrent(ctx context.Context) {
	for _, update := range e.Snapshot(e.symbols) {
		e.publish(ctx, update)
	}
}

func (e *Engine) publish(ctx context.Context, update models.PriceUpdate) {
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, update); err != nil {
			e.logger.Error("Sink publish failed",
				zap.String("symbol", update.Symbol), zap.Error(err))
		}
	}
}

// Snapshot returns the current price for each requested symbol. Unknown
// symbols are skipped. Used to seed newly subscribed connections.
func (e *Engine) Snapshot(symbols []string) []models.PriceUpdate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now().UnixMilli()
	var updates []models.PriceUpdate
	for _, sym := range symbols {
		price, ok := e.prices[sym]
		if !ok {
			continue
		}
		updates = append(updates, models.PriceUpdate{
			Symbol:    sym,
			Price:     price,
			Timestamp: now,
			SeqID:     e.seqs[sym],
		})
	}
	return updates
}

// Price returns the current price for one symbol.
func (e *Engine) Price(symbol string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	price, ok := e.prices[symbol]
	return price, ok
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
