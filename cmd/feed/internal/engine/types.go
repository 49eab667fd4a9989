package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// for deterministic values
type Rand interface {
	Float64() float64
}

// Sink receives every tick the engine produces.
// The engine never talks to connections directly; the hub, the price
// cache and the journal all plug in here.
type Sink interface {
	Publish(ctx context.Context, update models.PriceUpdate) error
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }
