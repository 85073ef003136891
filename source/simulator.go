package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"basketflow/logger"
	"basketflow/models"
)

// Simulator is a deterministic stand-in for a vendor terminal feed
// (Bloomberg in production). Each instrument gets a stable base price
// derived from its id and a small pseudo-random walk on every fetch, so
// non-production environments see plausible, repeatable market data.
type Simulator struct {
	name        string
	latency     time.Duration
	failureRate float64 // 0..1, injected provider faults for drills

	mu  sync.Mutex
	rng *rand.Rand
	log *logger.Log
}

// NewSimulator creates a simulator source. A zero latency and failure rate
// give a perfectly reliable source.
func NewSimulator(name string, latency time.Duration, failureRate float64) *Simulator {
	return &Simulator{
		name:        name,
		latency:     latency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         logger.GetLogger(),
	}
}

func (s *Simulator) Name() string { return s.name }

func (s *Simulator) FetchQuote(ctx context.Context, instrumentID string) (models.Quote, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	walk := s.rng.Float64()*10 - 5
	s.mu.Unlock()

	if s.failureRate > 0 && roll < s.failureRate {
		return models.Quote{}, fmt.Errorf("%s: simulated provider outage", s.name)
	}

	base := basePriceFor(instrumentID)
	last := base.Add(decimal.NewFromFloat(walk).Round(2))
	if last.LessThanOrEqual(decimal.Zero) {
		last = decimal.NewFromFloat(0.01)
	}

	tick := decimal.NewFromFloat(0.05)
	band := decimal.NewFromInt(2)
	now := time.Now().UTC()

	q := models.Quote{
		InstrumentID: instrumentID,
		Symbol:       instrumentID,
		LastPrice:    last,
		BidPrice:     last.Sub(tick),
		AskPrice:     last.Add(tick),
		OpenPrice:    base,
		HighPrice:    last.Add(band),
		LowPrice:     last.Sub(band),
		Volume:       1000000,
		Currency:     "USD",
		Exchange:     "NYSE",
		Source:       s.name,
		Timestamp:    now,
		ReceivedAt:   now,
	}
	return q, nil
}

func (s *Simulator) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// basePriceFor derives a stable per-instrument base price in [50, 150)
// from a hash of the instrument id.
func basePriceFor(instrumentID string) decimal.Decimal {
	h := fnv.New32a()
	h.Write([]byte(instrumentID))
	offset := int64(h.Sum32() % 100)
	return decimal.NewFromInt(50 + offset)
}
