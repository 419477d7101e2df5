// Package engine turns news predictions into trades sized to the top of book and
// unwinds each trade when the prediction resolves.
//
// An Engine is not reentrant. All handlers must be called from a single goroutine,
// one event at a time, in feed order.
package engine

import (
	"github.com/google/uuid"

	"github.com/hermish/traders-at-mit-2019/internal/credibility"
	"github.com/hermish/traders-at-mit-2019/internal/logger"
	"github.com/hermish/traders-at-mit-2019/internal/market"
	"github.com/hermish/traders-at-mit-2019/internal/models"
	"github.com/hermish/traders-at-mit-2019/internal/schedule"
)

// DefaultMargin is the minimum mispricing needed to take a position.
const DefaultMargin = 0.03

type Config struct {
	Epsilon float64
	Margin  float64
}

func DefaultConfig() Config {
	return Config{
		Epsilon: credibility.DefaultEpsilon,
		Margin:  DefaultMargin,
	}
}

// OrderSender submits order intents. Send must not block.
type OrderSender interface {
	Send(order models.OrderIntent)
}

// Journal receives scored predictions. Implementations must not block.
type Journal interface {
	RecordResolution(res models.Resolution) error
}

// Rand yields uniform draws in [0, 1).
type Rand interface {
	Float64() float64
}

// Stats counts engine activity since start.
type Stats struct {
	News     int
	Signals  int
	Clears   int
	Untraded int
}

// Outcome is everything one news item caused.
type Outcome struct {
	Resolved []models.Resolution
	Cleared  []models.OrderIntent
	Signal   *models.OrderIntent
}

type Engine struct {
	config   Config
	market   *market.Tracker
	cred     *credibility.Estimator
	clears   *schedule.Queue[models.Clear]
	sender   OrderSender
	journal  Journal
	rng      Rand
	account  models.AccountSnapshot
	stats    Stats
	newOrder func() string
}

func New(config Config, sender OrderSender, rng Rand) *Engine {
	if config.Margin < 0 {
		config.Margin = DefaultMargin
	}
	return &Engine{
		config:   config,
		market:   market.NewTracker(),
		cred:     credibility.New(config.Epsilon),
		clears:   schedule.New[models.Clear](),
		sender:   sender,
		rng:      rng,
		newOrder: func() string { return uuid.New().String() },
	}
}

// SetJournal attaches j. A nil journal disables resolution recording.
func (e *Engine) SetJournal(j Journal) {
	e.journal = j
}

func (e *Engine) Market() *market.Tracker {
	return e.market
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// CredibilityStats reports the estimator's counters.
func (e *Engine) CredibilityStats() credibility.Stats {
	return e.cred.Stats()
}

// Credibility returns a copy of every source deviation.
func (e *Engine) Credibility() map[string]float64 {
	return e.cred.Snapshot()
}

// PendingClears returns the queued offsetting orders in heap order.
func (e *Engine) PendingClears() []models.Clear {
	items := e.clears.Items()
	out := make([]models.Clear, len(items))
	for i, it := range items {
		out[i] = it.Value
	}
	return out
}

// Account returns the last account snapshot.
func (e *Engine) Account() models.AccountSnapshot {
	return e.account
}

// OnRegister seeds the tracker with every tradeable security.
func (e *Engine) OnRegister(reg models.Registration) {
	n := 0
	for ticker, sec := range reg.Securities {
		if !sec.Tradeable {
			logger.Debug("Skipping non-tradeable security %s", ticker)
			continue
		}
		e.market.Register(ticker, sec.StartingPrice)
		n++
	}
	logger.Info("Registered %d tradeable securities", n)
}

// OnBookUpdate forwards a parsed book to the tracker.
func (e *Engine) OnBookUpdate(ticker string, bids, asks []market.Level, lastTradePrice *float64) {
	e.market.OnBookUpdate(ticker, bids, asks, lastTradePrice)
}

// OnAccount records the snapshot. Nothing in the trading logic reads it.
func (e *Engine) OnAccount(snap models.AccountSnapshot) {
	e.account = snap
	logger.Debug("Account snapshot: %d positions, %d open orders", len(snap.Positions), len(snap.OpenOrders))
}

// OnNews drains everything due at n.Time, then evaluates n.
func (e *Engine) OnNews(n models.News) Outcome {
	e.stats.News++
	var out Outcome

	if n.PredictedPrice < 0 {
		logger.Warn("Source %s predicted negative price %.4f for %s; distrusting permanently", n.Source, n.PredictedPrice, n.Ticker)
		e.cred.MarkPoisoned(n.Source)
	}

	out.Resolved = e.cred.Drain(n.Time, e.market)
	if e.journal != nil {
		for _, res := range out.Resolved {
			if err := e.journal.RecordResolution(res); err != nil {
				logger.Warn("Failed to journal resolution for %s: %v", res.Source, err)
			}
		}
	}
	out.Cleared = e.drainClears(n.Time)

	out.Signal = e.evaluate(n)

	e.cred.Schedule(models.Prediction{
		ResolutionTime: n.ResolutionTime,
		Ticker:         n.Ticker,
		Source:         n.Source,
		PredictedPrice: n.PredictedPrice,
	})
	return out
}

func (e *Engine) drainClears(now int64) []models.OrderIntent {
	var out []models.OrderIntent
	e.clears.DrainDue(now, func(it schedule.Item[models.Clear]) {
		c := it.Value
		side, qty := models.SideBuy, c.Volume
		if qty < 0 {
			side, qty = models.SideSell, -qty
		}
		if qty == 0 {
			return
		}
		order := e.emit(side, c.Ticker, qty, models.ReasonClear, now)
		e.stats.Clears++
		out = append(out, order)
	})
	return out
}

func (e *Engine) evaluate(n models.News) *models.OrderIntent {
	trust, ok := e.cred.TrustProbability(n.Source)
	if !ok {
		logger.Debug("No credibility yet for source %s", n.Source)
		return nil
	}
	tk, ok := e.market.Ticker(n.Ticker)
	if !ok {
		logger.Debug("News for untracked ticker %s", n.Ticker)
		return nil
	}
	if e.rng.Float64() >= trust {
		return nil
	}

	price := tk.LastPrice
	var (
		side  models.Side
		level market.Level
		found bool
	)
	// Size from the side the order trades against: a buy takes the best ask's
	// volume, a sell the best bid's. Sizing a buy off the bid book would turn
	// bids {99:10} asks {101:5} into a buy of 10 rather than 5.
	switch {
	case price+e.config.Margin < n.PredictedPrice:
		side = models.SideBuy
		level, found = tk.BestAsk()
	case n.PredictedPrice < price-e.config.Margin:
		side = models.SideSell
		level, found = tk.BestBid()
	default:
		return nil
	}
	if !found || level.Size <= 0 {
		e.stats.Untraded++
		logger.Debug("No resting volume to %s %s", side, n.Ticker)
		return nil
	}

	order := e.emit(side, n.Ticker, level.Size, models.ReasonSignal, n.Time)
	e.stats.Signals++
	e.clears.Push(n.ResolutionTime, n.Ticker, models.Clear{
		ResolutionTime: n.ResolutionTime,
		Ticker:         n.Ticker,
		Volume:         -order.Signed(),
	})
	logger.Info("Signal from %s (trust %.3f): %s %g %s at market, price %.4f predicted %.4f, clear at %d",
		n.Source, trust, side, level.Size, n.Ticker, price, n.PredictedPrice, n.ResolutionTime)
	return &order
}

func (e *Engine) emit(side models.Side, ticker string, qty float64, reason models.Reason, now int64) models.OrderIntent {
	order := models.OrderIntent{
		ID:       e.newOrder(),
		Side:     side,
		Ticker:   ticker,
		Quantity: qty,
		Reason:   reason,
		NewsTime: now,
	}
	e.sender.Send(order)
	return order
}
