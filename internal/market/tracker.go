// Package market tracks the last known price and order book of each tradeable ticker.
package market

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/hermish/traders-at-mit-2019/internal/logger"
)

// Level is one resting price level.
type Level struct {
	Price float64
	Size  float64
}

// Book is a snapshot of both sides. Bids are sorted ascending and asks
// descending, so the best level of each side is the last element.
type Book struct {
	Bids []Level
	Asks []Level
}

// Ticker is the tracked state of one security.
type Ticker struct {
	ID        string
	LastPrice float64
	Book      Book
}

// BestBid returns the highest bid.
func (t *Ticker) BestBid() (Level, bool) {
	if len(t.Book.Bids) == 0 {
		return Level{}, false
	}
	return t.Book.Bids[len(t.Book.Bids)-1], true
}

// BestAsk returns the lowest ask.
func (t *Ticker) BestAsk() (Level, bool) {
	if len(t.Book.Asks) == 0 {
		return Level{}, false
	}
	return t.Book.Asks[len(t.Book.Asks)-1], true
}

// Tracker holds ticker state. It is owned by the dispatch goroutine and not safe for concurrent use.
type Tracker struct {
	tickers map[string]*Ticker
}

func NewTracker() *Tracker {
	return &Tracker{tickers: make(map[string]*Ticker)}
}

// Register seeds a ticker at its starting price with an empty book.
// Registering an already known ticker resets its price and book.
func (t *Tracker) Register(id string, startingPrice float64) {
	t.tickers[id] = &Ticker{ID: id, LastPrice: startingPrice}
}

// Known reports whether id was registered.
func (t *Tracker) Known(id string) bool {
	_, ok := t.tickers[id]
	return ok
}

// Ticker returns the state of id.
func (t *Tracker) Ticker(id string) (*Ticker, bool) {
	tk, ok := t.tickers[id]
	return tk, ok
}

// PriceOf returns the last computed price of id.
func (t *Tracker) PriceOf(id string) (float64, bool) {
	tk, ok := t.tickers[id]
	if !ok {
		return 0, false
	}
	return tk.LastPrice, true
}

// Tickers returns the registered ticker ids in sorted order.
func (t *Tracker) Tickers() []string {
	ids := make([]string, 0, len(t.tickers))
	for id := range t.tickers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnBookUpdate replaces the book of id and recomputes its price: the mid of the
// best bid and ask when both sides are present, the last trade price otherwise.
// Updates for unregistered tickers are ignored and reported as false.
func (t *Tracker) OnBookUpdate(id string, bids, asks []Level, lastTradePrice *float64) bool {
	tk, ok := t.tickers[id]
	if !ok {
		logger.Debug("Ignoring book update for untracked ticker %s", id)
		return false
	}

	bids = append([]Level(nil), bids...)
	asks = append([]Level(nil), asks...)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price < bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price > asks[j].Price })
	tk.Book = Book{Bids: bids, Asks: asks}

	if len(bids) == 0 || len(asks) == 0 {
		if lastTradePrice == nil {
			logger.Warn("Book for %s has an empty side and no last trade price; keeping price %.4f", id, tk.LastPrice)
			return true
		}
		tk.LastPrice = *lastTradePrice
		return true
	}

	tk.LastPrice = (bids[len(bids)-1].Price + asks[len(asks)-1].Price) / 2
	return true
}

// ParseLevels converts venue price-string levels into Levels.
func ParseLevels(levels map[string]float64) ([]Level, error) {
	out := make([]Level, 0, len(levels))
	for p, size := range levels {
		price, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price level %q: %w", p, err)
		}
		if !finite(price) || !finite(size) {
			return nil, fmt.Errorf("price level %q has non-finite price or size %g", p, size)
		}
		out = append(out, Level{Price: price, Size: size})
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
