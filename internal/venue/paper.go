// Package venue provides the order sink used when no live venue session is attached.
package venue

import (
	"sort"

	"github.com/hermish/traders-at-mit-2019/internal/logger"
	"github.com/hermish/traders-at-mit-2019/internal/models"
)

// OrderJournal persists emitted orders.
type OrderJournal interface {
	RecordOrder(order models.OrderIntent) error
}

// Notifier is told about emitted orders. NotifyOrder must not block.
type Notifier interface {
	NotifyOrder(order models.OrderIntent)
}

// Paper accepts every order as filled at market and keeps the resulting net
// position per ticker. It is not safe for concurrent use.
type Paper struct {
	journal   OrderJournal
	notifier  Notifier
	positions map[string]float64
	sent      int
}

// NewPaper returns a paper venue. Either collaborator may be nil.
func NewPaper(journal OrderJournal, notifier Notifier) *Paper {
	return &Paper{
		journal:   journal,
		notifier:  notifier,
		positions: make(map[string]float64),
	}
}

// Send records order and returns immediately.
func (p *Paper) Send(order models.OrderIntent) {
	if err := order.Validate(); err != nil {
		logger.Error("Dropping invalid order %s: %v", order.ID, err)
		return
	}
	p.sent++
	p.positions[order.Ticker] += order.Signed()
	logger.Info("Order %s: %s %g %s at market (%s, t=%d); net position %g",
		order.ID, order.Side, order.Quantity, order.Ticker, order.Reason, order.NewsTime, p.positions[order.Ticker])

	if p.journal != nil {
		if err := p.journal.RecordOrder(order); err != nil {
			logger.Warn("Failed to journal order %s: %v", order.ID, err)
		}
	}
	if p.notifier != nil {
		p.notifier.NotifyOrder(order)
	}
}

// Position returns the net position in ticker.
func (p *Paper) Position(ticker string) float64 {
	return p.positions[ticker]
}

// Open returns the tickers with a non-zero net position, sorted.
func (p *Paper) Open() []string {
	var out []string
	for t, q := range p.positions {
		if q != 0 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Sent counts accepted orders.
func (p *Paper) Sent() int {
	return p.sent
}
