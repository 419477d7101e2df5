// Package models defines the domain entities: inbound feed events, schedule entries, and order intents.
package models

import (
	"errors"
	"fmt"
)

// Security describes one listed instrument in a registration acknowledgement.
type Security struct {
	Tradeable     bool    `json:"tradeable"`
	StartingPrice float64 `json:"starting_price"`
}

// Registration is the case metadata delivered once the session is acknowledged.
type Registration struct {
	Securities map[string]Security `json:"securities"`
}

// BookUpdate is a full order book snapshot for one ticker.
// Bid and ask levels are keyed by the price as the venue formats it.
type BookUpdate struct {
	Ticker         string             `json:"ticker"`
	Bids           map[string]float64 `json:"bids"`
	Asks           map[string]float64 `json:"asks"`
	LastTradePrice *float64           `json:"last_price"`
}

// Validate checks book update field constraints.
func (b *BookUpdate) Validate() error {
	if b.Ticker == "" {
		return errors.New("book update ticker must not be empty")
	}
	for p, size := range b.Bids {
		if size < 0 {
			return fmt.Errorf("bid level %s has negative size", p)
		}
	}
	for p, size := range b.Asks {
		if size < 0 {
			return fmt.Errorf("ask level %s has negative size", p)
		}
	}
	return nil
}

// AccountSnapshot reports positions and open orders. The engine keeps it for observability only.
type AccountSnapshot struct {
	Positions  map[string]float64 `json:"positions"`
	OpenOrders map[string]any     `json:"open_orders"`
}

// RawNews is a news item as delivered by the feed.
// Headline is "<ticker> <resolution>" and Body carries the predicted price.
type RawNews struct {
	Time     int64  `json:"time"`
	Source   string `json:"source"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

// News is a parsed news item.
type News struct {
	Time           int64
	Source         string
	Ticker         string
	ResolutionTime int64
	PredictedPrice float64
}

// Validate checks parsed news field constraints.
func (n *News) Validate() error {
	if n.Source == "" {
		return errors.New("news source must not be empty")
	}
	if n.Ticker == "" {
		return errors.New("news ticker must not be empty")
	}
	return nil
}
