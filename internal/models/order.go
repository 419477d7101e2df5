package models

import (
	"errors"
	"fmt"
)

// Side is the direction of an order intent.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Reason tells why an order intent was emitted.
type Reason string

const (
	// ReasonSignal orders open a position on a trusted news prediction.
	ReasonSignal Reason = "signal"
	// ReasonClear orders unwind a signal position at its resolution time.
	ReasonClear Reason = "clear"
)

// OrderIntent is an outbound order. A nil Price means at market.
type OrderIntent struct {
	ID       string   `json:"id"`
	Side     Side     `json:"side"`
	Ticker   string   `json:"ticker"`
	Quantity float64  `json:"quantity"`
	Price    *float64 `json:"price"`
	Reason   Reason   `json:"reason"`
	NewsTime int64    `json:"news_time"`
}

// Signed returns the quantity with a positive sign for buys and negative for sells.
func (o OrderIntent) Signed() float64 {
	if o.Side == SideSell {
		return -o.Quantity
	}
	return o.Quantity
}

// Validate checks order intent field constraints.
func (o *OrderIntent) Validate() error {
	if o.Ticker == "" {
		return errors.New("order ticker must not be empty")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("unknown order side %q", o.Side)
	}
	if o.Quantity <= 0 {
		return errors.New("order quantity must be positive")
	}
	if o.Price != nil && *o.Price <= 0 {
		return errors.New("limit price must be positive")
	}
	return nil
}
