// Package dispatch routes feed events to the engine one at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hermish/traders-at-mit-2019/internal/engine"
	"github.com/hermish/traders-at-mit-2019/internal/logger"
	"github.com/hermish/traders-at-mit-2019/internal/market"
	"github.com/hermish/traders-at-mit-2019/internal/models"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// EventError reports a single rejected event.
type EventError struct {
	Type string
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s event: %v", e.Type, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

func malformed(typ, format string, args ...any) *EventError {
	return &EventError{Type: typ, Err: fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))}
}

// ResolutionMode selects how the number in a news headline is read.
type ResolutionMode string

const (
	// ResolutionAbsolute reads the headline number as the resolution timestamp.
	ResolutionAbsolute ResolutionMode = "absolute"
	// ResolutionOffset adds the headline number to the news time.
	ResolutionOffset ResolutionMode = "offset"
)

// Handler consumes routed events.
type Handler interface {
	OnRegister(reg models.Registration)
	OnBookUpdate(ticker string, bids, asks []market.Level, lastTradePrice *float64)
	OnAccount(snap models.AccountSnapshot)
	OnNews(n models.News) engine.Outcome
}

// Source yields feed events in delivery order. Next returns io.EOF when the feed ends.
type Source interface {
	Next() (models.Envelope, error)
}

// Stats counts dispatched events.
type Stats struct {
	Dispatched int
	Rejected   int
}

// Dispatcher is not reentrant; call Dispatch and Run from one goroutine.
type Dispatcher struct {
	handler Handler
	mode    ResolutionMode
	stats   Stats
}

func New(h Handler, mode ResolutionMode) *Dispatcher {
	if mode == "" {
		mode = ResolutionAbsolute
	}
	return &Dispatcher{handler: h, mode: mode}
}

func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// Dispatch validates env and hands it to the handler. A rejected event leaves
// handler state untouched.
func (d *Dispatcher) Dispatch(env models.Envelope) error {
	if err := d.dispatch(env); err != nil {
		d.stats.Rejected++
		return err
	}
	d.stats.Dispatched++
	return nil
}

func (d *Dispatcher) dispatch(env models.Envelope) error {
	switch env.Type {
	case models.EventRegister:
		if env.CaseMeta == nil {
			return malformed(env.Type, "missing case_meta")
		}
		d.handler.OnRegister(*env.CaseMeta)

	case models.EventBook:
		u := env.MarketState
		if u == nil {
			return malformed(env.Type, "missing market_state")
		}
		if err := u.Validate(); err != nil {
			return malformed(env.Type, "%v", err)
		}
		bids, err := market.ParseLevels(u.Bids)
		if err != nil {
			return malformed(env.Type, "bids: %v", err)
		}
		asks, err := market.ParseLevels(u.Asks)
		if err != nil {
			return malformed(env.Type, "asks: %v", err)
		}
		d.handler.OnBookUpdate(u.Ticker, bids, asks, u.LastTradePrice)

	case models.EventAccount:
		if env.TraderState == nil {
			return malformed(env.Type, "missing trader_state")
		}
		d.handler.OnAccount(*env.TraderState)

	case models.EventNews:
		if env.News == nil {
			return malformed(env.Type, "missing news")
		}
		n, err := ParseNews(*env.News, d.mode)
		if err != nil {
			return &EventError{Type: env.Type, Err: err}
		}
		d.handler.OnNews(n)

	default:
		return &EventError{Type: env.Type, Err: ErrUnknownEvent}
	}
	return nil
}

// ParseNews reads "<ticker> <resolution>" from the headline and the predicted price from the body.
func ParseNews(raw models.RawNews, mode ResolutionMode) (models.News, error) {
	fields := strings.Fields(raw.Headline)
	if len(fields) != 2 {
		return models.News{}, fmt.Errorf("%w: headline %q is not \"<ticker> <time>\"", ErrMalformedEvent, raw.Headline)
	}
	at, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return models.News{}, fmt.Errorf("%w: resolution time %q: %v", ErrMalformedEvent, fields[1], err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw.Body), 64)
	if err != nil {
		return models.News{}, fmt.Errorf("%w: predicted price %q: %v", ErrMalformedEvent, raw.Body, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return models.News{}, fmt.Errorf("%w: predicted price %q is not finite", ErrMalformedEvent, raw.Body)
	}

	switch mode {
	case ResolutionAbsolute:
	case ResolutionOffset:
		at += raw.Time
	default:
		return models.News{}, fmt.Errorf("unknown resolution mode %q", mode)
	}

	n := models.News{
		Time:           raw.Time,
		Source:         raw.Source,
		Ticker:         fields[0],
		ResolutionTime: at,
		PredictedPrice: price,
	}
	if err := n.Validate(); err != nil {
		return models.News{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return n, nil
}

// Run dispatches every event from src until it is exhausted or ctx is cancelled.
// Rejected events are logged and skipped. Only source failures end the loop with an error.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrMalformedEvent) {
				d.stats.Rejected++
				logger.Warn("Skipping unreadable feed line: %v", err)
				continue
			}
			return fmt.Errorf("failed to read feed: %w", err)
		}
		if err := d.Dispatch(env); err != nil {
			logger.Warn("Rejected %v", err)
		}
	}
}
