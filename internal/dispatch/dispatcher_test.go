package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermish/traders-at-mit-2019/internal/dispatch"
	"github.com/hermish/traders-at-mit-2019/internal/engine"
	"github.com/hermish/traders-at-mit-2019/internal/feed"
	"github.com/hermish/traders-at-mit-2019/internal/models"
)

type sink struct {
	orders []models.OrderIntent
}

func (s *sink) Send(o models.OrderIntent) { s.orders = append(s.orders, o) }

type alwaysAccept struct{}

func (alwaysAccept) Float64() float64 { return 0 }

func TestParseNews(t *testing.T) {
	tests := []struct {
		name    string
		raw     models.RawNews
		mode    dispatch.ResolutionMode
		want    models.News
		wantErr bool
	}{
		{
			name: "absolute",
			raw:  models.RawNews{Time: 10, Source: "S1", Headline: "ABC 20", Body: "105"},
			mode: dispatch.ResolutionAbsolute,
			want: models.News{Time: 10, Source: "S1", Ticker: "ABC", ResolutionTime: 20, PredictedPrice: 105},
		},
		{
			name: "offset",
			raw:  models.RawNews{Time: 10, Source: "S1", Headline: "ABC 20", Body: " 99.5 "},
			mode: dispatch.ResolutionOffset,
			want: models.News{Time: 10, Source: "S1", Ticker: "ABC", ResolutionTime: 30, PredictedPrice: 99.5},
		},
		{
			name: "negative price parses",
			raw:  models.RawNews{Time: 1, Source: "S1", Headline: "ABC 2", Body: "-3"},
			mode: dispatch.ResolutionAbsolute,
			want: models.News{Time: 1, Source: "S1", Ticker: "ABC", ResolutionTime: 2, PredictedPrice: -3},
		},
		{name: "one field headline", raw: models.RawNews{Source: "S1", Headline: "ABC", Body: "1"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "bad time", raw: models.RawNews{Source: "S1", Headline: "ABC soon", Body: "1"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "bad price", raw: models.RawNews{Source: "S1", Headline: "ABC 3", Body: "up"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "nan price", raw: models.RawNews{Source: "S1", Headline: "ABC 3", Body: "NaN"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "inf price", raw: models.RawNews{Source: "S1", Headline: "ABC 3", Body: "+Inf"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "negative inf price", raw: models.RawNews{Source: "S1", Headline: "ABC 3", Body: "-inf"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "missing source", raw: models.RawNews{Headline: "ABC 3", Body: "1"}, mode: dispatch.ResolutionAbsolute, wantErr: true},
		{name: "unknown mode", raw: models.RawNews{Source: "S1", Headline: "ABC 3", Body: "1"}, mode: "relative", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dispatch.ParseNews(tt.raw, tt.mode)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNonFiniteValuesLeaveCredibilityIntact(t *testing.T) {
	e := engine.New(engine.DefaultConfig(), &sink{}, alwaysAccept{})
	d := dispatch.New(e, dispatch.ResolutionAbsolute)

	require.NoError(t, d.Dispatch(models.Envelope{Type: models.EventRegister, CaseMeta: &models.Registration{
		Securities: map[string]models.Security{"ABC": {Tradeable: true, StartingPrice: 100}},
	}}))

	err := d.Dispatch(models.Envelope{Type: models.EventNews, News: &models.RawNews{Time: 1, Source: "S1", Headline: "ABC 1", Body: "NaN"}})
	assert.ErrorIs(t, err, dispatch.ErrMalformedEvent)

	err = d.Dispatch(models.Envelope{Type: models.EventBook, MarketState: &models.BookUpdate{
		Ticker: "ABC",
		Bids:   map[string]float64{"NaN": 1},
		Asks:   map[string]float64{"101": 5},
	}})
	assert.ErrorIs(t, err, dispatch.ErrMalformedEvent)
	p, _ := e.Market().PriceOf("ABC")
	assert.Equal(t, 100.0, p)

	require.NoError(t, d.Dispatch(models.Envelope{Type: models.EventNews, News: &models.RawNews{Time: 1, Source: "S1", Headline: "ABC 1", Body: "102"}}))
	require.NoError(t, d.Dispatch(models.Envelope{Type: models.EventNews, News: &models.RawNews{Time: 2, Source: "S2", Headline: "ABC 9", Body: "100"}}))

	cred := e.Credibility()
	require.Contains(t, cred, "S1")
	assert.InDelta(t, 0.02, cred["S1"], 1e-12)
	assert.Equal(t, dispatch.Stats{Dispatched: 3, Rejected: 2}, d.Stats())
}

func TestDispatchRejectsMalformedWithoutSideEffects(t *testing.T) {
	s := &sink{}
	e := engine.New(engine.DefaultConfig(), s, alwaysAccept{})
	d := dispatch.New(e, dispatch.ResolutionAbsolute)

	require.NoError(t, d.Dispatch(models.Envelope{Type: models.EventRegister, CaseMeta: &models.Registration{
		Securities: map[string]models.Security{"ABC": {Tradeable: true, StartingPrice: 100}},
	}}))

	err := d.Dispatch(models.Envelope{Type: models.EventBook, MarketState: &models.BookUpdate{
		Ticker: "ABC",
		Bids:   map[string]float64{"99": 1},
		Asks:   map[string]float64{"oops": 1},
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dispatch.ErrMalformedEvent))
	var evErr *dispatch.EventError
	require.True(t, errors.As(err, &evErr))
	assert.Equal(t, models.EventBook, evErr.Type)

	p, _ := e.Market().PriceOf("ABC")
	assert.Equal(t, 100.0, p, "rejected book must not touch state")

	err = d.Dispatch(models.Envelope{Type: models.EventNews, News: &models.RawNews{Time: 1, Source: "S1", Headline: "ABC x", Body: "1"}})
	assert.True(t, errors.Is(err, dispatch.ErrMalformedEvent))
	assert.Equal(t, 0, e.Stats().News)
	assert.Equal(t, 0, e.CredibilityStats().Pending)

	err = d.Dispatch(models.Envelope{Type: "heartbeat"})
	assert.True(t, errors.Is(err, dispatch.ErrUnknownEvent))

	for _, env := range []models.Envelope{
		{Type: models.EventRegister},
		{Type: models.EventBook},
		{Type: models.EventAccount},
		{Type: models.EventNews},
	} {
		assert.Error(t, d.Dispatch(env), "missing payload for %s", env.Type)
	}

	assert.Equal(t, dispatch.Stats{Dispatched: 1, Rejected: 7}, d.Stats())
	assert.Empty(t, s.orders)
}

const scenarioFeed = `{"type":"register","case_meta":{"securities":{"ABC":{"tradeable":true,"starting_price":100},"IDX":{"tradeable":false,"starting_price":1}}}}
{"type":"book","market_state":{"ticker":"ABC","bids":{"99":10},"asks":{"101":5},"last_price":100}}
{"type":"account","trader_state":{"positions":{"USD":100000},"open_orders":{}}}
{"type":"news","news":{"time":0,"source":"S1","headline":"ABC 0","body":"100"}}
{garbage
{"type":"news","news":{"time":10,"source":"S1","headline":"ABC 20","body":"105"}}
{"type":"news","news":{"time":20,"source":"S2","headline":"ABC 30","body":"bogus"}}
{"type":"news","news":{"time":25,"source":"S2","headline":"ABC 30","body":"100"}}
`

func TestRunScenarioFromFeed(t *testing.T) {
	s := &sink{}
	e := engine.New(engine.DefaultConfig(), s, alwaysAccept{})
	d := dispatch.New(e, "")

	err := d.Run(context.Background(), feed.NewReader(strings.NewReader(scenarioFeed)))
	require.NoError(t, err)

	require.Len(t, s.orders, 2)
	assert.Equal(t, models.SideBuy, s.orders[0].Side)
	assert.Equal(t, 5.0, s.orders[0].Quantity)
	assert.Equal(t, models.SideSell, s.orders[1].Side)
	assert.Equal(t, 5.0, s.orders[1].Quantity)
	assert.Equal(t, int64(25), s.orders[1].NewsTime, "bogus news at t=20 must not flush the clear")

	assert.Equal(t, dispatch.Stats{Dispatched: 6, Rejected: 2}, d.Stats())
	assert.Equal(t, 100000.0, e.Account().Positions["USD"])
	assert.False(t, e.Market().Known("IDX"))
}

func TestRunStopsOnCancel(t *testing.T) {
	e := engine.New(engine.DefaultConfig(), &sink{}, alwaysAccept{})
	d := dispatch.New(e, dispatch.ResolutionAbsolute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Run(ctx, feed.NewReader(strings.NewReader(scenarioFeed)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, d.Stats().Dispatched)
}
