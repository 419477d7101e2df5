// Package credibility scores news sources by how far their past predictions landed from realized prices.
package credibility

import (
	"math"
	"sort"

	"github.com/hermish/traders-at-mit-2019/internal/logger"
	"github.com/hermish/traders-at-mit-2019/internal/models"
	"github.com/hermish/traders-at-mit-2019/internal/schedule"
)

// DefaultEpsilon controls how quickly trust falls off with deviation.
const DefaultEpsilon = 0.3

// Poisoned is the deviation of a source that ever predicted a negative price.
var Poisoned = math.Inf(1)

// PriceSource resolves the current price of a ticker.
type PriceSource interface {
	PriceOf(ticker string) (float64, bool)
}

// Stats counts drained predictions.
type Stats struct {
	Resolved int
	Skipped  int
	Pending  int
}

// Estimator keeps the cumulative deviation of each source and the predictions
// still waiting to resolve. Deviations are never decayed or reset.
type Estimator struct {
	epsilon     float64
	deviations  map[string]float64
	predictions *schedule.Queue[models.Prediction]
	resolved    int
	skipped     int
}

func New(epsilon float64) *Estimator {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Estimator{
		epsilon:     epsilon,
		deviations:  make(map[string]float64),
		predictions: schedule.New[models.Prediction](),
	}
}

// DeviationToProbability maps a deviation to a trust probability in [0, 1].
func DeviationToProbability(epsilon, deviation float64) float64 {
	return math.Exp(-epsilon * deviation * deviation)
}

// Schedule queues p until its resolution time.
func (e *Estimator) Schedule(p models.Prediction) {
	e.predictions.Push(p.ResolutionTime, p.Ticker, p)
}

// MarkPoisoned pins source at the Poisoned deviation.
func (e *Estimator) MarkPoisoned(source string) {
	e.deviations[source] = Poisoned
}

// Drain resolves every prediction due at or before now against the current prices.
// Predictions whose ticker has no price, or a zero price, are dropped without
// updating the source.
func (e *Estimator) Drain(now int64, prices PriceSource) []models.Resolution {
	var out []models.Resolution
	e.predictions.DrainDue(now, func(it schedule.Item[models.Prediction]) {
		p := it.Value
		price, ok := prices.PriceOf(p.Ticker)
		if !ok {
			e.skipped++
			logger.Warn("Skipping resolution of %s prediction for %s: no price", p.Source, p.Ticker)
			return
		}
		if price == 0 {
			e.skipped++
			logger.Warn("Skipping resolution of %s prediction for %s: current price is zero", p.Source, p.Ticker)
			return
		}

		relErr := (p.PredictedPrice - price) / price
		e.deviations[p.Source] += relErr
		e.resolved++

		out = append(out, models.Resolution{
			Source:         p.Source,
			Ticker:         p.Ticker,
			ResolutionTime: p.ResolutionTime,
			DrainedAt:      now,
			PredictedPrice: p.PredictedPrice,
			RealizedPrice:  price,
			RelativeError:  relErr,
			Deviation:      e.deviations[p.Source],
		})
	})
	return out
}

// Deviation returns the cumulative deviation of source.
func (e *Estimator) Deviation(source string) (float64, bool) {
	d, ok := e.deviations[source]
	return d, ok
}

// TrustProbability returns exp(-epsilon * deviation^2) for a source with a record.
// Sources never resolved are not trusted and report false.
func (e *Estimator) TrustProbability(source string) (float64, bool) {
	d, ok := e.deviations[source]
	if !ok {
		return 0, false
	}
	return DeviationToProbability(e.epsilon, d), true
}

// Snapshot returns a copy of all deviations.
func (e *Estimator) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(e.deviations))
	for s, d := range e.deviations {
		out[s] = d
	}
	return out
}

// Sources returns the known sources in sorted order.
func (e *Estimator) Sources() []string {
	out := make([]string, 0, len(e.deviations))
	for s := range e.deviations {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (e *Estimator) Stats() Stats {
	return Stats{
		Resolved: e.resolved,
		Skipped:  e.skipped,
		Pending:  e.predictions.Len(),
	}
}
