package models

// Prediction is a news forecast waiting for its resolution time.
type Prediction struct {
	ResolutionTime int64
	Ticker         string
	Source         string
	PredictedPrice float64
}

// Clear is an offsetting order waiting for its resolution time.
// A positive Volume buys back, a negative Volume sells out.
type Clear struct {
	ResolutionTime int64
	Ticker         string
	Volume         float64
}

// Resolution records how a prediction scored once its resolution time passed.
type Resolution struct {
	Source         string
	Ticker         string
	ResolutionTime int64
	DrainedAt      int64
	PredictedPrice float64
	RealizedPrice  float64
	RelativeError  float64
	Deviation      float64
}
