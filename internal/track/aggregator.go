// Package track accumulates running statistics over a stream of positions.
//
// Points must be observed in non-decreasing timestamp order. Out-of-order or
// duplicate samples are not reordered or dropped; they will skew elevation
// gain and heading just as the source delivered them.
package track

import (
	"math"

	"backend-runshare/internal/shared/geo"
)

const (
	DefaultPaceMinPerKm  = 6.0
	DefaultCaloriesPerKm = 65.0
)

// PaceModel converts distance into the duration and calorie estimates.
type PaceModel struct {
	PaceMinPerKm  float64 `json:"pace_min_per_km"`
	CaloriesPerKm float64 `json:"calories_per_km"`
}

func DefaultPaceModel() PaceModel {
	return PaceModel{PaceMinPerKm: DefaultPaceMinPerKm, CaloriesPerKm: DefaultCaloriesPerKm}
}

// Stats is always derivable from the track it was built from.
type Stats struct {
	TotalDistanceM       float64  `json:"total_distance_m"`
	PointCount           int      `json:"point_count"`
	ElevationGainM       float64  `json:"elevation_gain_m"`
	ElevationLossM       float64  `json:"elevation_loss_m"`
	MinElevationM        *float64 `json:"min_elevation_m,omitempty"`
	MaxElevationM        *float64 `json:"max_elevation_m,omitempty"`
	EstimatedDurationMin float64  `json:"estimated_duration_min"`
	EstimatedCalories    float64  `json:"estimated_calories"`
}

func (s Stats) DistanceKm() float64 {
	return s.TotalDistanceM / 1000
}

// Aggregator owns a track and keeps its Stats current one point at a time.
// It is not safe for concurrent use; the owner serializes access.
type Aggregator struct {
	model PaceModel
	track geo.Track
	stats Stats
}

func NewAggregator(model PaceModel) *Aggregator {
	return &Aggregator{model: model}
}

// Observe appends p and folds the newest pair into the running stats.
func (a *Aggregator) Observe(p geo.Point) Stats {
	if n := len(a.track); n > 0 {
		prev := a.track[n-1]
		a.stats.TotalDistanceM += geo.HaversineMeters(prev, p)
		prevEle, okPrev := elevation(prev)
		ele, ok := elevation(p)
		if okPrev && ok {
			delta := ele - prevEle
			if delta > 0 {
				a.stats.ElevationGainM += delta
			} else {
				a.stats.ElevationLossM -= delta
			}
		}
	}
	if e, ok := elevation(p); ok {
		if a.stats.MinElevationM == nil || e < *a.stats.MinElevationM {
			a.stats.MinElevationM = geo.Float(e)
		}
		if a.stats.MaxElevationM == nil || e > *a.stats.MaxElevationM {
			a.stats.MaxElevationM = geo.Float(e)
		}
	}

	a.track = append(a.track, p)
	a.stats.PointCount = len(a.track)
	a.estimate()
	return a.stats
}

// RemoveLast drops the newest point and rebuilds stats from the remainder.
// Gain cannot be un-accumulated by subtraction, so this always replays.
func (a *Aggregator) RemoveLast() Stats {
	if len(a.track) == 0 {
		return a.stats
	}
	rest := a.track[:len(a.track)-1]
	a.Reset()
	for _, p := range rest {
		a.Observe(p)
	}
	return a.stats
}

func (a *Aggregator) Reset() {
	a.track = nil
	a.stats = Stats{}
}

func (a *Aggregator) Stats() Stats {
	return a.stats
}

// Track returns a copy of the observed points.
func (a *Aggregator) Track() geo.Track {
	out := make(geo.Track, len(a.track))
	copy(out, a.track)
	return out
}

func (a *Aggregator) Len() int {
	return len(a.track)
}

func (a *Aggregator) Last() (geo.Point, bool) {
	if len(a.track) == 0 {
		return geo.Point{}, false
	}
	return a.track[len(a.track)-1], true
}

// elevation treats NaN and infinite readings the same as a missing one.
func elevation(p geo.Point) (float64, bool) {
	if p.Elevation == nil || math.IsNaN(*p.Elevation) || math.IsInf(*p.Elevation, 0) {
		return 0, false
	}
	return *p.Elevation, true
}

func (a *Aggregator) estimate() {
	km := a.stats.DistanceKm()
	a.stats.EstimatedDurationMin = km * a.model.PaceMinPerKm
	a.stats.EstimatedCalories = km * a.model.CaloriesPerKm
}

// Compute is the batch form of Observe over a whole track.
func Compute(t geo.Track, model PaceModel) Stats {
	agg := NewAggregator(model)
	for _, p := range t {
		agg.Observe(p)
	}
	return agg.Stats()
}
