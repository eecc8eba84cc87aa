// Package mapview derives declarative marker and polyline descriptions from
// a track. It never touches a map provider; the rendering surface owns the
// on-screen objects.
package mapview

import (
	"backend-runshare/internal/shared/geo"

	"github.com/paulmach/orb"
)

const DefaultStride = 20

type MarkerKind string

const (
	KindWaypoint MarkerKind = "waypoint"
	KindStart    MarkerKind = "start"
	KindEnd      MarkerKind = "end"
	KindCurrent  MarkerKind = "current"
)

type Marker struct {
	Kind     MarkerKind `json:"kind"`
	Index    int        `json:"index"`
	Label    int        `json:"label,omitempty"`
	Point    geo.Point  `json:"point"`
	Rotation float64    `json:"rotation,omitempty"`
}

// Viewport is the smallest box covering every point of the track.
type Viewport struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (v Viewport) Center() geo.Point {
	return geo.Point{Lat: (v.North + v.South) / 2, Lng: (v.East + v.West) / 2}
}

type MarkerPlan struct {
	Waypoints []Marker  `json:"waypoints"`
	Start     *Marker   `json:"start,omitempty"`
	End       *Marker   `json:"end,omitempty"`
	Current   *Marker   `json:"current,omitempty"`
	Bounds    *Viewport `json:"bounds,omitempty"`
}

// PlanMarkers picks every stride-th point as a numbered waypoint and always
// marks the first and (when there is more than one point) last positions.
func PlanMarkers(track geo.Track, stride int) MarkerPlan {
	if stride <= 0 {
		stride = DefaultStride
	}
	plan := MarkerPlan{Waypoints: []Marker{}}
	if len(track) == 0 {
		return plan
	}

	label := 1
	for i := 0; i < len(track); i += stride {
		plan.Waypoints = append(plan.Waypoints, Marker{
			Kind:  KindWaypoint,
			Index: i,
			Label: label,
			Point: track[i],
		})
		label++
	}

	plan.Start = &Marker{Kind: KindStart, Index: 0, Point: track[0]}
	if last := len(track) - 1; last > 0 {
		plan.End = &Marker{Kind: KindEnd, Index: last, Point: track[last]}
	}
	plan.Bounds = bounds(track)
	return plan
}

// PlanCurrentPositionMarker builds the arrow shown under the runner.
func PlanCurrentPositionMarker(p geo.Point, headingDegrees float64) Marker {
	return Marker{
		Kind:     KindCurrent,
		Index:    -1,
		Point:    p,
		Rotation: geo.NormalizeDegrees(headingDegrees),
	}
}

// PlanLive is PlanMarkers plus a current-position marker on the newest point.
func PlanLive(track geo.Track, headingDegrees float64, stride int) MarkerPlan {
	plan := PlanMarkers(track, stride)
	if len(track) > 0 {
		cur := PlanCurrentPositionMarker(track[len(track)-1], headingDegrees)
		cur.Index = len(track) - 1
		plan.Current = &cur
	}
	return plan
}

func bounds(track geo.Track) *Viewport {
	mp := make(orb.MultiPoint, 0, len(track))
	for _, p := range track {
		mp = append(mp, orb.Point{p.Lng, p.Lat})
	}
	b := mp.Bound()
	return &Viewport{
		North: b.Top(),
		South: b.Bottom(),
		East:  b.Right(),
		West:  b.Left(),
	}
}
