package mapview

import (
	"backend-runshare/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders the route polyline and the plan's markers for a
// GeoJSON-capable map adapter.
func FeatureCollection(track geo.Track, plan MarkerPlan) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(track) > 1 {
		line := make(orb.LineString, 0, len(track))
		for _, p := range track {
			line = append(line, orb.Point{p.Lng, p.Lat})
		}
		route := geojson.NewFeature(line)
		route.Properties["kind"] = "route"
		route.Properties["geodesic"] = true
		fc.Append(route)
	}

	for _, m := range plan.Waypoints {
		fc.Append(markerFeature(m))
	}
	for _, m := range []*Marker{plan.Start, plan.End, plan.Current} {
		if m != nil {
			fc.Append(markerFeature(*m))
		}
	}

	if plan.Bounds != nil {
		fc.BBox = geojson.NewBBox(orb.Bound{
			Min: orb.Point{plan.Bounds.West, plan.Bounds.South},
			Max: orb.Point{plan.Bounds.East, plan.Bounds.North},
		})
	}
	return fc
}

func markerFeature(m Marker) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{m.Point.Lng, m.Point.Lat})
	f.Properties["kind"] = string(m.Kind)
	f.Properties["index"] = m.Index
	if m.Label > 0 {
		f.Properties["label"] = m.Label
	}
	if m.Kind == KindCurrent {
		f.Properties["rotation"] = m.Rotation
	}
	if m.Point.Elevation != nil {
		f.Properties["elevation_m"] = *m.Point.Elevation
	}
	return f
}
