// Package gpx converts between GPX documents and geo tracks.
package gpx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"backend-runshare/internal/shared/geo"

	gpxgo "github.com/tkrajina/gpxgo/gpx"
)

const (
	// SyntheticInterval spaces generated timestamps for points recorded without one.
	SyntheticInterval = 30 * time.Second
	creator           = "RunShare"
)

var ErrParse = errors.New("gpx: malformed document")

// ParseError carries the decoder failure. No partial track is ever returned
// alongside it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrParse.Error(), e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// Document is the parsed form of a GPX file flattened to a single track.
type Document struct {
	Name        string
	Description string
	Track       geo.Track
}

// Empty reports a well-formed document without any trackpoints. Callers
// must surface this as "no coordinates found" rather than success.
func (d Document) Empty() bool {
	return len(d.Track) == 0
}

type Metadata struct {
	Name        string
	Description string
	Time        time.Time
}

func Parse(doc string) (Document, error) {
	return ParseBytes([]byte(doc))
}

// ParseBytes collects every trkpt of every track segment in document order.
func ParseBytes(data []byte) (Document, error) {
	g, err := gpxgo.ParseBytes(data)
	if err != nil {
		return Document{}, &ParseError{Err: err}
	}
	if err := checkTrackpointAttrs(data); err != nil {
		return Document{}, &ParseError{Err: err}
	}

	doc := Document{
		Name:        g.Name,
		Description: g.Description,
		Track:       geo.Track{},
	}
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for i, pt := range seg.Points {
				p := geo.Point{Lat: pt.Latitude, Lng: pt.Longitude}
				if !p.Valid() {
					return Document{}, &ParseError{Err: fmt.Errorf("trkpt %d: coordinates out of range (%v, %v)", i, pt.Latitude, pt.Longitude)}
				}
				if pt.Elevation.NotNull() {
					if e := pt.Elevation.Value(); !math.IsNaN(e) && !math.IsInf(e, 0) {
						p.Elevation = geo.Float(e)
					}
				}
				if !pt.Timestamp.IsZero() {
					ts := pt.Timestamp
					p.Time = &ts
				}
				doc.Track = append(doc.Track, p)
			}
		}
	}
	return doc, nil
}

// checkTrackpointAttrs rejects trkpt elements without a lat or lon
// attribute. gpxgo decodes a missing coordinate as 0.
func checkTrackpointAttrs(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	n := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "trkpt" {
			continue
		}
		var hasLat, hasLon bool
		for _, attr := range el.Attr {
			switch attr.Name.Local {
			case "lat":
				hasLat = attr.Value != ""
			case "lon":
				hasLon = attr.Value != ""
			}
		}
		if !hasLat || !hasLon {
			return fmt.Errorf("trkpt %d: lat and lon attributes are required", n)
		}
		n++
	}
}

// Serialize writes a GPX 1.1 document with one track segment. Points without
// a timestamp get meta.Time + 30s*index.
func Serialize(track geo.Track, meta Metadata) ([]byte, error) {
	start := meta.Time
	if start.IsZero() {
		start = time.Now().UTC().Truncate(time.Second)
	}

	points := make([]gpxgo.GPXPoint, 0, len(track))
	for i, p := range track {
		pt := gpxgo.GPXPoint{
			Point: gpxgo.Point{
				Latitude:  p.Lat,
				Longitude: p.Lng,
			},
			Timestamp: start.Add(time.Duration(i) * SyntheticInterval),
		}
		if p.Time != nil {
			pt.Timestamp = p.Time.UTC()
		}
		if p.Elevation != nil {
			pt.Elevation = *gpxgo.NewNullableFloat64(*p.Elevation)
		}
		points = append(points, pt)
	}

	g := &gpxgo.GPX{
		Version:     "1.1",
		Creator:     creator,
		Name:        meta.Name,
		Description: meta.Description,
		Time:        &start,
		Tracks: []gpxgo.GPXTrack{{
			Name:     meta.Name,
			Segments: []gpxgo.GPXTrackSegment{{Points: points}},
		}},
	}

	out, err := g.ToXml(gpxgo.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("gpx: serialize: %w", err)
	}
	return out, nil
}
