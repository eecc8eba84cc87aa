package course

import (
	"encoding/json"

	"backend-runshare/internal/mapview"
	"backend-runshare/internal/shared/geo"
	"backend-runshare/internal/track"
)

type Level string

const (
	LevelBeginner     Level = "BEGINNER"
	LevelIntermediate Level = "INTERMEDIATE"
	LevelAdvanced     Level = "ADVANCED"
)

// Course is a listing entry of the course server. Distances are kilometres,
// altitude is metres.
type Course struct {
	GpxID            int64   `json:"gpxId"`
	Name             string  `json:"name"`
	Level            Level   `json:"level"`
	Distance         float64 `json:"distance"`
	Altitude         float64 `json:"altitude"`
	DistanceFromUser float64 `json:"distanceFromUser"`
	StartLat         float64 `json:"startLat"`
	StartLon         float64 `json:"startLon"`
}

type Page struct {
	Content    []Course `json:"content"`
	TotalPages int      `json:"totalPages"`
}

// ListQuery mirrors the course server's list parameters. Nil coordinates
// fall back to the default location.
type ListQuery struct {
	UserID string
	Lat    *float64
	Lng    *float64
	Sort   string
	Page   int
	Size   int
}

// Listing is a course with its display labels.
type Listing struct {
	Course
	LevelLabel            string `json:"levelLabel"`
	DistanceLabel         string `json:"distanceLabel"`
	AltitudeLabel         string `json:"altitudeLabel"`
	DistanceFromUserLabel string `json:"distanceFromUserLabel"`
}

type ListResult struct {
	Content    []Listing `json:"content"`
	TotalPages int       `json:"totalPages"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	Sort       string    `json:"sort"`
}

type Detail struct {
	CourseID      string             `json:"courseId"`
	Name          string             `json:"name,omitempty"`
	Description   string             `json:"description,omitempty"`
	Stats         track.Stats        `json:"stats"`
	DistanceLabel string             `json:"distanceLabel"`
	DurationLabel string             `json:"durationLabel"`
	Plan          mapview.MarkerPlan `json:"plan"`
	GeoJSON       json.RawMessage    `json:"geojson"`
}

// Draft is a route being drawn point by point before it is published.
type Draft struct {
	Points        geo.Track          `json:"points"`
	Stats         track.Stats        `json:"stats"`
	DistanceLabel string             `json:"distanceLabel"`
	Plan          mapview.MarkerPlan `json:"plan"`
}

type PublishRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
