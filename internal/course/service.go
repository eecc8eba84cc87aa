package course

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"backend-runshare/internal/gpx"
	"backend-runshare/internal/mapview"
	"backend-runshare/internal/shared/geo"
	"backend-runshare/internal/track"

	"golang.org/x/text/message"
)

const (
	DefaultSort     = "distance"
	DefaultPageSize = 10
	MaxPageSize     = 50

	// Seoul City Hall, used when the client cannot share a location.
	DefaultLat = 37.5665
	DefaultLng = 126.9780
)

var (
	ErrNoCoordinates = errors.New("no coordinates found")
	ErrInvalidFile   = errors.New("course file must be a .gpx document")
	ErrInvalidPoint  = errors.New("point is outside valid coordinates")
	ErrDraftTooShort = errors.New("a course needs at least two points")
	ErrInvalidQuery  = errors.New("invalid course query")
)

type Service struct {
	client *Client
	drafts DraftStore
	pace   track.PaceModel
	stride int
}

func NewService(client *Client, drafts DraftStore, pace track.PaceModel, stride int) *Service {
	if drafts == nil {
		drafts = NewMemoryDraftStore()
	}
	return &Service{client: client, drafts: drafts, pace: pace, stride: stride}
}

func (s *Service) List(ctx context.Context, token string, q ListQuery, p *message.Printer) (ListResult, error) {
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if q.Sort != "distance" && q.Sort != "name" {
		return ListResult{}, fmt.Errorf("%w: sort must be distance or name", ErrInvalidQuery)
	}
	if q.Page < 0 {
		return ListResult{}, fmt.Errorf("%w: page must not be negative", ErrInvalidQuery)
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	if q.Lat == nil || q.Lng == nil {
		q.Lat, q.Lng = geo.Float(DefaultLat), geo.Float(DefaultLng)
	}

	page, err := s.client.List(ctx, token, q)
	if err != nil {
		return ListResult{}, err
	}
	out := ListResult{
		Content:    make([]Listing, 0, len(page.Content)),
		TotalPages: page.TotalPages,
		Page:       q.Page,
		Size:       q.Size,
		Sort:       q.Sort,
	}
	for _, c := range page.Content {
		out.Content = append(out.Content, listing(p, c))
	}
	return out, nil
}

// File returns the raw GPX document of a course.
func (s *Service) File(ctx context.Context, token, userID, courseID string) ([]byte, error) {
	return s.client.File(ctx, token, userID, courseID)
}

// Detail parses the course's GPX document into stats and a marker plan.
func (s *Service) Detail(ctx context.Context, token, userID, courseID string, p *message.Printer) (Detail, error) {
	data, err := s.client.File(ctx, token, userID, courseID)
	if err != nil {
		return Detail{}, err
	}
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return Detail{}, err
	}
	if doc.Empty() {
		return Detail{}, ErrNoCoordinates
	}

	stats := track.Compute(doc.Track, s.pace)
	plan := mapview.PlanMarkers(doc.Track, s.stride)
	fc, err := mapview.FeatureCollection(doc.Track, plan).MarshalJSON()
	if err != nil {
		return Detail{}, fmt.Errorf("encode course geojson: %w", err)
	}
	return Detail{
		CourseID:      courseID,
		Name:          doc.Name,
		Description:   doc.Description,
		Stats:         stats,
		DistanceLabel: kmLabel(p, stats.DistanceKm()),
		DurationLabel: minutesLabel(p, stats.EstimatedDurationMin),
		Plan:          plan,
		GeoJSON:       fc,
	}, nil
}

// Upload checks the document parses and has coordinates before passing it
// on to the course server.
func (s *Service) Upload(ctx context.Context, token, userID, fileName string, data []byte) (Course, error) {
	if !strings.EqualFold(filepath.Ext(fileName), ".gpx") {
		return Course{}, ErrInvalidFile
	}
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return Course{}, err
	}
	if doc.Empty() {
		return Course{}, ErrNoCoordinates
	}
	return s.client.Create(ctx, token, userID, fileName, data)
}

func (s *Service) Delete(ctx context.Context, token, userID, courseID string) error {
	return s.client.Delete(ctx, token, userID, courseID)
}

func (s *Service) Draft(ctx context.Context, userID string, p *message.Printer) (Draft, error) {
	points, err := s.drafts.Points(ctx, userID)
	if err != nil {
		return Draft{}, err
	}
	return s.draft(points, track.Compute(points, s.pace), p), nil
}

func (s *Service) AddDraftPoint(ctx context.Context, userID string, pt geo.Point, p *message.Printer) (Draft, error) {
	if !pt.Valid() {
		return Draft{}, ErrInvalidPoint
	}
	if err := s.drafts.Append(ctx, userID, pt); err != nil {
		return Draft{}, err
	}
	return s.Draft(ctx, userID, p)
}

// UndoDraftPoint drops the newest point; on an empty draft it does nothing.
func (s *Service) UndoDraftPoint(ctx context.Context, userID string, p *message.Printer) (Draft, error) {
	points, err := s.drafts.Points(ctx, userID)
	if err != nil {
		return Draft{}, err
	}
	agg := track.NewAggregator(s.pace)
	for _, pt := range points {
		agg.Observe(pt)
	}
	if agg.Len() > 0 {
		if err := s.drafts.RemoveLast(ctx, userID); err != nil {
			return Draft{}, err
		}
	}
	stats := agg.RemoveLast()
	return s.draft(agg.Track(), stats, p), nil
}

func (s *Service) ClearDraft(ctx context.Context, userID string, p *message.Printer) (Draft, error) {
	if err := s.drafts.Clear(ctx, userID); err != nil {
		return Draft{}, err
	}
	return s.draft(nil, track.Stats{}, p), nil
}

// PublishDraft serializes the drawn route to GPX, uploads it and clears the
// draft.
func (s *Service) PublishDraft(ctx context.Context, token, userID string, req PublishRequest) (Course, error) {
	points, err := s.drafts.Points(ctx, userID)
	if err != nil {
		return Course{}, err
	}
	if len(points) < 2 {
		return Course{}, ErrDraftTooShort
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "RunShare course " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	data, err := gpx.Serialize(points, gpx.Metadata{Name: name, Description: req.Description})
	if err != nil {
		return Course{}, err
	}
	created, err := s.client.Create(ctx, token, userID, fileNameFor(name), data)
	if err != nil {
		return Course{}, err
	}
	if err := s.drafts.Clear(ctx, userID); err != nil {
		return Course{}, err
	}
	return created, nil
}

func (s *Service) draft(points geo.Track, stats track.Stats, p *message.Printer) Draft {
	if points == nil {
		points = geo.Track{}
	}
	return Draft{
		Points:        points,
		Stats:         stats,
		DistanceLabel: kmLabel(p, stats.DistanceKm()),
		Plan:          mapview.PlanMarkers(points, s.stride),
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func fileNameFor(name string) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(name, "-"), "-")
	if base == "" {
		base = "course"
	}
	return base + ".gpx"
}
