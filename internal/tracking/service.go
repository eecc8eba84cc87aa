package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"backend-runshare/internal/mapview"
	"backend-runshare/internal/results"
	"backend-runshare/internal/track"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionActive   = errors.New("a test session is already active")
	ErrNotFinished     = errors.New("session has no result; it did not finish")
	ErrSubmitted       = errors.New("session result was already submitted")
)

// Broadcaster publishes serialized session events to watchers.
type Broadcaster interface {
	Broadcast(sessionID string, payload []byte)
}

// Submitter hands a finished distance to the results API.
type Submitter interface {
	Submit(ctx context.Context, token, userID string, distanceM float64) (results.CooperTestResult, error)
}

type Config struct {
	CountdownSeconds int
	BudgetSeconds    int
	Pace             track.PaceModel
	MarkerStride     int
	FeedBuffer       int
	Ticker           TickerFactory
}

type entry struct {
	session *Session
	feed    *FeedSource

	// submitMu serializes result submission so a distance is sent once.
	submitMu  sync.Mutex
	submitted bool
}

// Service keeps the live sessions of this instance. A user has at most one
// session that is not finished or cancelled.
type Service struct {
	cfg     Config
	hub     Broadcaster
	results Submitter

	mu       sync.RWMutex
	sessions map[string]*entry
	byUser   map[string]string
}

func NewService(cfg Config, hub Broadcaster, submitter Submitter) *Service {
	if cfg.Pace == (track.PaceModel{}) {
		cfg.Pace = track.DefaultPaceModel()
	}
	return &Service{
		cfg:      cfg,
		hub:      hub,
		results:  submitter,
		sessions: map[string]*entry{},
		byUser:   map[string]string{},
	}
}

func (s *Service) Create(userID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.byUser[userID]; ok {
		if prev := s.sessions[prevID]; prev != nil {
			if !prev.session.State().Terminal() {
				return Snapshot{}, ErrSessionActive
			}
			delete(s.sessions, prevID)
		}
	}

	id := uuid.NewString()
	feed := NewFeedSource(s.cfg.FeedBuffer)
	session := NewSession(id, userID, feed,
		WithCountdown(s.cfg.CountdownSeconds),
		WithBudget(s.cfg.BudgetSeconds),
		WithPaceModel(s.cfg.Pace),
		WithTicker(s.cfg.Ticker),
		WithListener(s.publish),
	)
	s.sessions[id] = &entry{session: session, feed: feed}
	s.byUser[userID] = id
	slog.Info("cooper test session created", "session_id", id, "user_id", userID)
	return session.Snapshot(), nil
}

func (s *Service) Get(userID, sessionID string) (Snapshot, error) {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return e.session.Snapshot(), nil
}

func (s *Service) Start(userID, sessionID string) (Snapshot, error) {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := e.session.Start(); err != nil {
		return Snapshot{}, err
	}
	return e.session.Snapshot(), nil
}

func (s *Service) PushPosition(userID, sessionID string, sample Sample) error {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return err
	}
	return e.feed.Push(sample)
}

func (s *Service) PushPositionError(userID, sessionID, message string) error {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return err
	}
	var cause error
	if message != "" {
		cause = errors.New(message)
	}
	return e.feed.PushError(cause)
}

func (s *Service) Cancel(userID, sessionID string) (Snapshot, error) {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	e.session.Cancel()
	return e.session.Snapshot(), nil
}

// MapView is the declarative map state of a session.
type MapView struct {
	Plan    mapview.MarkerPlan `json:"plan"`
	GeoJSON json.RawMessage    `json:"geojson"`
}

func (s *Service) Map(userID, sessionID string) (MapView, error) {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return MapView{}, err
	}
	path := e.session.Track()
	plan := mapview.PlanLive(path, e.session.Heading(), s.cfg.MarkerStride)
	fc, err := mapview.FeatureCollection(path, plan).MarshalJSON()
	if err != nil {
		return MapView{}, err
	}
	return MapView{Plan: plan, GeoJSON: fc}, nil
}

// SubmitResult sends the distance of a finished session to the results API.
// Once the result was accepted, or parked in the outbox for a retry, further
// calls fail with ErrSubmitted.
func (s *Service) SubmitResult(ctx context.Context, token, userID, sessionID string) (results.CooperTestResult, error) {
	e, err := s.lookup(userID, sessionID)
	if err != nil {
		return results.CooperTestResult{}, err
	}
	stats, ok := e.session.Result()
	if !ok {
		return results.CooperTestResult{}, ErrNotFinished
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	if e.submitted {
		return results.CooperTestResult{}, ErrSubmitted
	}
	res, err := s.results.Submit(ctx, token, userID, stats.TotalDistanceM)
	var subErr *results.SubmissionError
	if err == nil || (errors.As(err, &subErr) && subErr.Pending != nil) {
		e.submitted = true
	}
	return res, err
}

// Shutdown cancels every running session.
func (s *Service) Shutdown() {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		sessions = append(sessions, e.session)
	}
	s.mu.RUnlock()

	for _, session := range sessions {
		session.Cancel()
	}
}

func (s *Service) lookup(userID, sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok || e.session.UserID() != userID {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Service) publish(ev Event) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode session event", "session_id", ev.Session.ID, "error", err)
		return
	}
	s.hub.Broadcast(ev.Session.ID, payload)
}
