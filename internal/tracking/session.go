package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-runshare/internal/shared/geo"
	"backend-runshare/internal/track"
)

const (
	DefaultCountdownSeconds = 3
	DefaultBudgetSeconds    = 720
)

var ErrInvalidTransition = errors.New("invalid session state transition")

type State string

const (
	StateReady     State = "ready"
	StateCountdown State = "countdown"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	// StateCancelled means the user left the test; there is no result.
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateFinished || s == StateCancelled
}

type EventType string

const (
	EventCountdown     EventType = "countdown"
	EventStarted       EventType = "started"
	EventPosition      EventType = "position"
	EventPositionError EventType = "position_error"
	EventTick          EventType = "tick"
	EventFinished      EventType = "finished"
	EventCancelled     EventType = "cancelled"
)

type Event struct {
	Type    EventType `json:"type"`
	Session Snapshot  `json:"session"`
}

// Listener receives events one at a time, on the session goroutine or, for
// the cancelled event, on the goroutine calling Cancel after the loop has
// exited. It must not block and must not call Cancel.
type Listener func(Event)

type Snapshot struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	State              State       `json:"state"`
	CountdownRemaining int         `json:"countdown_remaining"`
	TimeLeftSeconds    int         `json:"time_left_seconds"`
	Clock              string      `json:"clock"`
	Stats              track.Stats `json:"stats"`
	HeadingDegrees     float64     `json:"heading_degrees"`
	Current            *geo.Point  `json:"current,omitempty"`
	PositionError      string      `json:"position_error,omitempty"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	EndedAt            *time.Time  `json:"ended_at,omitempty"`
}

type Option func(*Session)

func WithCountdown(seconds int) Option {
	return func(s *Session) {
		if seconds >= 0 {
			s.countdown = seconds
		}
	}
}

func WithBudget(seconds int) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.budget = seconds
		}
	}
}

func WithPaceModel(m track.PaceModel) Option {
	return func(s *Session) { s.agg = track.NewAggregator(m) }
}

func WithTicker(f TickerFactory) Option {
	return func(s *Session) {
		if f != nil {
			s.newTicker = f
		}
	}
}

func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// Session is one Cooper test run: a countdown, then a time-boxed recording
// of the position stream. The ticker and the position subscription are
// owned by a single goroutine and released together when it exits.
type Session struct {
	id        string
	userID    string
	source    PositionSource
	countdown int
	budget    int
	newTicker TickerFactory
	listener  Listener
	log       *slog.Logger

	mu                 sync.Mutex
	state              State
	countdownRemaining int
	timeLeft           int
	agg                *track.Aggregator
	heading            float64
	positionErr        string
	startedAt          time.Time
	endedAt            time.Time
	cancel             context.CancelFunc
	done               chan struct{}
}

func NewSession(id, userID string, source PositionSource, opts ...Option) *Session {
	s := &Session{
		id:        id,
		userID:    userID,
		source:    source,
		countdown: DefaultCountdownSeconds,
		budget:    DefaultBudgetSeconds,
		newTicker: NewTicker,
		log:       slog.Default(),
		state:     StateReady,
		agg:       track.NewAggregator(track.DefaultPaceModel()),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.countdownRemaining = s.countdown
	s.timeLeft = s.budget
	s.log = s.log.With("session_id", id, "user_id", userID)
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Start begins the countdown. Only valid from Ready.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, state)
	}
	s.state = StateCountdown
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	ticker := s.newTicker(time.Second)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("cooper test countdown", "seconds", s.countdown)
	s.emit(Event{Type: EventCountdown, Session: snap})
	go s.loop(ctx, ticker)
	return nil
}

// Cancel discards the session. From Countdown or Running it returns after
// the ticker and position subscription are released; a Ready session has
// neither and is cancelled in place. Calling it again, or on a Finished
// session, does nothing.
func (s *Session) Cancel() {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.state = StateCancelled
		s.endedAt = time.Now()
		close(s.done)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.log.Info("cooper test discarded before start")
		s.emit(Event{Type: EventCancelled, Session: snap})
	case StateCountdown, StateRunning:
		s.state = StateCancelled
		s.endedAt = time.Now()
		cancel := s.cancel
		s.mu.Unlock()

		cancel()
		<-s.done
		s.log.Info("cooper test cancelled")
		s.emit(Event{Type: EventCancelled, Session: s.Snapshot()})
	case StateCancelled:
		s.mu.Unlock()
		<-s.done
	default:
		s.mu.Unlock()
	}
}

// Done is closed once the session goroutine has exited and released its
// subscriptions, or when a Ready session is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the final stats of a naturally completed test.
func (s *Session) Result() (track.Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFinished {
		return track.Stats{}, false
	}
	return s.agg.Stats(), true
}

func (s *Session) Track() geo.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Track()
}

func (s *Session) Heading() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heading
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                 s.id,
		UserID:             s.userID,
		State:              s.state,
		CountdownRemaining: s.countdownRemaining,
		TimeLeftSeconds:    s.timeLeft,
		Clock:              FormatClock(s.timeLeft),
		Stats:              s.agg.Stats(),
		HeadingDegrees:     s.heading,
		PositionError:      s.positionErr,
	}
	if last, ok := s.agg.Last(); ok {
		snap.Current = &last
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

type tickAction int

const (
	tickContinue tickAction = iota
	tickRun
	tickStop
)

func (s *Session) loop(ctx context.Context, ticker Ticker) {
	var (
		sub     Subscription
		updates <-chan Update
	)
	defer func() {
		ticker.Stop()
		if sub != nil {
			sub.Unsubscribe()
		}
		s.mu.Lock()
		finished := s.state == StateFinished
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if finished {
			s.log.Info("cooper test finished",
				"distance_m", snap.Stats.TotalDistanceM,
				"points", snap.Stats.PointCount)
			s.emit(Event{Type: EventFinished, Session: snap})
		}
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			switch s.tick() {
			case tickStop:
				return
			case tickRun:
				sub, updates = s.subscribe(ctx)
			case tickContinue:
				if sub == nil && s.State() == StateRunning {
					sub, updates = s.subscribe(ctx)
				}
			}
		case u, ok := <-updates:
			if !ok {
				sub.Unsubscribe()
				sub, updates = nil, nil
				s.positionError(fmt.Errorf("%w: stream closed", ErrPositionUnavailable))
				continue
			}
			s.observe(u)
		}
	}
}

func (s *Session) tick() tickAction {
	s.mu.Lock()
	var (
		typ    EventType
		action = tickContinue
	)
	switch s.state {
	case StateCountdown:
		s.countdownRemaining--
		if s.countdownRemaining <= 0 {
			s.countdownRemaining = 0
			s.state = StateRunning
			s.startedAt = time.Now()
			typ, action = EventStarted, tickRun
		} else {
			typ = EventCountdown
		}
	case StateRunning:
		s.timeLeft--
		if s.timeLeft <= 0 {
			s.timeLeft = 0
			s.state = StateFinished
			s.endedAt = time.Now()
			action = tickStop
		} else {
			typ = EventTick
		}
	default:
		action = tickStop
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if typ != "" {
		s.emit(Event{Type: typ, Session: snap})
	}
	return action
}

func (s *Session) subscribe(ctx context.Context) (Subscription, <-chan Update) {
	sub, err := s.source.Subscribe(ctx)
	if err != nil {
		s.positionError(fmt.Errorf("%w: %v", ErrPositionUnavailable, err))
		return nil, nil
	}
	return sub, sub.Updates()
}

func (s *Session) observe(u Update) {
	if u.Err != nil {
		s.positionError(u.Err)
		return
	}

	p := u.Sample.Point()
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	if !p.Valid() {
		s.mu.Unlock()
		s.log.Warn("dropping invalid sample", "lat", p.Lat, "lng", p.Lng)
		return
	}
	prev, hasPrev := s.agg.Last()
	s.agg.Observe(p)
	if hasPrev && (prev.Lat != p.Lat || prev.Lng != p.Lng) {
		s.heading = geo.InitialBearing(prev, p)
	}
	s.positionErr = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventPosition, Session: snap})
}

// positionError records the failure and keeps the clock running. Repeats of
// the same error are not re-emitted.
func (s *Session) positionError(err error) {
	s.mu.Lock()
	if s.state != StateRunning || s.positionErr == err.Error() {
		s.mu.Unlock()
		return
	}
	s.positionErr = err.Error()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Warn("position stream error", "error", err)
	s.emit(Event{Type: EventPositionError, Session: snap})
}

func (s *Session) emit(ev Event) {
	if s.listener != nil {
		s.listener(ev)
	}
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
