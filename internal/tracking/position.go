package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-runshare/internal/shared/geo"
)

var (
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrInvalidSample       = errors.New("invalid position sample")
	ErrFeedClosed          = errors.New("position feed is not subscribed")
	ErrFeedFull            = errors.New("position feed is full")
	ErrFeedBusy            = errors.New("position feed already subscribed")
)

// Sample is one reading from a device location provider.
type Sample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Elevation *float64  `json:"elevation_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s Sample) Point() geo.Point {
	p := geo.Point{Lat: s.Lat, Lng: s.Lng, Elevation: s.Elevation}
	if !s.Timestamp.IsZero() {
		ts := s.Timestamp
		p.Time = &ts
	}
	return p
}

// Update carries either a sample or the provider's error.
type Update struct {
	Sample Sample
	Err    error
}

// PositionSource delivers samples in the order the provider produced them.
// Callers are expected to feed non-decreasing timestamps; nothing is sorted
// or deduplicated downstream.
type PositionSource interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	Updates() <-chan Update
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe()
}

// FeedSource is a PositionSource fed by the device over HTTP. Pushes are
// rejected while nobody is subscribed so a client learns early that the
// session is not running.
type FeedSource struct {
	buffer int

	mu  sync.Mutex
	sub *feedSubscription
}

func NewFeedSource(buffer int) *FeedSource {
	if buffer <= 0 {
		buffer = 32
	}
	return &FeedSource{buffer: buffer}
}

func (f *FeedSource) Subscribe(_ context.Context) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		return nil, ErrFeedBusy
	}
	f.sub = &feedSubscription{feed: f, ch: make(chan Update, f.buffer)}
	return f.sub, nil
}

func (f *FeedSource) Push(s Sample) error {
	if !s.Point().Valid() {
		return fmt.Errorf("%w: lat %.6f lng %.6f", ErrInvalidSample, s.Lat, s.Lng)
	}
	return f.send(Update{Sample: s})
}

// PushError reports a provider failure, e.g. revoked permission.
func (f *FeedSource) PushError(cause error) error {
	err := ErrPositionUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrPositionUnavailable, cause)
	}
	return f.send(Update{Err: err})
}

func (f *FeedSource) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub != nil
}

func (f *FeedSource) send(u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil {
		return ErrFeedClosed
	}
	select {
	case f.sub.ch <- u:
		return nil
	default:
		return ErrFeedFull
	}
}

type feedSubscription struct {
	feed *FeedSource
	ch   chan Update
}

func (s *feedSubscription) Updates() <-chan Update {
	return s.ch
}

func (s *feedSubscription) Unsubscribe() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if s.feed.sub != s {
		return
	}
	s.feed.sub = nil
	close(s.ch)
}
