package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

var (
	ErrSubmission      = errors.New("result submission failed")
	ErrPendingNotFound = errors.New("pending submission not found")
	ErrNoOutbox        = errors.New("result outbox not configured")
	ErrInvalidUser     = errors.New("user id is not numeric")
)

// SubmissionError reports a result the results server did not accept.
// Pending is set when the distance was parked in the outbox for a retry.
type SubmissionError struct {
	Pending *PendingSubmission
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmission.Error(), e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmission, e.Err}
}

type Service struct {
	client *Client
	outbox Store
}

// NewService accepts a nil outbox; failures are then reported but not kept.
func NewService(client *Client, outbox Store) *Service {
	return &Service{client: client, outbox: outbox}
}

// Submit fetches the profile and posts the test distance, rounded to whole
// meters. A user id the results API cannot accept fails with ErrInvalidUser
// and is not parked.
func (s *Service) Submit(ctx context.Context, token, userID string, distanceM float64) (CooperTestResult, error) {
	if _, err := parseUserID(userID); err != nil {
		return CooperTestResult{}, err
	}
	res, err := s.send(ctx, token, userID, distanceM)
	if err == nil {
		slog.Info("cooper test submitted", "user_id", userID, "distance_m", distanceM, "level", res.Level)
		return res, nil
	}

	slog.Warn("cooper test submission failed", "user_id", userID, "distance_m", distanceM, "error", err)
	subErr := &SubmissionError{Err: err}
	if s.outbox != nil {
		p, saveErr := s.outbox.Save(ctx, userID, distanceM, err.Error())
		if saveErr != nil {
			slog.Error("failed to park submission", "user_id", userID, "error", saveErr)
		} else {
			subErr.Pending = &p
		}
	}
	return CooperTestResult{}, subErr
}

func (s *Service) Pending(ctx context.Context, userID string) ([]PendingSubmission, error) {
	if s.outbox == nil {
		return nil, ErrNoOutbox
	}
	return s.outbox.Pending(ctx, userID)
}

// Retry resubmits a parked result and removes it once accepted.
func (s *Service) Retry(ctx context.Context, token, userID, pendingID string) (CooperTestResult, error) {
	if s.outbox == nil {
		return CooperTestResult{}, ErrNoOutbox
	}
	p, err := s.outbox.Get(ctx, pendingID)
	if errors.Is(err, ErrPendingNotFound) || (err == nil && p.UserID != userID) {
		return CooperTestResult{}, ErrPendingNotFound
	}
	if err != nil {
		return CooperTestResult{}, err
	}

	res, err := s.send(ctx, token, userID, p.DistanceM)
	if err != nil {
		if recErr := s.outbox.RecordFailure(ctx, p.ID, err.Error()); recErr != nil {
			slog.Error("failed to record retry failure", "pending_id", p.ID, "error", recErr)
		}
		p.Attempts++
		p.LastError = err.Error()
		return CooperTestResult{}, &SubmissionError{Pending: &p, Err: err}
	}

	if err := s.outbox.Delete(ctx, p.ID); err != nil {
		slog.Error("failed to clear pending submission", "pending_id", p.ID, "error", err)
	}
	return res, nil
}

func (s *Service) send(ctx context.Context, token, userID string, distanceM float64) (CooperTestResult, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return CooperTestResult{}, err
	}
	profile, err := s.client.Profile(ctx, token, userID)
	if err != nil {
		return CooperTestResult{}, err
	}
	return s.client.SubmitCooperTest(ctx, token, userID, CooperTestRequest{
		UserID:   uid,
		Distance: int(math.Round(distanceM)),
		Age:      profile.Age,
		Gender:   profile.Gender,
	})
}

func parseUserID(userID string) (int64, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	return uid, nil
}
