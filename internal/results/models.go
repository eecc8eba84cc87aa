package results

import "time"

type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

type CooperTestRequest struct {
	UserID   int64  `json:"userId"`
	Distance int    `json:"distance"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

type CooperTestResult struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PendingSubmission is a finished test whose result has not reached the
// results server yet.
type PendingSubmission struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DistanceM float64   `json:"distance_m"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
}
