package model

import "time"

// AttemptState enumerates attempt lifecycle states. The state only moves
// forward: NOT_STARTED -> ONGOING -> SUBMITTED, terminal at SUBMITTED.
type AttemptState string

const (
	AttemptStateNotStarted AttemptState = "NOT_STARTED"
	AttemptStateOngoing    AttemptState = "ONGOING"
	AttemptStateSubmitted  AttemptState = "SUBMITTED"
)

// Attempt is one student's timed instance of taking an exam. Answers maps
// questionID to the submitted value. Result is populated only after the
// attempt has been scored.
type Attempt struct {
	ID          string            `json:"id"`
	ExamID      string            `json:"exam_id"`
	StudentID   string            `json:"student_id"`
	State       AttemptState      `json:"state"`
	Answers     map[string]string `json:"answers"`
	StartedAt   time.Time         `json:"started_at"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
	Result      *ResultSummary    `json:"result,omitempty"`
}

// ResultSummary is the display-ready scoring summary returned by the
// idempotent finalize call. AllAnswersEvaluated stays false until every
// descriptive answer has been graded by a human.
type ResultSummary struct {
	TotalScore          float64 `json:"total_score"`
	TotalMarks          int     `json:"total_marks"`
	Percentage          float64 `json:"percentage"`
	Grade               string  `json:"grade"`
	AllAnswersEvaluated bool    `json:"all_answers_evaluated"`
}

// AttemptSnapshot is the recovery payload for an ongoing attempt: the
// saved answer map plus the server's view of the remaining time. Used to
// resume a session after a client restart.
type AttemptSnapshot struct {
	Attempt          Attempt `json:"attempt"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// LoginRequest is the payload for student authentication.
type LoginRequest struct {
	StudentID string `json:"student_id" binding:"required,min=1,max=64"`
	Password  string `json:"password" binding:"required,min=1,max=128"`
}

// SaveAnswerRequest is the payload for the per-question autosave call.
// Idempotent per (attempt, question); last write wins.
type SaveAnswerRequest struct {
	Answer string `json:"answer" binding:"max=20000"`
}

// SubmitAttemptRequest carries the full local answer map so that answers
// whose background saves were lost are still included in the final score.
type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers"`
}
