package model

import "time"

// ExamStatus enumerates the lobby-facing states of an exam.
type ExamStatus string

const (
	ExamStatusUpcoming  ExamStatus = "UPCOMING"
	ExamStatusOpen      ExamStatus = "OPEN"
	ExamStatusOngoing   ExamStatus = "ONGOING"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusClosed    ExamStatus = "CLOSED"
)

// Exam is the full exam detail as served by the backend. Read-only to the
// session engine; the answer key never appears here.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      int        `json:"total_marks"`
	QuestionIDs     []string   `json:"question_ids"`
	Instructions    string     `json:"instructions,omitempty"`
}

// Duration returns the attempt countdown length. The countdown derives
// from the duration recorded at attempt start, not from the exam's global
// window; the server enforces the window independently.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ExamSummary is the lobby listing entry used to decide when an attempt
// may be started.
type ExamSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          ExamStatus `json:"status"`
	FinalScore      *float64   `json:"final_score,omitempty"`
}
