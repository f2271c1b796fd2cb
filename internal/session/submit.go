package session

import (
	"context"
	"sync"

	"github.com/unihub/examsession/internal/model"
)

// FinalizeFunc performs the one-shot finalize call against the backend and
// returns the scored attempt. The backend treats finalize as idempotent
// per attempt id, so the same call may be retried after a failure.
type FinalizeFunc func(ctx context.Context) (*model.Attempt, error)

// SubmissionController wraps finalize with a single-flight guard: a second
// Submit while one is in flight attaches to the same outcome instead of
// issuing a duplicate network call. After a successful finalize every
// further Submit returns the stored scored attempt.
type SubmissionController struct {
	mu       sync.Mutex
	finalize FinalizeFunc
	inflight chan struct{} // non-nil while a call is out; closed on completion
	attempt  *model.Attempt
	err      error
	done     bool
}

// NewSubmissionController creates a controller around the finalize call.
func NewSubmissionController(finalize FinalizeFunc) *SubmissionController {
	return &SubmissionController{finalize: finalize}
}

// Submit issues the finalize call, joining an in-flight one if present.
// A failed flight leaves the controller retryable.
func (s *SubmissionController) Submit(ctx context.Context) (*model.Attempt, error) {
	s.mu.Lock()
	if s.done {
		att := s.attempt
		s.mu.Unlock()
		return att, nil
	}
	if ch := s.inflight; ch != nil {
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		att, err := s.attempt, s.err
		s.mu.Unlock()
		return att, err
	}
	ch := make(chan struct{})
	s.inflight = ch
	s.mu.Unlock()

	att, err := s.finalize(ctx)

	s.mu.Lock()
	s.attempt, s.err = att, err
	if err == nil {
		s.done = true
	}
	s.inflight = nil
	close(ch)
	s.mu.Unlock()

	return att, err
}

// Done reports whether a finalize call has succeeded.
func (s *SubmissionController) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
