package session

import "sync"

// AnswerStore holds the local answer map and the set of questions flagged
// for review. It is the source of truth for submission: values are never
// dropped even when background persistence fails. Review marks are a pure
// UI aid and never leave the client.
//
// Seal makes the store immutable; the session seals it the moment the
// attempt leaves Ongoing.
type AnswerStore struct {
	mu       sync.RWMutex
	answers  map[string]string
	review   map[string]struct{}
	sealed   bool
	onAnswer func(questionID, value string)
}

// NewAnswerStore creates an empty store. onAnswer is invoked after every
// successful Set; the session wires it to the PersistenceQueue.
func NewAnswerStore(onAnswer func(questionID, value string)) *AnswerStore {
	return &AnswerStore{
		answers:  make(map[string]string),
		review:   make(map[string]struct{}),
		onAnswer: onAnswer,
	}
}

// Seed loads previously saved answers without emitting change events.
// Used when resuming an ongoing attempt.
func (s *AnswerStore) Seed(answers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for qid, v := range answers {
		s.answers[qid] = v
	}
}

// Set replaces the stored answer for a question. Returns ErrInvalidState
// once the store is sealed.
func (s *AnswerStore) Set(questionID, value string) error {
	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.answers[questionID] = value
	emit := s.onAnswer
	s.mu.Unlock()

	if emit != nil {
		emit(questionID, value)
	}
	return nil
}

// ToggleReview flips the review flag for a question and reports the new
// state. Returns ErrInvalidState once the store is sealed.
func (s *AnswerStore) ToggleReview(questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false, ErrInvalidState
	}
	if _, ok := s.review[questionID]; ok {
		delete(s.review, questionID)
		return false, nil
	}
	s.review[questionID] = struct{}{}
	return true, nil
}

// Get returns the stored answer for a question, if any.
func (s *AnswerStore) Get(questionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// All returns a copy of the answer map, safe to hand to the submit call.
func (s *AnswerStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.answers))
	for qid, v := range s.answers {
		out[qid] = v
	}
	return out
}

// IsMarked reports whether a question is flagged for review.
func (s *AnswerStore) IsMarked(questionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.review[questionID]
	return ok
}

// Marked returns the set of questions flagged for review.
func (s *AnswerStore) Marked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.review))
	for qid := range s.review {
		out = append(out, qid)
	}
	return out
}

// Seal makes the store read-only. Idempotent.
func (s *AnswerStore) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}
