package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unihub/examsession/internal/model"
)

// State enumerates the attempt session lifecycle. The state only moves
// forward; Submitted is terminal and read-only.
type State string

const (
	StateIdle       State = "IDLE"
	StateStarting   State = "STARTING"
	StateOngoing    State = "ONGOING"
	StateFinalizing State = "FINALIZING"
	StateSubmitted  State = "SUBMITTED"
)

// Trigger records what initiated a finalize.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// Backend is the collaborator boundary to the university backend. The
// server independently enforces the exam window and treats both save and
// submit as idempotent.
type Backend interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID string) ([]model.Question, error)
	StartAttempt(ctx context.Context, examID string) (*model.Attempt, error)
	CurrentAttempt(ctx context.Context, examID string) (*model.AttemptSnapshot, error)
	SaveAnswer(ctx context.Context, attemptID, questionID, value string) error
	SubmitAttempt(ctx context.Context, attemptID string, answers map[string]string) (*model.Attempt, error)
}

// Callbacks notify the presentation layer. They are invoked outside the
// session lock but must not block; OnTick arrives once per clock tick.
type Callbacks struct {
	OnTick        func(remaining time.Duration)
	OnStateChange func(state State)
	OnFinalized   func(attempt *model.Attempt)
}

// Option customizes an AttemptSession.
type Option func(*AttemptSession)

// WithClock substitutes the countdown clock. Used by tests to compress time.
func WithClock(c *Clock) Option {
	return func(s *AttemptSession) { s.clock = c }
}

// WithCallbacks registers presentation callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(s *AttemptSession) { s.cb = cb }
}

// WithSaveRetry configures the persistence queue retry policy.
func WithSaveRetry(maxRetries int, delay time.Duration) Option {
	return func(s *AttemptSession) {
		s.saveMaxRetries = maxRetries
		s.saveRetryDelay = delay
	}
}

// AttemptSession orchestrates one timed attempt: acquiring it, running the
// countdown while answers and review marks are edited, and finalizing
// exactly once via either manual submission or clock expiry. The
// Ongoing -> Finalizing transition is the single check-and-set gate both
// paths race through; whichever loses observes the session has left
// Ongoing and attaches to the winner's finalize call.
type AttemptSession struct {
	mu      sync.Mutex
	state   State
	trigger Trigger
	epoch   int // incremented by Close; discards late start responses

	backend Backend
	log     zerolog.Logger
	cb      Callbacks

	clock     *Clock
	answers   *AnswerStore
	queue     *PersistenceQueue
	nav       *NavigationController
	submitter *SubmissionController

	exam        *model.Exam
	questions   []model.Question
	questionIDs map[string]struct{}
	attempt     *model.Attempt
	remaining   time.Duration

	saveMaxRetries int
	saveRetryDelay time.Duration
	queueCancel    context.CancelFunc
}

// New creates an idle session over the given backend.
func New(backend Backend, log zerolog.Logger, opts ...Option) *AttemptSession {
	s := &AttemptSession{
		state:          StateIdle,
		backend:        backend,
		log:            log.With().Str("component", "attempt_session").Logger(),
		clock:          NewClock(),
		saveMaxRetries: 3,
		saveRetryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start acquires a new attempt for the exam and begins the timed phase.
// On failure the session returns to Idle; starting is not retried
// automatically.
func (s *AttemptSession) Start(ctx context.Context, examID string) error {
	epoch, err := s.beginStarting()
	if err != nil {
		return err
	}

	exam, err := s.backend.GetExam(ctx, examID)
	if err != nil {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: get exam: %v", ErrStartFailed, err)
	}

	questions, err := s.backend.ListQuestions(ctx, examID)
	if err != nil {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: list questions: %v", ErrStartFailed, err)
	}

	attempt, err := s.backend.StartAttempt(ctx, examID)
	if err != nil {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	return s.activate(epoch, exam, questions, attempt, nil, exam.Duration())
}

// Resume recovers an ongoing attempt after a client restart: previously
// saved answers seed the local store and the countdown restarts from the
// server's remaining-time snapshot, since the locally captured start
// timestamp is gone.
func (s *AttemptSession) Resume(ctx context.Context, examID string) error {
	epoch, err := s.beginStarting()
	if err != nil {
		return err
	}

	exam, err := s.backend.GetExam(ctx, examID)
	if err != nil {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: get exam: %v", ErrStartFailed, err)
	}

	questions, err := s.backend.ListQuestions(ctx, examID)
	if err != nil {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: list questions: %v", ErrStartFailed, err)
	}

	snap, err := s.backend.CurrentAttempt(ctx, examID)
	if err != nil {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: current attempt: %v", ErrStartFailed, err)
	}
	if snap.Attempt.State != model.AttemptStateOngoing {
		s.abortStarting(epoch)
		return fmt.Errorf("%w: attempt is %s", ErrStartFailed, snap.Attempt.State)
	}

	remaining := time.Duration(snap.RemainingSeconds * float64(time.Second))
	if remaining < 0 {
		remaining = 0
	}
	return s.activate(epoch, exam, questions, &snap.Attempt, snap.Attempt.Answers, remaining)
}

func (s *AttemptSession) beginStarting() (int, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return 0, ErrInvalidState
	}
	s.state = StateStarting
	epoch := s.epoch
	s.mu.Unlock()

	s.notifyState(StateStarting)
	return epoch, nil
}

func (s *AttemptSession) abortStarting(epoch int) {
	s.mu.Lock()
	if s.epoch == epoch && s.state == StateStarting {
		s.state = StateIdle
		s.mu.Unlock()
		s.notifyState(StateIdle)
		return
	}
	s.mu.Unlock()
}

// activate wires the live components and enters Ongoing. A late response
// arriving after Close is discarded here.
func (s *AttemptSession) activate(epoch int, exam *model.Exam, questions []model.Question, attempt *model.Attempt, seed map[string]string, duration time.Duration) error {
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].OrderNum < questions[j].OrderNum
	})

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateStarting {
		s.mu.Unlock()
		s.log.Warn().Str("attempt_id", attempt.ID).Msg("Discarding late start response")
		return ErrInvalidState
	}

	s.exam = exam
	s.questions = questions
	s.questionIDs = make(map[string]struct{}, len(questions))
	for _, q := range questions {
		s.questionIDs[q.ID] = struct{}{}
	}
	s.attempt = attempt
	s.remaining = duration

	attemptID := attempt.ID
	s.queue = NewPersistenceQueue(
		func(ctx context.Context, questionID, value string) error {
			return s.backend.SaveAnswer(ctx, attemptID, questionID, value)
		},
		s.saveMaxRetries, s.saveRetryDelay, s.log,
	)
	s.answers = NewAnswerStore(s.queue.Enqueue)
	if seed != nil {
		s.answers.Seed(seed)
	}
	s.nav = NewNavigationController(len(questions))
	s.submitter = NewSubmissionController(s.finalize)

	qctx, cancel := context.WithCancel(context.Background())
	s.queueCancel = cancel
	go s.queue.Start(qctx)

	s.state = StateOngoing
	clock := s.clock
	s.mu.Unlock()

	s.notifyState(StateOngoing)
	s.log.Info().
		Str("attempt_id", attempt.ID).
		Str("exam_id", exam.ID).
		Dur("duration", duration).
		Msg("Attempt ongoing")

	if err := clock.Start(duration, s.handleTick, s.handleExpire); err != nil {
		return err
	}
	return nil
}

// RequestSubmit finalizes the attempt. The Ongoing path stops the clock
// synchronously before the network call so a pending expiry cannot race a
// manual submission into a second finalize. In Finalizing it attaches to
// the in-flight call (or retries the same idempotent call after a
// failure); in Submitted it returns the stored scored attempt.
func (s *AttemptSession) RequestSubmit(ctx context.Context, trigger Trigger) (*model.Attempt, error) {
	s.mu.Lock()
	switch s.state {
	case StateOngoing:
		s.trigger = trigger
		s.state = StateFinalizing
		s.answers.Seal()
		clock := s.clock
		s.mu.Unlock()

		clock.Stop()
		s.notifyState(StateFinalizing)
		s.log.Info().Str("triggered_by", string(trigger)).Msg("Finalizing attempt")

	case StateFinalizing:
		s.mu.Unlock()

	case StateSubmitted:
		att := s.attempt
		s.mu.Unlock()
		return att, nil

	default:
		s.mu.Unlock()
		return nil, ErrInvalidState
	}

	scored, err := s.submitter.Submit(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Finalize failed; the same call may be retried")
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	s.mu.Lock()
	first := s.state != StateSubmitted
	if first {
		s.attempt = scored
		s.state = StateSubmitted
		if s.queueCancel != nil {
			s.queueCancel()
		}
	}
	s.mu.Unlock()

	if first {
		s.notifyState(StateSubmitted)
		if s.cb.OnFinalized != nil {
			s.cb.OnFinalized(scored)
		}
		s.log.Info().Str("attempt_id", scored.ID).Msg("Attempt submitted")
	}
	return scored, nil
}

// finalize is the single-flight body: it snapshots the authoritative local
// answer map so answers whose background saves were lost are still scored.
func (s *AttemptSession) finalize(ctx context.Context) (*model.Attempt, error) {
	s.mu.Lock()
	attemptID := s.attempt.ID
	answers := s.answers.All()
	s.mu.Unlock()
	return s.backend.SubmitAttempt(ctx, attemptID, answers)
}

// handleTick runs on the clock goroutine. A tick already in flight when
// the clock is stopped is swallowed here so the presentation layer never
// sees a countdown update after the attempt left Ongoing.
func (s *AttemptSession) handleTick(remaining time.Duration) {
	s.mu.Lock()
	live := s.state == StateOngoing
	if live {
		s.remaining = remaining
	}
	s.mu.Unlock()

	if live && s.cb.OnTick != nil {
		s.cb.OnTick(remaining)
	}
}

// handleExpire runs on the clock goroutine. The transition is mandatory
// and not cancellable by the student; if a manual submit won the race this
// attaches to its finalize call and is otherwise a no-op.
func (s *AttemptSession) handleExpire() {
	if _, err := s.RequestSubmit(context.Background(), TriggerTimeout); err != nil {
		s.log.Error().Err(err).Msg("Auto-submit on expiry failed")
	}
}

// ─── Editing (Ongoing only) ────────────────────────────────────────────────

// SetAnswer replaces the local answer for a question and schedules a
// best-effort background save.
func (s *AttemptSession) SetAnswer(questionID, value string) error {
	s.mu.Lock()
	if s.state != StateOngoing {
		s.mu.Unlock()
		return ErrInvalidState
	}
	if _, ok := s.questionIDs[questionID]; !ok {
		s.mu.Unlock()
		return ErrUnknownQuestion
	}
	store := s.answers
	s.mu.Unlock()

	return store.Set(questionID, value)
}

// ToggleReview flips the review flag for a question and reports the new
// state. Review marks never leave the client.
func (s *AttemptSession) ToggleReview(questionID string) (bool, error) {
	s.mu.Lock()
	if s.state != StateOngoing {
		s.mu.Unlock()
		return false, ErrInvalidState
	}
	if _, ok := s.questionIDs[questionID]; !ok {
		s.mu.Unlock()
		return false, ErrUnknownQuestion
	}
	store := s.answers
	s.mu.Unlock()

	return store.ToggleReview(questionID)
}

// ─── Navigation (Ongoing only) ─────────────────────────────────────────────

// GoTo jumps to a question index; out-of-range indices are no-ops.
func (s *AttemptSession) GoTo(index int) error {
	nav, err := s.liveNav()
	if err != nil {
		return err
	}
	nav.GoTo(index)
	return nil
}

// Next advances one question; no-op at the end.
func (s *AttemptSession) Next() error {
	nav, err := s.liveNav()
	if err != nil {
		return err
	}
	nav.Next()
	return nil
}

// Previous moves back one question; no-op at the start.
func (s *AttemptSession) Previous() error {
	nav, err := s.liveNav()
	if err != nil {
		return err
	}
	nav.Previous()
	return nil
}

func (s *AttemptSession) liveNav() (*NavigationController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOngoing {
		return nil, ErrInvalidState
	}
	return s.nav, nil
}

// ─── Reads (always permitted) ──────────────────────────────────────────────

// State returns the current lifecycle state.
func (s *AttemptSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trigger reports what initiated the finalize, once one has begun.
func (s *AttemptSession) Trigger() Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

// Exam returns the running exam, nil before Start succeeds.
func (s *AttemptSession) Exam() *model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// Attempt returns the current attempt; after Submitted it carries the
// scored result.
func (s *AttemptSession) Attempt() *model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Questions returns the ordered question list.
func (s *AttemptSession) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// CurrentQuestion returns the question at the navigation cursor.
func (s *AttemptSession) CurrentQuestion() (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav == nil || len(s.questions) == 0 {
		return model.Question{}, false
	}
	return s.questions[s.nav.Current()], true
}

// CurrentIndex returns the navigation cursor position.
func (s *AttemptSession) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav == nil {
		return 0
	}
	return s.nav.Current()
}

// Visited returns the sorted visited indices.
func (s *AttemptSession) Visited() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav == nil {
		return nil
	}
	return s.nav.Visited()
}

// Answer returns the locally stored answer for a question.
func (s *AttemptSession) Answer(questionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers == nil {
		return "", false
	}
	return s.answers.Get(questionID)
}

// Answers returns a copy of the local answer map.
func (s *AttemptSession) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers == nil {
		return map[string]string{}
	}
	return s.answers.All()
}

// IsMarked reports whether a question is flagged for review.
func (s *AttemptSession) IsMarked(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers != nil && s.answers.IsMarked(questionID)
}

// Marked returns the questions flagged for review.
func (s *AttemptSession) Marked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers == nil {
		return nil
	}
	return s.answers.Marked()
}

// Remaining returns the last observed countdown value.
func (s *AttemptSession) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Close tears the session down without submitting: the clock stops, the
// queue drains, and any in-flight start response will be discarded. An
// ongoing attempt stays ongoing server-side until its window lapses.
func (s *AttemptSession) Close() {
	s.mu.Lock()
	s.epoch++
	if s.state == StateStarting {
		s.state = StateIdle
	}
	clock := s.clock
	cancel := s.queueCancel
	s.mu.Unlock()

	clock.Stop()
	if cancel != nil {
		cancel()
	}
}

func (s *AttemptSession) notifyState(state State) {
	if s.cb.OnStateChange != nil {
		s.cb.OnStateChange(state)
	}
}
