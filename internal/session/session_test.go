package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unihub/examsession/internal/model"
)

// fakeBackend is an in-memory Backend with injectable failures and gates.
type fakeBackend struct {
	mu        sync.Mutex
	exam      *model.Exam
	questions []model.Question
	snapshot  *model.AttemptSnapshot

	startGate chan struct{} // when non-nil, StartAttempt blocks until closed
	startErr  error
	saveErr   error
	saved     map[string]string

	submitGate  chan struct{}
	submitErrs  int // number of SubmitAttempt calls to fail before succeeding
	submitCalls int
	submitted   map[string]string // answers from the last successful submit
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		exam: &model.Exam{
			ID:              "exam-1",
			Title:           "Data Structures Final",
			DurationMinutes: 10,
		},
		questions: []model.Question{
			{ID: "q3", OrderNum: 3, Type: model.QuestionTypeDescriptive, Prompt: "Explain heaps"},
			{ID: "q1", OrderNum: 1, Type: model.QuestionTypeMultipleChoice, Prompt: "Pick one"},
			{ID: "q2", OrderNum: 2, Type: model.QuestionTypeMultipleChoice, Prompt: "Pick another"},
		},
		saved: map[string]string{},
	}
}

func (b *fakeBackend) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return b.exam, nil
}

func (b *fakeBackend) ListQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	out := make([]model.Question, len(b.questions))
	copy(out, b.questions)
	return out, nil
}

func (b *fakeBackend) StartAttempt(ctx context.Context, examID string) (*model.Attempt, error) {
	b.mu.Lock()
	gate, err := b.startGate, b.startErr
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &model.Attempt{ID: "att-1", ExamID: examID, State: model.AttemptStateOngoing}, nil
}

func (b *fakeBackend) CurrentAttempt(ctx context.Context, examID string) (*model.AttemptSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, errors.New("no ongoing attempt")
	}
	return b.snapshot, nil
}

func (b *fakeBackend) SaveAnswer(ctx context.Context, attemptID, questionID, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saved[questionID] = value
	return nil
}

func (b *fakeBackend) SubmitAttempt(ctx context.Context, attemptID string, answers map[string]string) (*model.Attempt, error) {
	b.mu.Lock()
	gate := b.submitGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitCalls++
	if b.submitErrs > 0 {
		b.submitErrs--
		return nil, errors.New("gateway timeout")
	}
	b.submitted = make(map[string]string, len(answers))
	for k, v := range answers {
		b.submitted[k] = v
	}
	return &model.Attempt{
		ID:      attemptID,
		ExamID:  b.exam.ID,
		State:   model.AttemptStateSubmitted,
		Answers: b.submitted,
		Result:  &model.ResultSummary{TotalScore: 12, TotalMarks: 20, Percentage: 60, Grade: "D"},
	}, nil
}

func (b *fakeBackend) savedAnswer(questionID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.saved[questionID]
	return v, ok
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitCalls
}

func newTestSession(b Backend, opts ...Option) *AttemptSession {
	base := []Option{
		WithClock(NewClock(WithTickInterval(5 * time.Millisecond))),
		WithSaveRetry(0, time.Millisecond),
	}
	return New(b, zerolog.Nop(), append(base, opts...)...)
}

func TestSessionStartEntersOngoing(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateOngoing {
		t.Fatalf("state = %s", s.State())
	}

	// Questions come back ordered regardless of backend order.
	qs := s.Questions()
	if len(qs) != 3 || qs[0].ID != "q1" || qs[1].ID != "q2" || qs[2].ID != "q3" {
		t.Fatalf("question order = %v", qs)
	}
	if q, ok := s.CurrentQuestion(); !ok || q.ID != "q1" {
		t.Fatalf("current question = %v, %v", q, ok)
	}

	// A second Start on a live session is rejected.
	if err := s.Start(context.Background(), "exam-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start = %v, want ErrInvalidState", err)
	}
}

func TestSessionStartFailureReturnsToIdle(t *testing.T) {
	b := newFakeBackend()
	b.startErr = errors.New("window closed")
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Start = %v, want ErrStartFailed", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after failure = %s", s.State())
	}

	// The failure is not sticky; a later Start may succeed.
	b.mu.Lock()
	b.startErr = nil
	b.mu.Unlock()
	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
}

func TestSessionAnswersSavedInBackground(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.SetAnswer("q1", "B"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if err := s.SetAnswer("nope", "B"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("SetAnswer unknown = %v, want ErrUnknownQuestion", err)
	}

	// The local read is immediate even before the save lands.
	if v, ok := s.Answer("q1"); !ok || v != "B" {
		t.Fatalf("local answer = %q, %v", v, ok)
	}

	waitFor(t, time.Second, func() bool {
		v, ok := b.savedAnswer("q1")
		return ok && v == "B"
	})
}

func TestSessionSubmitCarriesLocalAnswersDespiteLostSaves(t *testing.T) {
	b := newFakeBackend()
	b.saveErr = errors.New("proxy hiccup")
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.SetAnswer("q1", "B") //nolint:errcheck
	s.SetAnswer("q2", "C") //nolint:errcheck

	scored, err := s.RequestSubmit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}
	if s.State() != StateSubmitted || s.Trigger() != TriggerManual {
		t.Fatalf("state = %s trigger = %s", s.State(), s.Trigger())
	}
	if scored.Result == nil {
		t.Fatal("scored attempt has no result")
	}

	// Every background save failed, yet the submit payload carries the full
	// local answer map.
	if b.submitted["q1"] != "B" || b.submitted["q2"] != "C" {
		t.Fatalf("submitted answers = %v", b.submitted)
	}

	// The session is read-only now.
	if err := s.SetAnswer("q1", "A"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SetAnswer after submit = %v, want ErrInvalidState", err)
	}
	if _, err := s.ToggleReview("q1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ToggleReview after submit = %v, want ErrInvalidState", err)
	}
	if err := s.Next(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Next after submit = %v, want ErrInvalidState", err)
	}
}

func TestSessionTimeoutAutoSubmits(t *testing.T) {
	ft := newFakeTime()
	b := newFakeBackend()

	finalized := make(chan *model.Attempt, 1)
	s := newTestSession(b,
		WithClock(NewClock(WithTickInterval(time.Millisecond), WithNowFunc(ft.Now))),
		WithCallbacks(Callbacks{OnFinalized: func(a *model.Attempt) { finalized <- a }}),
	)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.SetAnswer("q1", "B") //nolint:errcheck

	ft.Advance(11 * time.Minute)

	select {
	case a := <-finalized:
		if a.State != model.AttemptStateSubmitted {
			t.Fatalf("finalized attempt state = %s", a.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expiry did not finalize the attempt")
	}

	if s.State() != StateSubmitted || s.Trigger() != TriggerTimeout {
		t.Fatalf("state = %s trigger = %s", s.State(), s.Trigger())
	}
	if b.submitted["q1"] != "B" {
		t.Fatalf("submitted answers = %v", b.submitted)
	}
}

func TestSessionFinalizesExactlyOnceUnderRace(t *testing.T) {
	b := newFakeBackend()
	b.submitGate = make(chan struct{})
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const racers = 4
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.RequestSubmit(context.Background(), TriggerManual)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(b.submitGate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("racer %d: %v", i, err)
		}
	}
	if got := b.calls(); got != 1 {
		t.Fatalf("backend submit calls = %d, want 1", got)
	}

	// A post-submit request returns the stored result without a new call.
	if _, err := s.RequestSubmit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("post-submit RequestSubmit: %v", err)
	}
	if got := b.calls(); got != 1 {
		t.Fatalf("backend submit calls after replay = %d, want 1", got)
	}
}

func TestSessionSubmitFailureStaysFinalizingAndRetries(t *testing.T) {
	b := newFakeBackend()
	b.submitErrs = 1
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.SetAnswer("q1", "B") //nolint:errcheck

	if _, err := s.RequestSubmit(context.Background(), TriggerManual); !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("first RequestSubmit = %v, want ErrSubmitFailed", err)
	}
	if s.State() != StateFinalizing {
		t.Fatalf("state after failed submit = %s", s.State())
	}

	// Answers stay sealed while finalizing.
	if err := s.SetAnswer("q1", "A"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SetAnswer while finalizing = %v, want ErrInvalidState", err)
	}

	scored, err := s.RequestSubmit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("retry RequestSubmit: %v", err)
	}
	if s.State() != StateSubmitted || scored.State != model.AttemptStateSubmitted {
		t.Fatalf("state = %s attempt = %s", s.State(), scored.State)
	}
	if b.submitted["q1"] != "B" {
		t.Fatalf("submitted answers = %v", b.submitted)
	}
}

func TestSessionCloseDiscardsLateStart(t *testing.T) {
	b := newFakeBackend()
	b.startGate = make(chan struct{})
	s := newTestSession(b)

	startErr := make(chan error, 1)
	go func() { startErr <- s.Start(context.Background(), "exam-1") }()

	waitFor(t, time.Second, func() bool { return s.State() == StateStarting })
	s.Close()
	close(b.startGate)

	if err := <-startErr; !errors.Is(err, ErrInvalidState) {
		t.Fatalf("late Start = %v, want ErrInvalidState", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after Close = %s", s.State())
	}
}

func TestSessionResumeSeedsAnswersAndRemaining(t *testing.T) {
	b := newFakeBackend()
	b.snapshot = &model.AttemptSnapshot{
		Attempt: model.Attempt{
			ID:      "att-1",
			ExamID:  "exam-1",
			State:   model.AttemptStateOngoing,
			Answers: map[string]string{"q1": "B", "q3": "a heap is a tree"},
		},
		RemainingSeconds: 240,
	}
	s := newTestSession(b)
	defer s.Close()

	if err := s.Resume(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.State() != StateOngoing {
		t.Fatalf("state = %s", s.State())
	}
	if v, ok := s.Answer("q1"); !ok || v != "B" {
		t.Fatalf("seeded answer q1 = %q, %v", v, ok)
	}
	if v, ok := s.Answer("q3"); !ok || v != "a heap is a tree" {
		t.Fatalf("seeded answer q3 = %q, %v", v, ok)
	}

	// The countdown restarts from the server snapshot, not the exam duration.
	if got := s.Remaining(); got > 4*time.Minute || got < 3*time.Minute {
		t.Fatalf("remaining = %v, want about 4m", got)
	}

	// Seeding must not have scheduled background saves.
	time.Sleep(20 * time.Millisecond)
	if _, ok := b.savedAnswer("q1"); ok {
		t.Fatal("seeded answer was re-saved to the backend")
	}
}

func TestSessionResumeRejectsSubmittedAttempt(t *testing.T) {
	b := newFakeBackend()
	b.snapshot = &model.AttemptSnapshot{
		Attempt: model.Attempt{ID: "att-1", State: model.AttemptStateSubmitted},
	}
	s := newTestSession(b)
	defer s.Close()

	if err := s.Resume(context.Background(), "exam-1"); !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Resume = %v, want ErrStartFailed", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s", s.State())
	}
}

func TestSessionTickNotForwardedAfterFinalize(t *testing.T) {
	b := newFakeBackend()

	var mu sync.Mutex
	ticks := 0
	s := newTestSession(b,
		// No real ticks; the test delivers them by hand.
		WithClock(NewClock(WithTickInterval(time.Hour))),
		WithCallbacks(Callbacks{OnTick: func(time.Duration) {
			mu.Lock()
			ticks++
			mu.Unlock()
		}}),
	)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.handleTick(9 * time.Minute)
	mu.Lock()
	if ticks != 1 {
		t.Fatalf("ticks while ongoing = %d, want 1", ticks)
	}
	mu.Unlock()
	if got := s.Remaining(); got != 9*time.Minute {
		t.Fatalf("remaining = %v, want 9m", got)
	}

	if _, err := s.RequestSubmit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}

	// A tick that was already in flight when the clock stopped must not
	// reach the callback or move the countdown.
	s.handleTick(3 * time.Minute)
	mu.Lock()
	if ticks != 1 {
		t.Fatalf("ticks after finalize = %d, want 1", ticks)
	}
	mu.Unlock()
	if got := s.Remaining(); got != 9*time.Minute {
		t.Fatalf("remaining moved after finalize: %v", got)
	}
}

func TestSessionReviewMarksNeverReachBackend(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b)
	defer s.Close()

	if err := s.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	marked, err := s.ToggleReview("q2")
	if err != nil || !marked {
		t.Fatalf("ToggleReview = %v, %v", marked, err)
	}
	if !s.IsMarked("q2") {
		t.Fatal("q2 not marked")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := b.savedAnswer("q2"); ok {
		t.Fatal("review mark produced a backend save")
	}

	if _, err := s.RequestSubmit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}
	if _, ok := b.submitted["q2"]; ok {
		t.Fatalf("review mark leaked into submit payload: %v", b.submitted)
	}
}
