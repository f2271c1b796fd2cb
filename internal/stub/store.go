package stub

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/unihub/examsession/internal/model"
)

// Store errors mapped to wire codes by the handlers.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWindowNotOpen      = errors.New("exam window has not opened")
	ErrWindowClosed       = errors.New("exam window has closed")
	ErrAttemptSubmitted   = errors.New("attempt already submitted")
	ErrNoOngoingAttempt   = errors.New("no ongoing attempt")
	ErrUnknownQuestion    = errors.New("question is not part of this exam")
	ErrNotAttemptOwner    = errors.New("attempt belongs to another student")
)

// Student is a seeded account.
type Student struct {
	ID           string
	Name         string
	PasswordHash []byte
}

// SeedQuestion is a question plus its server-side answer key. The key
// never leaves the store.
type SeedQuestion struct {
	model.Question
	CorrectOption string
}

// Store is the in-memory state of the stub backend: accounts, exams with
// answer keys, and attempts. It mirrors the real backend's contract:
// idempotent start (an existing ongoing attempt is returned, not
// duplicated), last-write-wins saves, and idempotent finalize. Nothing is
// persisted across restarts.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	students      map[string]*Student
	exams         map[string]*model.Exam
	questions     map[string][]SeedQuestion
	attempts      map[string]*model.Attempt
	byStudentExam map[string]string
}

// NewStore creates an empty store. now may be nil for wall-clock time;
// tests inject a fake.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:           now,
		students:      make(map[string]*Student),
		exams:         make(map[string]*model.Exam),
		questions:     make(map[string][]SeedQuestion),
		attempts:      make(map[string]*model.Attempt),
		byStudentExam: make(map[string]string),
	}
}

// AddStudent registers an account with a bcrypt-hashed password.
func (s *Store) AddStudent(id, name, password string, bcryptCost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[id] = &Student{ID: id, Name: name, PasswordHash: hash}
	return nil
}

// AddExam registers an exam and its questions. Question order follows
// OrderNum; the exam's QuestionIDs and TotalMarks are derived here.
func (s *Store) AddExam(exam model.Exam, questions []SeedQuestion) {
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].OrderNum < questions[j].OrderNum
	})
	exam.QuestionIDs = make([]string, 0, len(questions))
	exam.TotalMarks = 0
	for _, q := range questions {
		exam.QuestionIDs = append(exam.QuestionIDs, q.ID)
		exam.TotalMarks += q.Marks
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[exam.ID] = &exam
	s.questions[exam.ID] = questions
}

// Authenticate checks a student's credentials.
func (s *Store) Authenticate(studentID, password string) (*Student, error) {
	s.mu.Lock()
	student, ok := s.students[studentID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(student.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return student, nil
}

// ListExams returns the lobby for a student: every exam with its window
// status and, when an attempt exists, the attempt's standing.
func (s *Store) ListExams(studentID string) []model.ExamSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]model.ExamSummary, 0, len(s.exams))
	for _, exam := range s.exams {
		summary := model.ExamSummary{
			ID:              exam.ID,
			Title:           exam.Title,
			Subject:         exam.Subject,
			ScheduledStart:  exam.ScheduledStart,
			ScheduledEnd:    exam.ScheduledEnd,
			DurationMinutes: exam.DurationMinutes,
			Status:          windowStatus(exam, now),
		}
		if attemptID, ok := s.byStudentExam[attemptKey(studentID, exam.ID)]; ok {
			att := s.attempts[attemptID]
			switch att.State {
			case model.AttemptStateOngoing:
				summary.Status = model.ExamStatusOngoing
			case model.AttemptStateSubmitted:
				summary.Status = model.ExamStatusCompleted
				if att.Result != nil {
					score := att.Result.TotalScore
					summary.FinalScore = &score
				}
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// GetExam returns the exam detail.
func (s *Store) GetExam(examID string) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exam, ok := s.exams[examID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *exam
	return &cp, nil
}

// Questions returns the ordered question list with answer keys stripped.
func (s *Store) Questions(examID string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeded, ok := s.questions[examID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.Question, 0, len(seeded))
	for _, q := range seeded {
		out = append(out, q.Question)
	}
	return out, nil
}

// StartAttempt opens an attempt. The call is idempotent per (student,
// exam): an existing ongoing attempt is returned as-is, a submitted one
// blocks retakes, and the exam window is enforced for new attempts.
func (s *Store) StartAttempt(studentID, examID string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[examID]
	if !ok {
		return nil, ErrNotFound
	}

	if attemptID, ok := s.byStudentExam[attemptKey(studentID, examID)]; ok {
		att := s.attempts[attemptID]
		if att.State == model.AttemptStateSubmitted {
			return nil, ErrAttemptSubmitted
		}
		cp := cloneAttempt(att)
		return cp, nil
	}

	now := s.now()
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return nil, ErrWindowNotOpen
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return nil, ErrWindowClosed
	}

	att := &model.Attempt{
		ID:        uuid.New().String(),
		ExamID:    examID,
		StudentID: studentID,
		State:     model.AttemptStateOngoing,
		Answers:   make(map[string]string),
		StartedAt: now,
	}
	s.attempts[att.ID] = att
	s.byStudentExam[attemptKey(studentID, examID)] = att.ID
	return cloneAttempt(att), nil
}

// SaveAnswer stores one answer on an ongoing attempt. Last write wins.
func (s *Store) SaveAnswer(studentID, attemptID, questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	att, ok := s.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	if att.StudentID != studentID {
		return ErrNotAttemptOwner
	}
	if att.State != model.AttemptStateOngoing {
		return ErrAttemptSubmitted
	}
	if !s.questionInExam(att.ExamID, questionID) {
		return ErrUnknownQuestion
	}
	att.Answers[questionID] = value
	return nil
}

// CurrentAttempt returns the recovery snapshot for the student's ongoing
// attempt on the exam.
func (s *Store) CurrentAttempt(studentID, examID string) (*model.AttemptSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attemptID, ok := s.byStudentExam[attemptKey(studentID, examID)]
	if !ok {
		return nil, ErrNoOngoingAttempt
	}
	att := s.attempts[attemptID]
	if att.State != model.AttemptStateOngoing {
		return nil, ErrNoOngoingAttempt
	}

	exam := s.exams[examID]
	deadline := att.StartedAt.Add(exam.Duration())
	remaining := deadline.Sub(s.now()).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return &model.AttemptSnapshot{
		Attempt:          *cloneAttempt(att),
		RemainingSeconds: remaining,
	}, nil
}

// Submit finalizes an attempt and scores it. Idempotent: a second call
// returns the stored scored attempt unchanged. The submitted answer map
// is merged over previously saved answers so the client's local values
// win even when individual background saves were lost.
func (s *Store) Submit(studentID, attemptID string, answers map[string]string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	att, ok := s.attempts[attemptID]
	if !ok {
		return nil, ErrNotFound
	}
	if att.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	if att.State == model.AttemptStateSubmitted {
		return cloneAttempt(att), nil
	}

	for qid, v := range answers {
		if s.questionInExam(att.ExamID, qid) {
			att.Answers[qid] = v
		}
	}

	att.Result = s.score(att)
	att.State = model.AttemptStateSubmitted
	submittedAt := s.now()
	att.SubmittedAt = &submittedAt
	return cloneAttempt(att), nil
}

// score grades multiple-choice answers against the key. Descriptive
// answers need a human grader, so their presence pins
// AllAnswersEvaluated to false and they contribute no marks yet.
func (s *Store) score(att *model.Attempt) *model.ResultSummary {
	result := &model.ResultSummary{AllAnswersEvaluated: true}
	for _, q := range s.questions[att.ExamID] {
		result.TotalMarks += q.Marks
		switch q.Type {
		case model.QuestionTypeMultipleChoice:
			answer, ok := att.Answers[q.ID]
			if ok && strings.EqualFold(strings.TrimSpace(answer), q.CorrectOption) {
				result.TotalScore += float64(q.Marks)
			}
		case model.QuestionTypeDescriptive:
			result.AllAnswersEvaluated = false
		}
	}
	if result.TotalMarks > 0 {
		result.Percentage = result.TotalScore / float64(result.TotalMarks) * 100
	}
	result.Grade = letterGrade(result.Percentage)
	return result
}

func letterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

func (s *Store) questionInExam(examID, questionID string) bool {
	for _, q := range s.questions[examID] {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func windowStatus(exam *model.Exam, now time.Time) model.ExamStatus {
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return model.ExamStatusUpcoming
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return model.ExamStatusClosed
	}
	return model.ExamStatusOpen
}

func attemptKey(studentID, examID string) string {
	return studentID + "/" + examID
}

func cloneAttempt(att *model.Attempt) *model.Attempt {
	cp := *att
	cp.Answers = make(map[string]string, len(att.Answers))
	for qid, v := range att.Answers {
		cp.Answers[qid] = v
	}
	if att.Result != nil {
		r := *att.Result
		cp.Result = &r
	}
	return &cp
}
