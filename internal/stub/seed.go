package stub

import (
	"time"

	"github.com/unihub/examsession/internal/model"
)

// SeedDemo loads one student account and one open exam so the CLI can be
// exercised out of the box. Credentials: S1001 / passw0rd.
func SeedDemo(store *Store, bcryptCost int) error {
	if err := store.AddStudent("S1001", "Demo Student", "passw0rd", bcryptCost); err != nil {
		return err
	}

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(6 * time.Hour)
	store.AddExam(model.Exam{
		ID:              "exam-cs101-mid",
		Title:           "CS101 Midterm",
		Subject:         "Computer Science",
		ScheduledStart:  &start,
		ScheduledEnd:    &end,
		DurationMinutes: 10,
		Instructions:    "Answer every question. Flag anything you want to revisit before submitting.",
	}, []SeedQuestion{
		{
			Question: model.Question{
				ID:       "q1",
				OrderNum: 1,
				Type:     model.QuestionTypeMultipleChoice,
				Prompt:   "Which data structure gives O(1) average lookup by key?",
				Options:  []string{"Linked list", "Hash table", "Binary heap", "Stack"},
				Marks:    5,
			},
			CorrectOption: "B",
		},
		{
			Question: model.Question{
				ID:       "q2",
				OrderNum: 2,
				Type:     model.QuestionTypeMultipleChoice,
				Prompt:   "What does TCP provide that UDP does not?",
				Options:  []string{"Checksums", "Port numbers", "Reliable ordered delivery", "Broadcast"},
				Marks:    5,
			},
			CorrectOption: "C",
		},
		{
			Question: model.Question{
				ID:       "q3",
				OrderNum: 3,
				Type:     model.QuestionTypeDescriptive,
				Prompt:   "Explain the difference between a process and a thread.",
				Marks:    10,
			},
		},
	})
	return nil
}
