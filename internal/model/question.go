package model

// QuestionType distinguishes auto-scorable from human-graded questions.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeDescriptive    QuestionType = "DESCRIPTIVE"
)

// Question is a single exam question as served to students. For multiple
// choice the submitted answer is the option letter ("A".."Z"); for
// descriptive it is free text. The correct option is never on the wire.
type Question struct {
	ID       string       `json:"id"`
	OrderNum int          `json:"order_num"`
	Type     QuestionType `json:"question_type"`
	Prompt   string       `json:"prompt"`
	Options  []string     `json:"options,omitempty"`
	Marks    int          `json:"marks"`
}
