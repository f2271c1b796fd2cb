package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/unihub/examsession/internal/api"
	"github.com/unihub/examsession/internal/config"
	"github.com/unihub/examsession/internal/logger"
	"github.com/unihub/examsession/internal/model"
	"github.com/unihub/examsession/internal/session"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("examcli failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()
	stdin := bufio.NewScanner(os.Stdin)
	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, log)

	// ─── Login ─────────────────────────────────────────────────────────
	studentID := prompt(stdin, "Student ID: ")
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if _, err := client.Login(ctx, studentID, string(password)); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Println("Logged in.")

	// ─── Lobby ─────────────────────────────────────────────────────────
	exams, err := client.ListExams(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	if len(exams) == 0 {
		fmt.Println("No exams available.")
		return nil
	}

	fmt.Println("\nAvailable exams:")
	for i, e := range exams {
		fmt.Printf("  %d) %-30s %-20s %3d min  [%s]\n", i+1, e.Title, e.Subject, e.DurationMinutes, e.Status)
	}

	choice, err := strconv.Atoi(prompt(stdin, "\nExam number: "))
	if err != nil || choice < 1 || choice > len(exams) {
		return fmt.Errorf("invalid exam choice")
	}
	picked := exams[choice-1]

	exam, err := client.GetExam(ctx, picked.ID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	// A token that dies mid-exam would strand the attempt.
	if !api.TokenValidFor(client.Token(), exam.Duration()+time.Minute) {
		return fmt.Errorf("token expires before the exam would end; log in again")
	}

	// ─── Session ───────────────────────────────────────────────────────
	finalized := make(chan *model.Attempt, 1)
	var sess *session.AttemptSession
	sess = session.New(client, log, session.WithCallbacks(session.Callbacks{
		OnTick: func(remaining time.Duration) {
			if remaining == time.Minute || (remaining <= 10*time.Second && remaining > 0) {
				fmt.Printf("\n[%s remaining]\n> ", formatDuration(remaining))
			}
		},
		OnFinalized: func(att *model.Attempt) {
			if msg := finalizeNotice(sess.Trigger()); msg != "" {
				fmt.Println(msg)
			}
			finalized <- att
		},
	}))
	defer sess.Close()

	if picked.Status == model.ExamStatusOngoing {
		err = sess.Resume(ctx, picked.ID)
	} else {
		err = sess.Start(ctx, picked.ID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n%s: %d questions, %s on the clock.\n", exam.Title, len(sess.Questions()), formatDuration(sess.Remaining()))
	if exam.Instructions != "" {
		fmt.Println(exam.Instructions)
	}
	fmt.Println("Type 'help' for commands.")
	printQuestion(sess)

	// ─── Command loop ──────────────────────────────────────────────────
	confirm := session.NewConfirmer()
	for {
		select {
		case att := <-finalized:
			printResult(att)
			return nil
		default:
		}

		line := prompt(stdin, "> ")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

		if _, pending := confirm.Pending(); pending && cmd != "confirm" && cmd != "cancel" {
			confirm.Cancel()
			fmt.Println("Submission cancelled.")
		}

		switch cmd {
		case "help":
			printHelp()
		case "show":
			printQuestion(sess)
		case "a", "answer":
			if err := sess.SetAnswer(currentQuestionID(sess), rest); err != nil {
				fmt.Println("Cannot answer:", err)
			}
		case "f", "flag":
			marked, err := sess.ToggleReview(currentQuestionID(sess))
			if err != nil {
				fmt.Println("Cannot flag:", err)
			} else if marked {
				fmt.Println("Flagged for review.")
			} else {
				fmt.Println("Flag removed.")
			}
		case "n", "next":
			if err := sess.Next(); err == nil {
				printQuestion(sess)
			}
		case "p", "prev":
			if err := sess.Previous(); err == nil {
				printQuestion(sess)
			}
		case "g", "goto":
			n, err := strconv.Atoi(rest)
			if err != nil {
				fmt.Println("Usage: g <question number>")
				continue
			}
			if err := sess.GoTo(n - 1); err == nil {
				printQuestion(sess)
			}
		case "ls", "overview":
			printOverview(sess)
		case "time":
			fmt.Printf("%s remaining\n", formatDuration(sess.Remaining()))
		case "submit":
			confirm.Request("submit attempt", func(ctx context.Context) error {
				_, err := sess.RequestSubmit(ctx, session.TriggerManual)
				return err
			})
			fmt.Println("Submit the attempt? This cannot be undone. Type 'confirm' or 'cancel'.")
		case "confirm":
			if err := confirm.Confirm(ctx); err != nil {
				fmt.Println("Submit failed:", err)
				continue
			}
			select {
			case att := <-finalized:
				printResult(att)
			default:
				if att := sess.Attempt(); att != nil {
					printResult(att)
				}
			}
			return nil
		case "cancel":
			if confirm.Cancel() {
				fmt.Println("Submission cancelled.")
			}
		case "quit":
			fmt.Println("Leaving without submitting; the attempt stays ongoing.")
			return nil
		default:
			fmt.Println("Unknown command; type 'help'.")
		}
	}
}

// finalizeNotice tells a student whose time ran out that the attempt is
// already in; the command loop only picks the result up on the next line
// of input. Manual submissions print their result directly, so no notice.
func finalizeNotice(trigger session.Trigger) string {
	if trigger == session.TriggerTimeout {
		return "\nTime is up. The attempt was submitted automatically; press enter to see your result."
	}
	return ""
}

func currentQuestionID(sess *session.AttemptSession) string {
	q, ok := sess.CurrentQuestion()
	if !ok {
		return ""
	}
	return q.ID
}

func printQuestion(sess *session.AttemptSession) {
	q, ok := sess.CurrentQuestion()
	if !ok {
		return
	}
	total := len(sess.Questions())
	flag := ""
	if sess.IsMarked(q.ID) {
		flag = "  [flagged]"
	}
	fmt.Printf("\nQuestion %d/%d (%d marks)%s\n%s\n", sess.CurrentIndex()+1, total, q.Marks, flag, q.Prompt)
	for i, opt := range q.Options {
		fmt.Printf("  %c) %s\n", 'A'+i, opt)
	}
	if answer, ok := sess.Answer(q.ID); ok {
		fmt.Printf("Your answer: %s\n", answer)
	}
}

func printOverview(sess *session.AttemptSession) {
	questions := sess.Questions()
	for i, q := range questions {
		status := " "
		if _, ok := sess.Answer(q.ID); ok {
			status = "answered"
		}
		flag := ""
		if sess.IsMarked(q.ID) {
			flag = " ⚑"
		}
		cursor := "  "
		if i == sess.CurrentIndex() {
			cursor = "->"
		}
		fmt.Printf("%s %2d. %-8s%s\n", cursor, i+1, status, flag)
	}
	fmt.Printf("%s remaining\n", formatDuration(sess.Remaining()))
}

func printResult(att *model.Attempt) {
	fmt.Println("\nAttempt submitted.")
	if att.Result == nil {
		return
	}
	r := att.Result
	fmt.Printf("Score: %.1f / %d (%.1f%%)  Grade: %s\n", r.TotalScore, r.TotalMarks, r.Percentage, r.Grade)
	if !r.AllAnswersEvaluated {
		fmt.Println("Descriptive answers are awaiting grading; the score may still change.")
	}
}

func printHelp() {
	fmt.Println(`Commands:
  show            redisplay the current question
  a <answer>      answer the current question (option letter or text)
  f               toggle the review flag on the current question
  n / p           next / previous question
  g <num>         jump to question <num>
  ls              answered/flagged overview
  time            show remaining time
  submit          finalize the attempt (asks for confirmation)
  quit            leave without submitting`)
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
