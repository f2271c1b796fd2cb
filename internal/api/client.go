package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unihub/examsession/internal/model"
	"github.com/unihub/examsession/internal/response"
)

// Client is the REST client for the university backend. It implements the
// session engine's collaborator boundary: exam lookup, attempt start and
// recovery, per-question answer saves, and the idempotent finalize call.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the given API base URL, e.g.
// "http://localhost:8080/api/v1".
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// SetToken sets the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is a structured backend error decoded from the response envelope.
type APIError struct {
	Status    int
	Code      response.ErrCode
	Message   string
	Fields    map[string]string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Login authenticates a student and stores the returned bearer token on
// the client.
func (c *Client) Login(ctx context.Context, studentID, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	req := model.LoginRequest{StudentID: studentID, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// ListExams returns the student's lobby: exam summaries with window status.
func (c *Client) ListExams(ctx context.Context) ([]model.ExamSummary, error) {
	var out struct {
		Exams []model.ExamSummary `json:"exams"`
	}
	if err := c.do(ctx, http.MethodGet, "/student/exams", nil, &out); err != nil {
		return nil, err
	}
	return out.Exams, nil
}

// GetExam fetches the full exam detail.
func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	var out struct {
		Exam model.Exam `json:"exam"`
	}
	if err := c.do(ctx, http.MethodGet, "/student/exams/"+url.PathEscape(examID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Exam, nil
}

// ListQuestions fetches the exam's ordered question list (answer keys are
// never included).
func (c *Client) ListQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	var out struct {
		Questions []model.Question `json:"questions"`
	}
	if err := c.do(ctx, http.MethodGet, "/student/exams/"+url.PathEscape(examID)+"/questions", nil, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// StartAttempt opens a new attempt. The server rejects the call when the
// exam window has closed and returns the existing attempt when one is
// already ongoing for this student and exam.
func (c *Client) StartAttempt(ctx context.Context, examID string) (*model.Attempt, error) {
	var out struct {
		Attempt model.Attempt `json:"attempt"`
	}
	if err := c.do(ctx, http.MethodPost, "/student/exams/"+url.PathEscape(examID)+"/attempts", nil, &out); err != nil {
		return nil, err
	}
	return &out.Attempt, nil
}

// CurrentAttempt fetches the recovery snapshot of the ongoing attempt:
// saved answers plus the server's view of the remaining time.
func (c *Client) CurrentAttempt(ctx context.Context, examID string) (*model.AttemptSnapshot, error) {
	var out model.AttemptSnapshot
	if err := c.do(ctx, http.MethodGet, "/student/exams/"+url.PathEscape(examID)+"/attempts/current", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveAnswer persists one answer. Idempotent per (attempt, question);
// last write wins.
func (c *Client) SaveAnswer(ctx context.Context, attemptID, questionID, value string) error {
	path := "/student/attempts/" + url.PathEscape(attemptID) + "/answers/" + url.PathEscape(questionID)
	return c.do(ctx, http.MethodPut, path, model.SaveAnswerRequest{Answer: value}, nil)
}

// SubmitAttempt finalizes the attempt, resending the full local answer map
// so answers whose background saves were lost are still scored. Safe to
// call more than once for the same attempt.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID string, answers map[string]string) (*model.Attempt, error) {
	var out struct {
		Attempt model.Attempt `json:"attempt"`
	}
	path := "/student/attempts/" + url.PathEscape(attemptID) + "/submit"
	if err := c.do(ctx, http.MethodPost, path, model.SubmitAttemptRequest{Answers: answers}, &out); err != nil {
		return nil, err
	}
	return &out.Attempt, nil
}

// do performs one request/response cycle through the standard envelope.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(response.HeaderRequestID, uuid.New().String())
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env response.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode envelope (status %d): %w", method, path, resp.StatusCode, err)
	}

	if env.Error != nil || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Code:      response.ErrInternal,
			Message:   response.GetMessage(response.ErrInternal),
			RequestID: env.Metadata.RequestID,
		}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", string(apiErr.Code)).
			Msg("Request failed")
		return apiErr
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}
