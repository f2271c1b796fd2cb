package stub

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/unihub/examsession/internal/config"
	"github.com/unihub/examsession/internal/model"
	"github.com/unihub/examsession/internal/response"
	"github.com/unihub/examsession/internal/validator"
)

const contextKeyStudentID = "student_id"

// Server is the in-process reference backend implementing the collaborator
// contract the session engine depends on. It lets the engine and CLI run
// without the university backend and doubles as the e2e test fixture.
type Server struct {
	engine *gin.Engine
	store  *Store
	issuer *TokenIssuer
	log    zerolog.Logger
}

// NewServer builds the router over the given store.
func NewServer(cfg *config.Config, store *Store, log zerolog.Logger) *Server {
	gin.SetMode(cfg.GinMode)
	validator.Setup()

	s := &Server{
		engine: gin.New(),
		store:  store,
		issuer: NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry),
		log:    log.With().Str("component", "stub_server").Logger(),
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour

	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.New(corsConfig))
	s.engine.Use(response.RequestIDMiddleware())

	s.engine.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/api/v1")
	v1.POST("/auth/login", s.login)

	student := v1.Group("/student")
	student.Use(s.requireStudent())
	{
		student.GET("/exams", s.listExams)
		student.GET("/exams/:exam_id", s.getExam)
		student.GET("/exams/:exam_id/questions", s.listQuestions)
		student.POST("/exams/:exam_id/attempts", s.startAttempt)
		student.GET("/exams/:exam_id/attempts/current", s.currentAttempt)
		student.PUT("/attempts/:attempt_id/answers/:question_id", s.saveAnswer)
		student.POST("/attempts/:attempt_id/submit", s.submitAttempt)
	}

	return s
}

// Handler exposes the router for http.Server and httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requireStudent validates the bearer token and attaches the student id.
func (s *Server) requireStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenStr = parts[1]
			}
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := s.issuer.Validate(tokenStr)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
				return
			}
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(contextKeyStudentID, claims.StudentID)
		c.Next()
	}
}

func (s *Server) studentID(c *gin.Context) string {
	return c.GetString(contextKeyStudentID)
}

// login authenticates a student and returns a bearer token.
func (s *Server) login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := s.store.Authenticate(req.StudentID, req.Password)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := s.issuer.Issue(student.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("Token issue failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"student": gin.H{"id": student.ID, "name": student.Name},
	})
}

// listExams returns the student's lobby.
func (s *Server) listExams(c *gin.Context) {
	exams := s.store.ListExams(s.studentID(c))
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// getExam returns the exam detail.
func (s *Server) getExam(c *gin.Context) {
	exam, err := s.store.GetExam(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// listQuestions returns the ordered question list, answer keys stripped.
func (s *Server) listQuestions(c *gin.Context) {
	questions, err := s.store.Questions(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// startAttempt opens (or idempotently returns) the student's attempt.
func (s *Server) startAttempt(c *gin.Context) {
	att, err := s.store.StartAttempt(s.studentID(c), c.Param("exam_id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, ErrWindowNotOpen):
			response.Fail(c, http.StatusBadRequest, response.ErrExamNotAvailable)
		case errors.Is(err, ErrWindowClosed):
			response.Fail(c, http.StatusBadRequest, response.ErrExamWindowClosed)
		case errors.Is(err, ErrAttemptSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptAlreadySubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": att})
}

// currentAttempt returns the recovery snapshot for an ongoing attempt.
func (s *Server) currentAttempt(c *gin.Context) {
	snap, err := s.store.CurrentAttempt(s.studentID(c), c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// saveAnswer stores one answer; idempotent, last write wins.
func (s *Server) saveAnswer(c *gin.Context) {
	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := s.store.SaveAnswer(s.studentID(c), c.Param("attempt_id"), c.Param("question_id"), req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, ErrNotAttemptOwner):
			response.Fail(c, http.StatusForbidden, response.ErrTokenInvalid)
		case errors.Is(err, ErrAttemptSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotOngoing)
		case errors.Is(err, ErrUnknownQuestion):
			response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInExam)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// submitAttempt finalizes and scores the attempt; safe to call again.
func (s *Server) submitAttempt(c *gin.Context) {
	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	att, err := s.store.Submit(s.studentID(c), c.Param("attempt_id"), req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, ErrNotAttemptOwner):
			response.Fail(c, http.StatusForbidden, response.ErrTokenInvalid)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": att})
}
