// Package server exposes the login and registration workflows over
// HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"chayns-login-service/internal/database"
	"chayns-login-service/internal/models"
	"chayns-login-service/internal/register"
)

// LoginAttempter runs one browser login attempt.
type LoginAttempter interface {
	Attempt(ctx context.Context, cred models.Credential) models.LoginResult
}

// Registrar runs one account registration.
type Registrar interface {
	Run(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error)
}

// Config bounds the HTTP surface.
type Config struct {
	// MaxSessions caps concurrent browser-backed requests. Zero means
	// unbounded.
	MaxSessions int64
}

// Server wires the workflows into a gin engine.
type Server struct {
	engine   *gin.Engine
	login    LoginAttempter
	register Registrar
	attempts *database.AttemptRepository
	sem      *semaphore.Weighted
	log      zerolog.Logger
}

func New(login LoginAttempter, registrar Registrar, attempts *database.AttemptRepository, cfg Config, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine:   engine,
		login:    login,
		register: registrar,
		attempts: attempts,
		log:      log,
	}
	if cfg.MaxSessions > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxSessions)
	}

	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET("/health", s.handleHealth)
	engine.POST("/aichat/chayns/login", s.handleLogin)
	engine.POST("/aichat/chayns/register", s.handleRegister)
	return s
}

// Handler returns the http.Handler to mount on an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "username and password are required"})
		return
	}

	if !s.acquire() {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "too many login sessions in flight"})
		return
	}
	defer s.release()

	start := time.Now()
	result := s.login.Attempt(c.Request.Context(), models.Credential{
		Username: req.Username,
		Password: req.Password,
	})
	// Login credentials are transient; the audit row carries outcome and
	// timing only.
	s.recordAttempt(database.AttemptKindLogin, "", result, time.Since(start))

	if result.OK() {
		c.JSON(http.StatusOK, result.Payload)
		return
	}
	c.JSON(loginStatus(result.Reason), models.ErrorResponse{Error: result.Detail})
}

// loginStatus maps a failure classification onto the HTTP status.
func loginStatus(reason models.FailureReason) int {
	switch reason {
	case models.ReasonInvalidCredentials:
		return http.StatusUnauthorized
	case models.ReasonTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "first_name and last_name are required"})
		return
	}

	if !s.acquire() {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "too many browser sessions in flight"})
		return
	}
	defer s.release()

	start := time.Now()
	result, err := s.register.Run(c.Request.Context(), req)
	if err != nil {
		s.recordRegister(req, "failure", err, time.Since(start))
		if errors.Is(err, register.ErrBusy) {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "a registration is already running"})
			return
		}
		var fe *register.FlowError
		if errors.As(err, &fe) {
			c.JSON(fe.Status, models.ErrorResponse{Error: fe.Msg})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "registration failed"})
		return
	}

	s.recordRegister(req, "success", nil, time.Since(start))
	c.JSON(http.StatusOK, result)
}

func (s *Server) acquire() bool {
	if s.sem == nil {
		return true
	}
	return s.sem.TryAcquire(1)
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) recordAttempt(kind, username string, result models.LoginResult, elapsed time.Duration) {
	if s.attempts == nil {
		return
	}
	outcome, reason := "success", ""
	if !result.OK() {
		outcome, reason = "failure", string(result.Reason)
	}
	if err := s.attempts.Record(kind, username, outcome, reason, elapsed); err != nil {
		s.log.Warn().Err(err).Msg("failed to record attempt")
	}
}

func (s *Server) recordRegister(req models.RegisterRequest, outcome string, cause error, elapsed time.Duration) {
	if s.attempts == nil {
		return
	}
	reason := ""
	if cause != nil {
		var fe *register.FlowError
		if errors.As(cause, &fe) {
			reason = string(fe.State)
		} else {
			reason = "error"
		}
	}
	name := strings.TrimSpace(req.FirstName + " " + req.LastName)
	if err := s.attempts.Record(database.AttemptKindRegister, name, outcome, reason, elapsed); err != nil {
		s.log.Warn().Err(err).Msg("failed to record attempt")
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
