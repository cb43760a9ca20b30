// Package http implements the REST API of the progression engine.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wingtsun-academy/progression-engine/internal/application/command"
	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/internal/interface/http/handlers"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	AllowedOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Metrics is the instrumentation the server reports to.
type Metrics interface {
	ObserveOperation(operation string, started time.Time, err error)
	ObserveRequest(method, route, status string, elapsed time.Duration)
	Handler() http.Handler
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands (CQRS Write Side)
	CreditAttendance   *command.CreditAttendanceHandler
	RecordAttendance   *command.RecordAttendanceHandler
	RevertAttendance   *command.RevertAttendanceHandler
	CreateLesson       *command.CreateLessonHandler
	DeleteLesson       *command.DeleteLessonHandler
	CreateSchedule     *command.CreateScheduleHandler
	ExtendSchedule     *command.ExtendScheduleHandler
	DeactivateSchedule *command.DeactivateScheduleHandler
	CreateEvent        *command.CreateEventHandler
	RegisterForEvent   *command.RegisterForEventHandler
	EvaluateSeminar    *command.EvaluateSeminarHandler
	DecideStudent      *command.DecideStudentHandler
	ChangeGrade        *command.ChangeGradeHandler
	SaveRequirement    *command.SaveRequirementHandler

	// Queries (CQRS Read Side)
	HoursForGrade    *query.HoursForGradeHandler
	CheckEligibility *query.CheckEligibilityHandler
	StudentProgress  *query.GetStudentProgressHandler
	Lessons          *query.LessonsHandler
	Catalog          *query.CatalogHandler

	Auth          *Authenticator
	HealthChecker handlers.HealthChecker
	Metrics       Metrics
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewCompositeHealthChecker("")
	}

	s.engine.Use(s.requestIDMiddleware(), s.loggingMiddleware(), s.recoveryMiddleware())
	s.engine.Use(cors.New(s.corsConfig()))
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.engine

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	api.Use(s.authMiddleware())

	// ─────────────────────────────────────────────────────────────────────────
	// Grades
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/grades/bands", s.handleListBands)
	api.GET("/grades/hours/:grade", s.handleHoursForGrade)
	api.GET("/grades/eligibility", s.handleCheckEligibility)
	api.GET("/grades/requirements", s.handleListRequirements)
	api.POST("/grades/requirements", s.handleSaveRequirement)
	api.PUT("/grades/requirements/:id", s.handleSaveRequirement)
	api.POST("/grades/manual-change", s.handleChangeGrade)

	// ─────────────────────────────────────────────────────────────────────────
	// Students
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/students/:id/progress", s.handleStudentProgress)
	api.POST("/students/:id/approve", s.handleDecideStudent(true))
	api.POST("/students/:id/reject", s.handleDecideStudent(false))

	// ─────────────────────────────────────────────────────────────────────────
	// Lessons & attendance
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/lessons", s.handleListLessons)
	api.POST("/lessons", s.handleCreateLesson)
	api.GET("/lessons/:id", s.handleGetLesson)
	api.DELETE("/lessons/:id", s.handleDeleteLesson)
	api.GET("/lessons/:id/attendance", s.handleListAttendance)
	api.POST("/lessons/:id/attendance", s.handleCreditAttendance)
	api.POST("/lessons/:id/attendance/:student_id", s.handleRecordAttendance)
	api.DELETE("/attendance/:id", s.handleRevertAttendance)

	// ─────────────────────────────────────────────────────────────────────────
	// Schedules
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/schedules", s.handleListSchedules)
	api.POST("/schedules", s.handleCreateSchedule)
	api.POST("/schedules/:id/extend", s.handleExtendSchedule)
	api.DELETE("/schedules/:id", s.handleDeactivateSchedule)

	// ─────────────────────────────────────────────────────────────────────────
	// Events & seminars
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/events", s.handleListEvents)
	api.POST("/events", s.handleCreateEvent)
	api.GET("/events/:id/registrations", s.handleListRegistrations)
	api.POST("/events/:id/registrations", s.handleRegister)
	api.GET("/events/:id/evaluations", s.handleListEvaluations)
	api.POST("/events/:id/evaluate", s.handleEvaluateSeminar)

	// ─────────────────────────────────────────────────────────────────────────
	// Administration
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/audit", s.handleListAudit)
	api.GET("/reports/attendance", s.handleAttendanceReport)
	api.GET("/reports/attendance.xlsx", s.handleAttendanceXLSX)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)
		c.Set(ctxRequestID, requestID)
		ctx := logger.WithContext(c.Request.Context(), s.logger.WithRequestID(requestID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// loggingMiddleware logs one line per request and reports it to metrics.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)
		}
		if route == "/health" || route == "/metrics" {
			return
		}
		s.logger.Info("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Latency(elapsed),
			logger.String("ip", c.ClientIP()),
			logger.String("request_id", c.GetString(ctxRequestID)),
		)
	}
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered",
			logger.Any("error", recovered),
			logger.String("path", c.Request.URL.Path),
			logger.String("request_id", c.GetString(ctxRequestID)),
		)
		writeJSONError(c, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		c.Abort()
	})
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerAPIKey, headerRequestID},
		ExposeHeaders: []string{headerRequestID, "Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	origins := s.config.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
