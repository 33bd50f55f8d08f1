// Package server exposes the task submission and inspection API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"morgus/internal/agent/ports"
	"morgus/internal/logging"
	"morgus/internal/metrics"
)

const stepStreamInterval = time.Second

// Server is the HTTP API in front of the task store. It never executes
// tasks itself; the orchestrator service picks up what it creates.
type Server struct {
	store      ports.TaskStore
	metrics    *metrics.Metrics
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     logging.Logger

	defaultModel string
}

// Config carries the server listen address and task defaults.
type Config struct {
	Host         string
	Port         int
	DefaultModel string
	Debug        bool
}

func New(cfg Config, store ports.TaskStore, m *metrics.Metrics) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		store:   store,
		metrics: m,
		engine:  engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       logging.NewComponentLogger("server"),
		defaultModel: cfg.DefaultModel,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.engine.POST("/tasks", s.handleCreateTask)
	s.engine.GET("/tasks/:id", s.handleGetTask)
	s.engine.GET("/tasks/:id/steps", s.handleListSteps)
	s.engine.GET("/tasks/:id/artifacts", s.handleListArtifacts)
	s.engine.POST("/tasks/:id/answer", s.handleAnswer)
	s.engine.GET("/tasks/:id/steps/ws", s.handleStepStream)
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Morgus Agent API",
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Model       string `json:"model"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	task, err := s.store.CreateTask(c.Request.Context(), req.Title, req.Description, model)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.metrics != nil {
		s.metrics.TasksCreated.Inc()
	}
	s.logger.Info("created task %s: %s", task.ID, task.Title)
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.notFoundOrError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListSteps(c *gin.Context) {
	steps, err := s.store.ListSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

func (s *Server) handleListArtifacts(c *gin.Context) {
	artifacts, err := s.store.ListArtifacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts})
}

type answerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// handleAnswer records the user's reply to an ask_user question and
// re-queues the task so the poller picks it up again.
func (s *Server) handleAnswer(c *gin.Context) {
	taskID := c.Param("id")

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.notFoundOrError(c, err)
		return
	}
	if task.Status != ports.StatusWaitingForInput {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("task is %s, not %s", task.Status, ports.StatusWaitingForInput),
		})
		return
	}

	if err := s.store.AppendStep(ctx, taskID, task.Phase, ports.StepUserNotification,
		"User answered: "+req.Answer, map[string]any{"answer": req.Answer}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.UpdateTask(ctx, taskID, map[string]any{"status": ports.StatusPending}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ports.StatusPending})
}

// handleStepStream tails the task's step log over a websocket, sending each
// step once in order.
func (s *Server) handleStepStream(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := s.store.GetTask(c.Request.Context(), taskID); err != nil {
		s.notFoundOrError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := 0
	ticker := time.NewTicker(stepStreamInterval)
	defer ticker.Stop()

	for {
		steps, err := s.store.ListSteps(c.Request.Context(), taskID)
		if err != nil {
			s.logger.Warn("step stream for %s: %v", taskID, err)
			return
		}
		for ; sent < len(steps); sent++ {
			if err := conn.WriteJSON(steps[sent]); err != nil {
				return
			}
		}

		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) notFoundOrError(c *gin.Context, err error) {
	if strings.Contains(err.Error(), "not found") {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
