package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/authshift/authshift/internal/migrate"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const operatorContextKey = "authshift_operator"

var (
	errMissingMigrator      = errors.New("migration service dependency required")
	errMissingTracker       = errors.New("state tracker dependency required")
	errMissingValidator     = errors.New("operator validator dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// MigrationRunner executes one migration run to completion.
type MigrationRunner interface {
	Run(ctx context.Context, opts migrate.RunOptions) (migrate.Snapshot, error)
}

// TokenValidator validates operator bearer tokens on control endpoints.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// StartDefaults supplies run parameters when the start request omits them.
type StartDefaults struct {
	BatchSize    int
	ResumeFromID string
}

// Dependencies wires the control surface to the migration engine.
type Dependencies struct {
	Migrator  MigrationRunner
	Tracker   *migrate.Tracker
	Validator TokenValidator
	Defaults  StartDefaults
	Logger    *zap.Logger
}

// NewHTTPHandler builds the gin handler exposing the migration control
// surface: start, status and pause.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Migrator == nil {
		return nil, errMissingMigrator
	}
	if deps.Tracker == nil {
		return nil, errMissingTracker
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		migrator:  deps.Migrator,
		tracker:   deps.Tracker,
		validator: deps.Validator,
		defaults:  deps.Defaults,
		logger:    logger,
	}

	protected := router.Group("/migration")
	protected.Use(handler.authorizeRequest)
	protected.POST("/start", handler.handleStart)
	protected.GET("/status", handler.handleStatus)
	protected.POST("/pause", handler.handlePause)

	return router, nil
}

type httpHandler struct {
	migrator  MigrationRunner
	tracker   *migrate.Tracker
	validator TokenValidator
	defaults  StartDefaults
	logger    *zap.Logger

	startMu  sync.Mutex
	starting bool
}

type startRequestPayload struct {
	BatchSize    int    `json:"batch_size"`
	ResumeFromID string `json:"resume_from_id"`
}

type startResponsePayload struct {
	Message      string `json:"message"`
	BatchSize    int    `json:"batch_size"`
	ResumeFromID string `json:"resume_from_id,omitempty"`
}

func (h *httpHandler) handleStart(c *gin.Context) {
	var request startRequestPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	if request.BatchSize < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_batch_size"})
		return
	}

	batchSize := request.BatchSize
	if batchSize == 0 {
		batchSize = h.defaults.BatchSize
	}
	resumeFromID := request.ResumeFromID
	if resumeFromID == "" {
		resumeFromID = h.defaults.ResumeFromID
	}

	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.starting || h.tracker.Snapshot().Status == migrate.StatusRunning {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "migration_already_running",
			"state": h.tracker.Snapshot(),
		})
		return
	}
	h.starting = true

	go func() {
		defer func() {
			h.startMu.Lock()
			h.starting = false
			h.startMu.Unlock()
		}()
		if _, err := h.migrator.Run(context.Background(), migrate.RunOptions{
			BatchSize:    batchSize,
			ResumeFromID: resumeFromID,
		}); err != nil {
			h.logger.Error("migration run failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, startResponsePayload{
		Message:      "migration started",
		BatchSize:    batchSize,
		ResumeFromID: resumeFromID,
	})
}

type statusResponsePayload struct {
	migrate.Snapshot
	Progress string  `json:"progress"`
	ETA      *string `json:"eta"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	snapshot := h.tracker.Snapshot()
	if len(snapshot.Errors) > 10 {
		snapshot.Errors = snapshot.Errors[:10]
	}

	response := statusResponsePayload{
		Snapshot: snapshot,
		Progress: progressString(h.tracker.Progress()),
	}
	if eta, ok := h.tracker.ETA(); ok {
		response.ETA = &eta
	}

	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handlePause(c *gin.Context) {
	if h.tracker.Snapshot().Status != migrate.StatusRunning {
		c.JSON(http.StatusBadRequest, gin.H{"error": "migration_not_running"})
		return
	}
	h.tracker.Pause()
	h.logger.Info("migration pause requested", zap.String("operator", c.GetString(operatorContextKey)))
	c.JSON(http.StatusOK, gin.H{"message": "pause requested"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("operator token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorContextKey, subject)
	c.Next()
}

func progressString(percent int) string {
	return fmt.Sprintf("%d%%", percent)
}
