// Package api serves a local web bridge onto the chat session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"guidechat/internal/conversation"
	"guidechat/internal/models"
	"guidechat/internal/render"
	"guidechat/internal/storage"
)

// Session is the conversation the bridge drives.
type Session interface {
	Submit(ctx context.Context, question string) error
	QuickAsk(ctx context.Context, question string) error
	State() *conversation.State
}

// RefreshFunc evaluates backend health, applies it and returns it.
type RefreshFunc func(ctx context.Context) (models.SystemStatus, error)

// EventSource is satisfied by render.Broadcaster.
type EventSource interface {
	Subscribe() (<-chan render.Event, func())
}

// StatsSource is satisfied by storage.TurnStore.
type StatsSource interface {
	Summary(ctx context.Context) ([]storage.OutcomeSummary, error)
	Recent(ctx context.Context, limit int) ([]storage.TurnRecord, error)
}

type HandlerConfig struct {
	QuickAsks     []string
	PreviewLength int
	// KeepAlive is the interval of SSE comment pings. Zero uses 15s.
	KeepAlive time.Duration
}

// Handler wires HTTP routes to the conversation controller.
type Handler struct {
	session Session
	refresh RefreshFunc
	events  EventSource
	stats   StatsSource
	cfg     HandlerConfig
	logger  zerolog.Logger
}

// NewHandler constructs a Handler instance. stats may be nil when the
// journal is disabled.
func NewHandler(session Session, refresh RefreshFunc, events EventSource, stats StatsSource, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	return &Handler{
		session: session,
		refresh: refresh,
		events:  events,
		stats:   stats,
		cfg:     cfg,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/session")
	api.GET("/status", h.getStatus)
	api.GET("/messages", h.getMessages)
	api.GET("/stats", h.getStats)
	api.POST("/ask", h.ask)
	api.POST("/quick-ask", h.quickAsk)
	api.POST("/refresh", h.refreshStatus)
	api.GET("/events", h.streamEvents)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type statusResponse struct {
	render.StatusPayload
	Known      bool                    `json:"known"`
	TurnStatus conversation.TurnStatus `json:"turn_status"`
	QuickAsks  []string                `json:"quick_asks"`
}

func (h *Handler) statusBody() statusResponse {
	state := h.session.State()
	status, known := state.Status()
	quickAsks := h.cfg.QuickAsks
	if quickAsks == nil {
		quickAsks = []string{}
	}
	return statusResponse{
		StatusPayload: render.NewStatusPayload(status),
		Known:         known,
		TurnStatus:    state.TurnStatus(),
		QuickAsks:     quickAsks,
	}
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusBody())
}

func (h *Handler) getMessages(c *gin.Context) {
	snap := h.session.State().Snapshot()
	messages := make([]render.MessagePayload, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		messages = append(messages, render.NewMessagePayload(msg, h.cfg.PreviewLength))
	}
	body := gin.H{
		"messages":    messages,
		"turn_status": snap.TurnStatus,
	}
	if snap.CurrentTurn != nil {
		body["current_turn"] = render.NewTurnPayload(*snap.CurrentTurn)
	}
	c.JSON(http.StatusOK, body)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}
	if !h.acceptable(c) {
		return
	}
	if err := h.session.Submit(c.Request.Context(), question); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type quickAskRequest struct {
	Index    *int   `json:"index"`
	Question string `json:"question"`
}

// quickAsk accepts a configured question by zero-based index, or free text.
func (h *Handler) quickAsk(c *gin.Context) {
	var req quickAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if req.Index != nil {
		i := *req.Index
		if i < 0 || i >= len(h.cfg.QuickAsks) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown quick ask"})
			return
		}
		question = h.cfg.QuickAsks[i]
	}
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}
	if !h.acceptable(c) {
		return
	}
	if err := h.session.QuickAsk(c.Request.Context(), question); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "question": question})
}

// acceptable reports, and answers with an error when false, whether a new
// question would currently be taken. The controller still has the final say.
func (h *Handler) acceptable(c *gin.Context) bool {
	state := h.session.State()
	if !state.BackendReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend not ready"})
		return false
	}
	if state.TurnStatus() != conversation.StatusIdle {
		c.JSON(http.StatusConflict, gin.H{"error": "a question is already pending"})
		return false
	}
	return true
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, conversation.ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session stopped"})
		return
	}
	h.logger.Warn().Err(err).Msg("session call failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) refreshStatus(c *gin.Context) {
	if h.refresh == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "refresh not available"})
		return
	}
	if _, err := h.refresh(c.Request.Context()); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.statusBody())
}

func (h *Handler) getStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	ctx := c.Request.Context()
	summary, err := h.stats.Summary(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("load turn summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	recent, err := h.stats.Recent(ctx, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("load recent turns")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	if summary == nil {
		summary = []storage.OutcomeSummary{}
	}
	if recent == nil {
		recent = []storage.TurnRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "recent": recent})
}

func (h *Handler) streamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	events, cancel := h.events.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// current status first so a new page can gate its input
	if err := sendEvent(render.EventStatus, h.statusBody()); err != nil {
		return
	}

	ticker := time.NewTicker(h.cfg.KeepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sendEvent(ev.Name, ev.Data); err != nil {
				h.logger.Debug().Err(err).Msg("event stream closed")
				return
			}
		}
	}
}
