package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/config"
	"stock-analyzer/internal/dto"
	"stock-analyzer/internal/pipeline"
	"stock-analyzer/internal/runs"
)

// notesBuffer is how many unread note lines a stream may hold
const notesBuffer = 64

type RunsHandler struct {
	registry *runs.Registry
	upgrader websocket.Upgrader
	ws       config.WebSocketConfig
	logger   *logrus.Logger
}

func NewRunsHandler(registry *runs.Registry, ws config.WebSocketConfig, logger *logrus.Logger) *RunsHandler {
	if ws.PingInterval <= 0 {
		ws.PingInterval = 30 * time.Second
	}
	if ws.WriteTimeout <= 0 {
		ws.WriteTimeout = 10 * time.Second
	}
	return &RunsHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  ws.ReadBufferSize,
			WriteBufferSize: ws.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ws:     ws,
		logger: logger,
	}
}

// Start launches an asynchronous run
func (h *RunsHandler) Start(c *gin.Context) {
	var req dto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	run, err := h.registry.Start(pipeline.Request{
		Tickers:        req.Tickers,
		MaxConcurrency: req.MaxConcurrency,
	})
	switch {
	case errors.Is(err, runs.ErrTooManyRuns):
		respondError(c, http.StatusTooManyRequests, "too many active runs", err)
		return
	case errors.Is(err, runs.ErrShuttingDown):
		respondError(c, http.StatusServiceUnavailable, "server is shutting down", err)
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "failed to start run", err)
		return
	}

	c.JSON(http.StatusAccepted, dto.StartRunResponse{
		RunID:     run.ID,
		Status:    run.Status(),
		CreatedAt: run.CreatedAt,
	})
}

// Get returns the state of a run
func (h *RunsHandler) Get(c *gin.Context) {
	run, ok := h.registry.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "run not found", nil)
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

// Cancel requests cancellation of a run. Repeating it is harmless.
func (h *RunsHandler) Cancel(c *gin.Context) {
	run, ok := h.registry.Cancel(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "run not found", nil)
		return
	}

	c.JSON(http.StatusAccepted, toRunResponse(run))
}

// StreamNotes sends every note of a run as a text frame, then closes the
// socket with the run status once the run ends. A "cancel" frame from the
// client cancels the run.
func (h *RunsHandler) StreamNotes(c *gin.Context) {
	run, ok := h.registry.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "run not found", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	backlog, lines, unsubscribe := run.Recorder().Subscribe(notesBuffer)
	defer unsubscribe()

	pongWait := 2 * h.ws.PingInterval
	readerDone := make(chan struct{})

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(readerDone)
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(data)), "cancel") {
				run.Cancel()
			}
		}
	}()

	write := func(messageType int, data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.ws.WriteTimeout))
		return conn.WriteMessage(messageType, data)
	}

	for _, line := range backlog {
		if err := write(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	ping := time.NewTicker(h.ws.PingInterval)
	defer ping.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, run.Status()))
				return
			}
			if err := write(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}
