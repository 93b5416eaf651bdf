package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"devfest/internal/camera"
)

const sseKeepAlive = 15 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"camera_backend": s.config.Camera.Backend,
		"cameras":        len(s.deps.Cameras.Known()),
		"scanners":       s.deps.Cameras.Sessions(),
		"remote_api":     s.deps.Rewards != nil,
		"timestamp":      time.Now().UTC(),
	})
}

func (s *Server) handleCameras(c *gin.Context) {
	devices, preferred, err := s.deps.Cameras.Devices(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":         devices,
		"preferred_index": preferred,
	})
}

type startRequest struct {
	PreferredIndex *int `json:"preferred_index"`
}

func (s *Server) handleScannerStart(c *gin.Context) {
	var req startRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
	}

	snapshot, err := s.deps.Cameras.StartSession(c.Request.Context(), c.Param("id"), req.PreferredIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleScannerSwitch(c *gin.Context) {
	snapshot, err := s.deps.Cameras.SwitchSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleScannerStop(c *gin.Context) {
	if err := s.deps.Cameras.StopSession(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleScannerSnapshot(c *gin.Context) {
	id := c.Param("id")
	snapshot, ok := s.deps.Cameras.Snapshot(id)
	if !ok {
		writeError(c, fmt.Errorf("%w: %s", camera.ErrSessionNotFound, id))
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// handleScannerEvents streams "scan" and "error" events of one scanner until the client leaves.
// Subscribing does not require the scanner to be started yet.
func (s *Server) handleScannerEvents(c *gin.Context) {
	id := c.Param("id")
	sub := s.deps.Hub.Subscribe(id)
	defer s.deps.Hub.Unsubscribe(id, sub)

	setSSEHeaders(c)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().UTC())
			return true
		}
	})
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}
