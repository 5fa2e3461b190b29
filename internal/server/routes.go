package server

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/engine"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/sink"
	"github.com/danmuck/continuityctl/internal/transport"
)

// AdvertiseRequest is the POST /advertise body.
type AdvertiseRequest struct {
	Family   string            `json:"family"`
	Params   map[string]string `json:"params"`
	Duration string            `json:"duration"`
}

type AdvertiseResponse struct {
	ID       string             `json:"id"`
	Address  continuity.Address `json:"address"`
	Interval string             `json:"interval"`
	Payload  string             `json:"payload"`
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": s.ready.Load()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.engine.Sessions()})
	})

	r.GET("/events", func(c *gin.Context) {
		events := []sink.Document{}
		if s.ring != nil {
			events = s.ring.Recent()
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	r.POST("/advertise", s.handleAdvertise)

	r.DELETE("/advertise/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := s.engine.StopAdvertise(c.Request.Context(), id); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "id": id})
	})

	r.POST("/identity/rotate", func(c *gin.Context) {
		if s.ids == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity manager not configured"})
			return
		}
		id, err := s.ids.Rotate()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "address": id.Address})
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": id.Address, "rotated": id.Rotated})
	})
}

func (s *Server) handleAdvertise(c *gin.Context) {
	var body AdvertiseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var duration time.Duration
	if strings.TrimSpace(body.Duration) != "" {
		d, err := time.ParseDuration(body.Duration)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration " + body.Duration})
			return
		}
		duration = d
	}

	var src messages.DigestSource
	if s.ids != nil {
		src = s.ids
	}
	req, err := messages.BuildRequest(body.Family, body.Params, src)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	sess, err := s.engine.Advertise(s.sessions, engine.AdvertiseOptions{
		Messages: []continuity.Message{req.Message},
		Address:  req.Address,
		Duration: duration,
	})
	if err != nil {
		logs.Warnf("server.advertise family=%s err=%v", body.Family, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, AdvertiseResponse{
		ID:       sess.ID(),
		Address:  sess.Address(),
		Interval: sess.Interval().String(),
		Payload:  hex.EncodeToString(sess.Payload()),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, messages.ErrUnknownFamily),
		errors.Is(err, messages.ErrInvalidParam),
		errors.Is(err, engine.ErrEmptyAdvertisement):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrEngineClosed), transport.IsTransportError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
