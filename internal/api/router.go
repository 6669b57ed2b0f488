// Package api exposes the operational read surface: run summary, recent
// alerts, station states, and a live websocket alert feed.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"store-sentinel/internal/config"
	"store-sentinel/internal/engine"
)

type Handler struct {
	engine *engine.Engine
	logger *logrus.Logger
	feed   *Feed
}

// NewRouter builds the gin router. The returned Feed is already subscribed
// to the engine's alert stream.
func NewRouter(eng *engine.Engine, logger *logrus.Logger, cfg config.Config) (*gin.Engine, *Feed) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogging(logger))

	feed := NewFeed(logger)
	eng.OnAlert(feed.Broadcast)
	h := &Handler{engine: eng, logger: logger, feed: feed}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/alerts", h.StreamAlerts)

	api := r.Group(cfg.API.BasePath)
	{
		api.GET("/summary", h.GetSummary)
		api.GET("/alerts", h.GetAlerts)
		api.GET("/stations", h.GetStations)
		api.GET("/stations/:id", h.GetStation)
	}
	return r, feed
}

func (h *Handler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Summary())
}

func (h *Handler) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Recent())
}

func (h *Handler) GetStations(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stations())
}

func (h *Handler) GetStation(c *gin.Context) {
	id := c.Param("id")
	for _, st := range h.engine.Stations() {
		if st.StationID == id {
			c.JSON(http.StatusOK, st)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
}

func (h *Handler) StreamAlerts(c *gin.Context) {
	h.feed.Serve(c.Writer, c.Request)
}

func requestLogging(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debugf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}
