// Package http exposes the local read-only view of the room: roster,
// chat history and stream states, plus the publish and chat triggers.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rmendes/huddle/internal/app/orch"
	"github.com/rmendes/huddle/internal/config"
)

func SetupRouter(cfg *config.Config, mgr *orch.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("group", cfg.Group).Msg("router setup")

	api := r.Group("/api")

	api.GET("/participants", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"participants": mgr.Room.Participants(),
			"count":        mgr.Room.ParticipantCount(),
		})
	})

	api.GET("/messages", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"messages": mgr.Room.Messages()})
	})

	api.GET("/streams", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"streams": mgr.Streams()})
	})

	api.POST("/messages", func(c *gin.Context) {
		var body struct {
			Value string `json:"value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		mgr.SendChat(body.Value)
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
	})

	api.POST("/publish", func(c *gin.Context) {
		mgr.Publish()
		c.JSON(http.StatusAccepted, gin.H{"status": "publishing"})
	})

	api.POST("/unpublish", func(c *gin.Context) {
		mgr.Unpublish()
		c.JSON(http.StatusAccepted, gin.H{"status": "stopped"})
	})

	return r
}
