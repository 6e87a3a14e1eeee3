package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/generator"
	"github.com/mjm/serverless-blog/internal/store"
	"github.com/mjm/serverless-blog/internal/webmention"
)

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Metrics
	s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	// Webmention endpoint, form-encoded per the protocol
	s.Router.POST("/webmention", s.handleWebmention)

	// API routes
	api := s.Router.Group("/api/v1")
	{
		api.POST("/generate", s.handleGenerate)
	}
}

type generateRequest struct {
	TenantID string `json:"tenantId"`
	generator.GenerateOptions
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId is required"})
		return
	}

	cfg, err := s.Store.GetSiteConfig(c.Request.Context(), req.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown site"})
			return
		}
		s.Logger.Error("Failed to load site config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load site config"})
		return
	}

	jobs, err := s.Planner.PlanRequests(c.Request.Context(), cfg, req.GenerateOptions)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, generator.ErrBadSelection) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.Logger.Error("Failed to plan generation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to plan generation"})
		return
	}

	if err := s.Dispatcher.Dispatch(c.Request.Context(), jobs); err != nil {
		s.Logger.Error("Failed to dispatch generation jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue generation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Your website was queued for regeneration.",
		"jobs":    len(jobs),
	})
}

func (s *Server) handleWebmention(c *gin.Context) {
	source := c.PostForm("source")
	target := c.PostForm("target")

	err := s.Receiver.Enqueue(c.Request.Context(), source, target)
	if err != nil {
		if errors.Is(err, webmention.ErrBadRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.Logger.Error("Failed to enqueue webmention", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept webmention"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Webmention accepted for processing."})
}
