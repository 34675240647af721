package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ntropiq/pkg/ntropiqtypes"
)

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

type insightsRequest struct {
	Query string `json:"query" binding:"required"`
}

type analyzeRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language"`
}

func (s *Server) callContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.timeout)
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required and must be a string"})
		return
	}
	if s.collab.Reply == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		return
	}

	ctx, cancel := s.callContext(c)
	defer cancel()
	result := s.collab.Reply.GenerateReply(ctx, req.Message)
	if !result.OK() {
		s.logger.Error("Chat API error", "error", result.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": result.Text})
}

func (s *Server) insights(c *gin.Context) {
	var req insightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required and must be a string"})
		return
	}
	if s.collab.Insights == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insights"})
		return
	}

	ctx, cancel := s.callContext(c)
	defer cancel()
	result := s.collab.Insights.GenerateInsights(ctx, req.Query)
	if !result.OK() {
		s.logger.Error("Notebook insights API error", "error", result.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insights"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": result.Text, "timestamp": s.timestamp()})
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required and must be a string"})
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}
	if s.collab.Analyzer == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze code"})
		return
	}

	ctx, cancel := s.callContext(c)
	defer cancel()
	result := s.collab.Analyzer.AnalyzeCode(ctx, req.Code, req.Language)
	if !result.OK() {
		s.logger.Error("Code analysis API error", "error", result.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": result.Text, "language": req.Language, "timestamp": s.timestamp()})
}

func (s *Server) tts(c *gin.Context) {
	if s.collab.Speech == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Missing ELEVENLABS_API_KEY"})
		return
	}
	var req ntropiqtypes.SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}

	ctx, cancel := s.callContext(c)
	defer cancel()
	result := s.collab.Speech.Synthesize(ctx, req)
	if !result.OK() {
		switch {
		case result.Err != nil && result.Err.Kind == ntropiqtypes.ErrUnconfigured:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Missing ELEVENLABS_API_KEY"})
		case result.Err != nil && result.Err.Kind == ntropiqtypes.ErrInvalid:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		default:
			details := "no audio returned"
			if result.Err != nil {
				details = result.Err.Message
			}
			s.logger.Error("TTS API error", "error", details)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "TTS request failed", "details": details})
		}
		return
	}

	c.Header("Content-Disposition", `inline; filename="tts.mp3"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "audio/mpeg", result.Audio)
}
