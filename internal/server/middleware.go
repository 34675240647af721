package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// observe records metrics and a debug log line for every request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.clock.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := s.clock.Now().Sub(start)
		status := c.Writer.Status()
		s.metrics.ObserveRequest(route, c.Request.Method, status, elapsed)
		s.logger.Debug("Request handled", "route", route, "method", c.Request.Method,
			"status", status, "elapsed", elapsed.String())
	}
}

// rateLimit rejects requests beyond the configured rate with 429.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.ObserveRateLimited()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
