package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ntropiq/internal/store"
)

func listHandler[T store.Record](s *Server, col *store.Collection[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			records []T
			err     error
		)
		if c.Query("bookmarked") == "true" {
			records, err = col.Bookmarked(c.Request.Context())
		} else {
			records, err = col.Recent(c.Request.Context())
		}
		if err != nil {
			s.logger.Error("Failed to list sessions", "route", c.FullPath(), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}
		if records == nil {
			records = []T{}
		}
		c.JSON(http.StatusOK, records)
	}
}

func getHandler[T store.Record](s *Server, col *store.Collection[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := col.Load(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			s.logger.Error("Failed to load session", "session", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func deleteHandler[T store.Record](s *Server, col *store.Collection[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		err := col.Delete(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			s.logger.Error("Failed to delete session", "session", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
			return
		}
		s.logger.Info("Deleted session", "session", id)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}
