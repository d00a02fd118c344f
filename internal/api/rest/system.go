package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/system/reload
func (s *Server) reloadConfig(c *gin.Context) {
	if err := s.lm.Reload(); err != nil {
		s.respondError(c, "Failed to reload IO configuration", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "IO configuration reloaded",
		"status":  s.lm.GetCurrentStatus(),
	})
}
