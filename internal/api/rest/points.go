package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// GET /api/v1/io/points
func (s *Server) listPoints(c *gin.Context) {
	points, err := s.lm.IOManager().Snapshot()
	if err != nil {
		s.respondError(c, "Failed to list points", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"points": points,
		"count":  len(points),
	})
}

// GET /api/v1/io/points/:id
func (s *Server) getPoint(c *gin.Context) {
	pv, err := s.lm.IOManager().Point(c.Param("id"))
	if err != nil {
		s.respondError(c, "Failed to read point", err)
		return
	}
	c.JSON(http.StatusOK, pv)
}

// GET /api/v1/io/points/:id/state
func (s *Server) getPointState(c *gin.Context) {
	st, err := s.lm.IOManager().State(c.Param("id"))
	if err != nil {
		s.respondError(c, "Failed to read point state", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// POST /api/v1/io/points/:id/set
func (s *Server) setPoint(c *gin.Context) {
	var req struct {
		State *bool `json:"state" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INVALID_ARGUMENT", "Invalid request body", err.Error()))
		return
	}

	id := c.Param("id")
	if err := s.lm.IOManager().WriteBinary(id, *req.State); err != nil {
		s.respondError(c, "Failed to set output", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"point_id": id,
		"state":    *req.State,
	})
}

// GET /api/v1/io/statistics
func (s *Server) getIOStatistics(c *gin.Context) {
	stats, err := s.lm.IOManager().Statistics()
	if err != nil {
		s.respondError(c, "Failed to read IO statistics", err)
		return
	}

	resp := gin.H{"io": stats}
	if sr := s.lm.ShiftRegisters(); sr != nil {
		resp["shift_registers"] = sr.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
