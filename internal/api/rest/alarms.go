package rest

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// GET /api/v1/alarms
func (s *Server) listAlarms(c *gin.Context) {
	all, err := s.lm.AlarmEngine().AllAlarms()
	if err != nil {
		s.respondError(c, "Failed to list alarms", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"points": all,
		"count":  len(all),
	})
}

// GET /api/v1/alarms/statistics
func (s *Server) getAlarmStatistics(c *gin.Context) {
	stats, err := s.lm.AlarmEngine().Statistics()
	if err != nil {
		s.respondError(c, "Failed to read alarm statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/v1/alarms/:id
func (s *Server) getPointAlarms(c *gin.Context) {
	pa, err := s.lm.AlarmEngine().Alarms(c.Param("id"))
	if err != nil {
		s.respondError(c, "Failed to read alarms", err)
		return
	}
	c.JSON(http.StatusOK, pa)
}

// GET /api/v1/alarms/:id/:type
func (s *Server) getAlarm(c *gin.Context) {
	t, err := alarm.ParseType(c.Param("type"))
	if err != nil {
		s.respondError(c, "Invalid alarm type", err)
		return
	}

	pa, err := s.lm.AlarmEngine().Alarms(c.Param("id"))
	if err != nil {
		s.respondError(c, "Failed to read alarm", err)
		return
	}

	for _, st := range pa.Alarms {
		if st.Type == t {
			c.JSON(http.StatusOK, st)
			return
		}
	}
	s.respondError(c, "Failed to read alarm",
		fmt.Errorf("alarm %s on %s: %w", t, pa.PointID, types.ErrNotFound))
}

// POST /api/v1/alarms/:id/:type/ack
func (s *Server) acknowledgeAlarm(c *gin.Context) {
	t, err := alarm.ParseType(c.Param("type"))
	if err != nil {
		s.respondError(c, "Invalid alarm type", err)
		return
	}

	id := c.Param("id")
	if err := s.lm.AlarmEngine().Acknowledge(id, t); err != nil {
		s.respondError(c, "Failed to acknowledge alarm", err)
		return
	}

	active, err := s.lm.AlarmEngine().Status(id, t)
	if err != nil {
		s.respondError(c, "Failed to read alarm", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"point_id":     id,
		"type":         t,
		"acknowledged": true,
		"active":       active,
	})
}
