package api

import (
	"net/http"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/gin-gonic/gin"
)

func (s *Server) runDaily(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is disabled"})
		return
	}
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(types.DateLayout, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	}

	sum, err := s.deps.Jobs.RunDaily(c.Request.Context(), date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) runRetention(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is disabled"})
		return
	}
	sum, err := s.deps.Jobs.RunRetention(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
