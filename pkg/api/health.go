package api

import (
	"net/http"

	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// health is the liveness check. Only a failing critical component turns
// it to 503; degraded components still answer 200.
func (s *Server) health(c *gin.Context) {
	h := metrics.GetHealth()
	status := http.StatusOK
	if h.Status == metrics.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

// ready reports whether every critical component is up
func (s *Server) ready(c *gin.Context) {
	r := metrics.GetReadiness()
	status := http.StatusOK
	if r.Status != metrics.StatusReady {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, r)
}

func (s *Server) metrics(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
