package api

import (
	"strconv"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/audit"
	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderRequestID carries the request id in both directions
	HeaderRequestID = "X-Request-Id"
	// HeaderActorID names the user on whose behalf a request is made
	HeaderActorID = "X-Actor-Id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// accessLog writes one zerolog event per request and records API metrics
func accessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		reqLog := log.WithRequestID(logger, c.GetString("request_id"))
		ev := reqLog.Debug()
		if status >= 500 {
			ev = reqLog.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("Request handled")
	}
}

// auditContext puts the actor and client info into the request context
// so audit entries written by handlers carry them
func auditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClientInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		if actor := c.GetHeader(HeaderActorID); actor != "" {
			ctx = audit.WithActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
