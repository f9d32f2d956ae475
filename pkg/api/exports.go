package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/delivery"
	"github.com/cleanidoc/cleandoc/pkg/export"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// triggerRequest is the body of POST /v1/tenants/:tenantID/exports
type triggerRequest struct {
	ReportDate       string   `json:"report_date" binding:"required"`
	IncludePDF       *bool    `json:"include_pdf"`
	IncludeCSV       *bool    `json:"include_csv"`
	DeliveryChannels []string `json:"delivery_channels"`
	SkipDelivery     bool     `json:"skip_delivery"`
}

func (s *Server) triggerExport(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := export.Options{
		IncludePDF:   req.IncludePDF,
		IncludeCSV:   req.IncludeCSV,
		SkipDelivery: req.SkipDelivery,
	}
	for _, name := range req.DeliveryChannels {
		ch, err := delivery.ParseChannel(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.DeliveryChannels = append(opts.DeliveryChannels, ch)
	}

	res, err := s.deps.Exporter.GenerateDailyExport(c.Request.Context(), c.Param("tenantID"), req.ReportDate, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return min(n, maxListLimit), nil
}

func (s *Server) listExports(c *gin.Context) {
	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := s.deps.Exports.ListExports(c.Request.Context(), c.Param("tenantID"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if recs == nil {
		recs = []*types.ExportRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"exports": recs})
}

// exportStatus answers whether the export of a tenant and date is running
// and returns its record when one exists
func (s *Server) exportStatus(c *gin.Context) {
	st, err := s.deps.Exporter.Status(c.Request.Context(), c.Param("tenantID"), c.Param("reportDate"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getExport(c *gin.Context) {
	rec, err := s.deps.Exports.GetExport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type linksRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

func (s *Server) issueLinks(c *gin.Context) {
	var req linksRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.TTLSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ttl_seconds must not be negative"})
		return
	}

	links, err := s.deps.Exporter.IssueLinks(c.Request.Context(), c.Param("id"), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"export_id": c.Param("id"), "links": links})
}
