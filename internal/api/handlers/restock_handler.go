package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type RestockHandler struct {
	service *service.RestockService
	now     func() time.Time
}

func NewRestockHandler(service *service.RestockService) *RestockHandler {
	return &RestockHandler{service: service, now: time.Now}
}

type runRequest struct {
	Coverage *float64 `json:"coverage"`
	Date     string   `json:"date"`
}

// runDate parses a YYYY-MM-DD date, defaulting to today
func (h *RestockHandler) runDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := h.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, raw)
}

func (h *RestockHandler) GetSectors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sectors": h.service.Sectors()})
}

func (h *RestockHandler) RunSector(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
	}
	if req.Coverage != nil && *req.Coverage < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coverage must not be negative"})
		return
	}
	date, err := h.runDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date", "details": err.Error()})
		return
	}

	run, err := h.service.RunSector(c.Request.Context(), c.Param("sector"), date, req.Coverage)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress for this sector"})
	case err != nil && run != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restock run failed", "details": err.Error(), "run": run})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restock run failed", "details": err.Error()})
	default:
		c.JSON(http.StatusOK, run)
	}
}

func (h *RestockHandler) GetLatest(c *gin.Context) {
	run, err := h.service.GetLatest(c.Request.Context(), c.Param("sector"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed run for this sector"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch latest run", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RestockHandler) GetRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RestockHandler) Explain(c *gin.Context) {
	code, errCode := strconv.Atoi(c.Param("cod"))
	variant, errVar := strconv.Atoi(c.Param("var"))
	if errCode != nil || errVar != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product key"})
		return
	}
	date, err := h.runDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date", "details": err.Error()})
		return
	}
	var coverage *float64
	if raw := strings.TrimSpace(c.Query("coverage")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coverage"})
			return
		}
		coverage = &v
	}

	trace, err := h.service.Explain(c.Request.Context(), c.Param("sector"), date, coverage, domain.ProductKey{Code: code, Variant: variant})
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to explain decision", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trace)
}
