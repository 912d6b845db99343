package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/catd/pkg/server"
	"github.com/dougsko/catd/pkg/storage"
)

// handleGetStatus returns the daemon status
func (d *CatDaemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, d.Status())
}

// handleGetModels returns every known model, sorted by number
func (d *CatDaemon) handleGetModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":   d.catalog.Models(),
		"selected": d.model,
	})
}

// handleGetCapabilities returns the capability report of one model, the
// running one unless ?model= names another
func (d *CatDaemon) handleGetCapabilities(c *gin.Context) {
	model := c.DefaultQuery("model", d.model)

	caps, err := d.catalog.Capabilities(model)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, caps)
}

// handleCommand executes one protocol line as if a TCP client had sent it
func (d *CatDaemon) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	line := strings.TrimRight(req.Command, "\r\n")
	start := time.Now()
	response := d.server.Execute(line)
	elapsed := time.Since(start)

	c.JSON(http.StatusOK, gin.H{
		"command":  line,
		"response": response,
		"code":     storage.ResponseCode(response),
	})
	c.Writer.Flush()

	d.handleEvent(server.Event{
		Kind:     server.EventCommand,
		Time:     start,
		Remote:   c.ClientIP(),
		Request:  line,
		Response: response,
		Duration: elapsed,
	})
}

// handleGetExchanges returns journaled exchanges, newest first
func (d *CatDaemon) handleGetExchanges(c *gin.Context) {
	if d.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "exchange journal is disabled",
		})
		return
	}

	query := storage.ExchangeQuery{Limit: 100}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		query.Offset = offset
	}
	if client, err := strconv.Atoi(c.Query("client")); err == nil && client > 0 {
		query.Client = client
	}
	if failures, err := strconv.ParseBool(c.Query("failures")); err == nil {
		query.FailuresOnly = failures
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid since time, expected RFC3339",
			})
			return
		}
		query.Since = &t
	}

	exchanges, err := d.journal.GetExchanges(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exchanges": exchanges,
		"count":     len(exchanges),
	})
}

// handleGetStats returns journal statistics
func (d *CatDaemon) handleGetStats(c *gin.Context) {
	if d.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "exchange journal is disabled",
		})
		return
	}

	stats, err := d.journal.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleEvents streams session events over a WebSocket
func (d *CatDaemon) handleEvents(c *gin.Context) {
	d.events.Serve(c.Writer, c.Request)
}
