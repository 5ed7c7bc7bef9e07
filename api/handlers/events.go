package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/OldStager01/elastic-orchestrator/pkg/database/queries"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/gin-gonic/gin"
)

// RecentEvents is the in-memory history kept by the event logger.
type RecentEvents interface {
	Recent(limit int, service string) []*models.Event
}

// EventHistory is the persisted history. queries.EventRepository
// implements it.
type EventHistory interface {
	GetRecent(ctx context.Context, service string, limit int) ([]*models.Event, error)
	GetPolicyEvents(ctx context.Context, opstring, element string, limit int) ([]queries.PolicyEventRecord, error)
	CountActions(ctx context.Context, opstring, element string, since time.Time) (map[string]int, error)
}

type EventsHandler struct {
	recent  RecentEvents
	history EventHistory
	config  *config.APIConfig
}

// NewEventsHandler serves from history when it is set and falls back to
// the in-memory log otherwise.
func NewEventsHandler(recent RecentEvents, history EventHistory, cfg *config.APIConfig) *EventsHandler {
	return &EventsHandler{recent: recent, history: history, config: cfg}
}

func (h *EventsHandler) Recent(c *gin.Context) {
	limit := parseLimit(c, h.config)
	service := c.Query("service")

	if h.history != nil && c.Query("source") != "memory" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		evts, err := h.history.GetRecent(ctx, service, limit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
			return
		}
		if evts == nil {
			evts = []*models.Event{}
		}
		c.JSON(http.StatusOK, gin.H{"events": evts, "count": len(evts)})
		return
	}

	var evts []*models.Event
	if h.recent != nil {
		evts = h.recent.Recent(limit, service)
	}
	if evts == nil {
		evts = []*models.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evts, "count": len(evts)})
}

// PolicyEvents lists persisted policy actions for one element with a
// per-action tally over the requested range ("1h", "24h", "7d").
func (h *EventsHandler) PolicyEvents(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "event persistence is disabled"})
		return
	}

	opstring, element := c.Param("opstring"), c.Param("element")
	since := time.Now().Add(-parseRange(c.Query("range")))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, err := h.history.GetPolicyEvents(ctx, opstring, element, parseLimit(c, h.config))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load policy events"})
		return
	}
	counts, err := h.history.CountActions(ctx, opstring, element, since)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count policy events"})
		return
	}
	if records == nil {
		records = []queries.PolicyEventRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"service": models.ElementKey(opstring, element),
		"events":  records,
		"counts":  counts,
		"since":   since.UTC().Format(time.RFC3339),
	})
}

func parseRange(s string) time.Duration {
	if len(s) < 2 {
		return time.Hour
	}
	if s[len(s)-1] == 'd' {
		if d, err := time.ParseDuration(s[:len(s)-1] + "h"); err == nil && d > 0 {
			return d * 24
		}
		return time.Hour
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return time.Hour
}
