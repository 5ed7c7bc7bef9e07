package handlers

import (
	"io"
	"net/http"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/internal/opstring"
	"github.com/gin-gonic/gin"
)

type OpStringHandler struct {
	orch     Orchestrator
	defaults opstring.Defaults
}

func NewOpStringHandler(orch Orchestrator, defaults opstring.Defaults) *OpStringHandler {
	return &OpStringHandler{orch: orch, defaults: defaults}
}

type OpStringSummary struct {
	Name     string   `json:"name"`
	Services []string `json:"services"`
	Nested   []string `json:"nested,omitempty"`
}

func (h *OpStringHandler) List(c *gin.Context) {
	all := h.orch.OperationalStrings()
	out := make([]OpStringSummary, 0, len(all))
	for _, ops := range all {
		s := OpStringSummary{Name: ops.Name, Services: []string{}}
		for _, elem := range ops.AllElements() {
			s.Services = append(s.Services, elem.Key())
		}
		for _, nested := range ops.Nested {
			s.Nested = append(s.Nested, nested.Name)
		}
		out = append(out, s)
	}
	c.JSON(http.StatusOK, gin.H{"opstrings": out, "count": len(out)})
}

func (h *OpStringHandler) Get(c *gin.Context) {
	ops, err := h.orch.OperationalString(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "yaml" {
		data, err := opstring.Marshal(ops)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml", data)
		return
	}
	c.JSON(http.StatusOK, ops)
}

// Deploy accepts a YAML descriptor as the request body.
func (h *OpStringHandler) Deploy(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	ops, err := opstring.ParseWithDefaults(body, h.defaults)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.orch.Deploy(c.Request.Context(), ops); err != nil {
		respondError(c, err)
		return
	}

	logger.WithField("opstring", ops.Name).Info("Operational string deployed via API")
	c.JSON(http.StatusCreated, ops)
}

func (h *OpStringHandler) Undeploy(c *gin.Context) {
	name := c.Param("name")
	if err := h.orch.Undeploy(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	logger.WithField("opstring", name).Info("Operational string undeployed via API")
	c.Status(http.StatusNoContent)
}
