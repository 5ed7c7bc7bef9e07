package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/gin-gonic/gin"
)

type ServiceHandler struct {
	orch           Orchestrator
	requestTimeout time.Duration
}

func NewServiceHandler(orch Orchestrator, requestTimeout time.Duration) *ServiceHandler {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &ServiceHandler{orch: orch, requestTimeout: requestTimeout}
}

func (h *ServiceHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

func (h *ServiceHandler) Get(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	status, err := h.orch.Service(ctx, c.Param("opstring"), c.Param("element"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SLARequest uses duration strings ("30s") for the dampening times.
type SLARequest struct {
	ID             string  `json:"id" binding:"required"`
	Low            float64 `json:"low"`
	High           float64 `json:"high"`
	Step           float64 `json:"step"`
	Min            *int    `json:"min"`
	Max            *int    `json:"max"`
	UpperDampening string  `json:"upper_dampening"`
	LowerDampening string  `json:"lower_dampening"`
}

func (r SLARequest) toModel(current models.SLA, exists bool) (models.SLA, error) {
	sla := models.SLA{
		ID:            r.ID,
		LowThreshold:  r.Low,
		HighThreshold: r.High,
		Step:          r.Step,
		MinServices:   1,
		MaxServices:   models.UndefinedServices,
	}
	if exists {
		sla.MinServices = current.MinServices
		sla.MaxServices = current.MaxServices
		sla.UpperThresholdDampeningTime = current.UpperThresholdDampeningTime
		sla.LowerThresholdDampeningTime = current.LowerThresholdDampeningTime
	}
	if r.Min != nil {
		sla.MinServices = *r.Min
	}
	if r.Max != nil {
		sla.MaxServices = *r.Max
	}

	var err error
	if r.UpperDampening != "" {
		if sla.UpperThresholdDampeningTime, err = time.ParseDuration(r.UpperDampening); err != nil {
			return models.SLA{}, fmt.Errorf("%w: upper_dampening: %v", models.ErrInvalidSLA, err)
		}
	}
	if r.LowerDampening != "" {
		if sla.LowerThresholdDampeningTime, err = time.ParseDuration(r.LowerDampening); err != nil {
			return models.SLA{}, fmt.Errorf("%w: lower_dampening: %v", models.ErrInvalidSLA, err)
		}
	}
	return sla, nil
}

// UpdateSLA replaces or adds one SLA. Handlers attached to the element
// apply it without restarting.
func (h *ServiceHandler) UpdateSLA(c *gin.Context) {
	var req SLARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	opstring, element := c.Param("opstring"), c.Param("element")
	status, err := h.orch.Service(ctx, opstring, element)
	if err != nil {
		respondError(c, err)
		return
	}
	current, exists := status.Element.SLA(req.ID)

	sla, err := req.toModel(current, exists)
	if err != nil {
		respondError(c, err)
		return
	}

	elem, err := h.orch.UpdateSLA(opstring, element, sla)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithPolicy(opstring, element, sla.ID).Info("SLA updated via API")
	c.JSON(http.StatusOK, elem)
}

type PlannedRequest struct {
	Planned *int `json:"planned" binding:"required"`
}

func (h *ServiceHandler) SetPlanned(c *gin.Context) {
	var req PlannedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	opstring, element := c.Param("opstring"), c.Param("element")
	if err := h.orch.SetPlanned(ctx, opstring, element, *req.Planned); err != nil {
		respondError(c, err)
		return
	}

	status, err := h.orch.Service(ctx, opstring, element)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithService(opstring, element).Infof("Planned set to %d via API", *req.Planned)
	c.JSON(http.StatusOK, status)
}
