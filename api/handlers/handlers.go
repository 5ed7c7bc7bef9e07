package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/OldStager01/elastic-orchestrator/internal/opstring"
	"github.com/OldStager01/elastic-orchestrator/internal/orchestrator"
	"github.com/OldStager01/elastic-orchestrator/internal/provision"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/OldStager01/elastic-orchestrator/pkg/validation"
	"github.com/gin-gonic/gin"
)

// Orchestrator is the part of the orchestrator the API drives.
type Orchestrator interface {
	Deploy(ctx context.Context, ops *models.OperationalString) error
	Undeploy(ctx context.Context, name string) error
	SetPlanned(ctx context.Context, opstring, name string, planned int) error
	UpdateSLA(opstring, name string, sla models.SLA) (models.ServiceElement, error)
	OperationalStrings() []*models.OperationalString
	OperationalString(name string) (*models.OperationalString, error)
	Service(ctx context.Context, opstring, name string) (*orchestrator.ServiceStatus, error)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, provision.ErrUnknownOpString),
		errors.Is(err, provision.ErrUnknownElement),
		errors.Is(err, provision.ErrUnknownInstance):
		return http.StatusNotFound
	case errors.Is(err, provision.ErrOpStringExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidSLA),
		errors.Is(err, models.ErrInvalidServiceElement),
		errors.Is(err, opstring.ErrInvalidDescriptor),
		errors.Is(err, validation.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrStopped),
		errors.Is(err, provision.ErrManagerDecommissioned):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": message})
}

func parseLimit(c *gin.Context, cfg *config.APIConfig) int {
	defaultLimit, maxLimit := 50, 500
	if cfg != nil && cfg.DefaultLimit > 0 {
		defaultLimit = cfg.DefaultLimit
	}
	if cfg != nil && cfg.MaxLimit > 0 {
		maxLimit = cfg.MaxLimit
	}

	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
