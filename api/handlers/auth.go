package handlers

import (
	"net/http"

	"github.com/OldStager01/elastic-orchestrator/internal/auth"
	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/validation"
	"github.com/gin-gonic/gin"
)

const operatorRole = "operator"

type AuthHandler struct {
	credentials auth.Credentials
	authService *auth.Service
}

func NewAuthHandler(credentials auth.Credentials, authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		authService: authService,
	}
}

type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	Username  string `json:"username"`
}

func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req.Username = validation.SanitizeString(req.Username)
	if err := validation.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.credentials.Verify(req.Username, req.Password); err != nil {
		logger.WithField("username", req.Username).Warn("Rejected token request")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(req.Username, operatorRole)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresIn: int(h.authService.Duration().Seconds()),
		Username:  req.Username,
	})
}
