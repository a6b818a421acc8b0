package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/internal/auth"
	"github.com/tdnguyen-dev/healthvoice/internal/gateway"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *gateway.Hub, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "healthvoice-gateway",
		})
	})

	// Prometheus metrics
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Profile token issuance
	v1.POST("/auth/token", func(c echo.Context) error {
		return issueProfileToken(c, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, logger)
	})
}

// issueProfileToken exchanges the shared gateway access key for a
// profile-scoped JWT.
func issueProfileToken(c echo.Context, logger *zap.Logger) error {
	var req TokenRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ProfileID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Profile ID and access key are required",
		})
	}

	accessKey := os.Getenv("GATEWAY_ACCESS_KEY")
	if accessKey == "" || subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(accessKey)) != 1 {
		logger.Warn("Token request rejected",
			zap.String("profile_id", req.ProfileID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid access key",
		})
	}

	token, err := auth.GenerateProfileToken(req.ProfileID)
	if err != nil {
		logger.Error("Failed to generate profile token",
			zap.String("profile_id", req.ProfileID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	// Expiration matches the JWT claims (24 hours).
	expiresAt := time.Now().Add(24 * time.Hour)

	logger.Info("Profile token issued", zap.String("profile_id", req.ProfileID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ProfileID: req.ProfileID,
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *gateway.Hub, c echo.Context, logger *zap.Logger) error {
	// Extract JWT token from Authorization header only
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" && len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != "profile" {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only profile tokens are allowed for WebSocket connections",
		})
	}

	profileID := claims.ProfileID
	if profileID == "" {
		logger.Error("WebSocket connection rejected: missing profile ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Profile ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("profile_id", profileID))

	return gateway.HandleWebSocketWithAuth(hub, c, profileID, logger)
}
