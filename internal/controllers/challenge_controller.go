package controllers

import (
	"net/http"

	"formshield-server/internal/logics"

	"github.com/labstack/echo/v4"
)

// ChallengeReloadRequest is the payload for challenge reload requests
type ChallengeReloadRequest struct {
	OpaqueHash string `json:"opaque_hash" form:"opaque_hash"` // Hash of the challenge being replaced
}

// GenerateChallengeHandler issues a new challenge of the configured kind
// POST /challenge/generate
func GenerateChallengeHandler(c echo.Context) error {
	challenge, err := logics.ChallengeSvc.Generate(c.Request().Context(), c.RealIP())
	if err == logics.ErrTooManyChallenges {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate challenge"})
	}

	return c.JSON(http.StatusOK, challenge)
}

// ReloadChallengeHandler replaces an issued challenge with a fresh one.
// The old session is destroyed so its answer can no longer be used.
// POST /challenge/reload
func ReloadChallengeHandler(c echo.Context) error {
	req := new(ChallengeReloadRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.OpaqueHash == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "opaque_hash is required"})
	}

	logics.ChallengeSvc.Defuse(req.OpaqueHash)

	challenge, err := logics.ChallengeSvc.Generate(c.Request().Context(), c.RealIP())
	if err == logics.ErrTooManyChallenges {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate challenge"})
	}

	return c.JSON(http.StatusOK, challenge)
}
