package httpEngine

import (
	"net/http"
	"time"

	"formshield-server/internal/controllers"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes sets up all the server routes
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Coarse per-IP limiter in front of the engine's own heuristics, so a
	// single client cannot hammer the decision path itself
	checkLimiter := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      20,
				Burst:     40,
				ExpiresIn: 1 * time.Hour,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
		},
	}

	e.POST("/check", controllers.CheckSubmissionHandler, middleware.RateLimiterWithConfig(checkLimiter))

	challengeGroup := e.Group("/challenge")
	{
		challengeGroup.POST("/generate", controllers.GenerateChallengeHandler)
		challengeGroup.POST("/reload", controllers.ReloadChallengeHandler)
	}
}
