package controllers

import (
	"net/http"

	"formshield-server/internal/logics"

	"github.com/labstack/echo/v4"
)

// CheckRequest is the payload for submission checks. Fields maps form field
// names to submitted values (string or array of strings).
type CheckRequest struct {
	ChallengeHash   string                 `json:"challenge_hash" form:"challenge_hash"`
	ChallengeAnswer string                 `json:"challenge_answer" form:"challenge_answer"`
	Fields          map[string]interface{} `json:"fields"`
}

// CheckSubmissionHandler runs the full abuse decision for one submission
// POST /check
func CheckSubmissionHandler(c echo.Context) error {
	req := new(CheckRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	decision := logics.DecisionSvc.Evaluate(c.Request().Context(), logics.Submission{
		IP:              c.RealIP(),
		Fields:          req.Fields,
		ChallengeHash:   req.ChallengeHash,
		ChallengeAnswer: req.ChallengeAnswer,
	})

	return c.JSON(http.StatusOK, decision)
}
