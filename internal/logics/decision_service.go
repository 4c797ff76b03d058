package logics

import (
	"context"
	"encoding/json"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"

	"go.uber.org/zap"
)

// Submission is one inbound form submission to judge
type Submission struct {
	IP              string
	Fields          map[string]interface{}
	ChallengeHash   string
	ChallengeAnswer string
}

// Decision is the aggregate accept/reject outcome
type Decision struct {
	Spam    bool     `json:"spam"`
	Reasons []string `json:"reasons"`
}

// DecisionService composes the rate limiter, the challenge engine and the
// rule engine into one decision. Every enabled sub-check votes; any spam
// vote makes the submission spam. All enabled checks are evaluated even
// after a spam vote so the decision log carries the full picture.
type DecisionService struct {
	rateLimit  *RateLimitService
	challenges *ChallengeService
	rules      *RuleService
}

// NewDecisionService creates a new DecisionService instance
func NewDecisionService(rateLimit *RateLimitService, challenges *ChallengeService, rules *RuleService) *DecisionService {
	return &DecisionService{rateLimit: rateLimit, challenges: challenges, rules: rules}
}

// Evaluate runs all enabled sub-checks for a submission
func (s *DecisionService) Evaluate(ctx context.Context, sub Submission) Decision {
	cfg := configs.Configs.Antispam
	votes := map[string]string{}
	var reasons []string

	if cfg.RateLimit.Enabled {
		allowed, reason := s.rateLimit.Check(ctx, sub.IP)
		if !allowed {
			votes["rate_limit"] = reason
			reasons = append(reasons, reason)
		}
	}

	if cfg.Challenge.Enabled {
		valid, err := s.challenges.Validate(ctx, sub.ChallengeAnswer, sub.ChallengeHash)
		if err != nil {
			// An unverifiable challenge counts as failed
			configs.Logger.Warn("Challenge validation error", zap.Error(err))
			valid = false
		}
		if !valid {
			reason := "The verification challenge was not answered correctly."
			votes["challenge"] = reason
			reasons = append(reasons, reason)
		}
	}

	if cfg.Rules.AnyEnabled() {
		spam, msgs := s.rules.Evaluate(sub.Fields)
		if spam {
			votes["rules"] = msgs[0]
			reasons = append(reasons, msgs...)
		}
	}

	decision := Decision{Spam: len(reasons) > 0, Reasons: reasons}

	if !decision.Spam {
		if cfg.RateLimit.Enabled {
			s.rateLimit.NoteSuccess(ctx, sub.IP)
		}
		if cfg.Challenge.Enabled {
			s.challenges.Defuse(sub.ChallengeHash)
		}
	}

	s.log(sub.IP, decision, votes)
	return decision
}

// log writes the decision audit row. Best effort; a logging failure never
// changes the decision.
func (s *DecisionService) log(ip string, decision Decision, votes map[string]string) {
	hashCurrent, _, err := SaltSvc.IdentityHashes(ip)
	if err != nil {
		configs.Logger.Warn("Decision log skipped, identity not pseudonymizable", zap.Error(err))
		return
	}

	details, err := json.Marshal(votes)
	if err != nil {
		return
	}

	entry := &models.DecisionLog{
		IdentityHash: hashCurrent,
		Spam:         decision.Spam,
		Details:      details,
	}
	if err := repositories.DBS.Postgres.Create(entry).Error; err != nil {
		configs.Logger.Error("Failed to write decision log", zap.Error(err))
	}
}

// Global instance of DecisionService
var DecisionSvc = NewDecisionService(RateLimitSvc, ChallengeSvc, RuleSvc)
