package logics

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sessionLifetime is how long an issued challenge stays answerable
const sessionLifetime = 24 * time.Hour

// Challenge is the contract every challenge variant implements. Selection
// between variants is a configuration value, not per-request polymorphism.
type Challenge interface {
	// Generate issues a new challenge and, for stateful variants, persists
	// its session
	Generate(ctx context.Context) (*IssuedChallenge, error)

	// RenderField returns the markup fragment the integration layer embeds
	// in the form
	RenderField(name string) string

	// Validate checks a submitted answer against the stored session. A
	// session validates at most once; replays are rejected.
	Validate(ctx context.Context, answer, opaqueHash string) (bool, error)
}

// IssuedChallenge is the result of challenge generation
type IssuedChallenge struct {
	OpaqueHash  string `json:"opaque_hash,omitempty"`
	Kind        string `json:"kind"`
	Question    string `json:"question,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Markup      string `json:"markup"`
	ExpireIn    int    `json:"expire_in"`
}

// ChallengeService owns variant selection, the per-IP generation throttle
// and session housekeeping
type ChallengeService struct {
	rand    io.Reader
	counter RetryCounter
	pool    *PoolService
}

// NewChallengeService creates a new ChallengeService instance
func NewChallengeService(counter RetryCounter, pool *PoolService) *ChallengeService {
	return &ChallengeService{rand: rand.Reader, counter: counter, pool: pool}
}

// Active returns the configured challenge variant
func (s *ChallengeService) Active() Challenge {
	switch configs.Configs.Antispam.Challenge.ActiveKind() {
	case configs.ChallengeKindArithmetic:
		return &arithmeticChallenge{rand: s.rand}
	case configs.ChallengeKindImage:
		return &imageChallenge{rand: s.rand, pool: s.pool}
	default:
		return &silentChallenge{}
	}
}

// Generate issues a challenge of the configured kind for the given client,
// enforcing the per-IP generation cap
func (s *ChallengeService) Generate(ctx context.Context, ip string) (*IssuedChallenge, error) {
	cfg := configs.Configs.Antispam.Challenge

	count, err := s.counter.Incr(ctx, "challenge_gen:"+ip, time.Hour)
	if err != nil {
		configs.Logger.Warn("Challenge generation throttle unavailable", zap.Error(err))
	} else if count > int64(cfg.GenerateLimit()) {
		return nil, ErrTooManyChallenges
	}

	return s.Active().Generate(ctx)
}

// Validate checks a submitted answer with the configured variant
func (s *ChallengeService) Validate(ctx context.Context, answer, opaqueHash string) (bool, error) {
	return s.Active().Validate(ctx, answer, opaqueHash)
}

// Defuse destroys a challenge session after the submission it guarded was
// accepted, so the answer cannot be replayed
func (s *ChallengeService) Defuse(opaqueHash string) {
	if opaqueHash == "" {
		return
	}
	err := repositories.DBS.Postgres.
		Where("opaque_hash = ?", opaqueHash).
		Delete(&models.ChallengeSession{}).Error
	if err != nil {
		configs.Logger.Error("Failed to defuse challenge session", zap.Error(err))
	}
}

// SweepSessions deletes challenge sessions past the session lifetime
func (s *ChallengeService) SweepSessions() {
	cutoff := time.Now().Add(-sessionLifetime)
	result := repositories.DBS.Postgres.
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.ChallengeSession{})
	if result.Error != nil {
		configs.Logger.Error("Challenge session sweep failed", zap.Error(result.Error))
		return
	}
	if result.RowsAffected > 0 {
		configs.Logger.Info("Swept expired challenge sessions",
			zap.Int64("deleted", result.RowsAffected))
	}
}

// createSession persists a new challenge session and returns its opaque hash
func createSession(kind, code string) (string, error) {
	opaqueHash, err := gonanoid.New(32)
	if err != nil {
		return "", err
	}

	session := &models.ChallengeSession{
		OpaqueHash: opaqueHash,
		Kind:       kind,
		Code:       code,
	}
	if err := repositories.DBS.Postgres.Create(session).Error; err != nil {
		return "", fmt.Errorf("failed to store challenge session: %w", err)
	}

	return opaqueHash, nil
}

// consumeSession atomically marks a session validated and returns it. The
// conditional update is the replay guard: of two concurrent attempts against
// the same hash, exactly one observes an affected row.
func consumeSession(opaqueHash string) (*models.ChallengeSession, error) {
	cutoff := time.Now().Add(-sessionLifetime)

	result := repositories.DBS.Postgres.
		Model(&models.ChallengeSession{}).
		Where("opaque_hash = ? AND validated = ? AND created_at > ?", opaqueHash, false, cutoff).
		Update("validated", true)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		var session models.ChallengeSession
		err := repositories.DBS.Postgres.
			Where("opaque_hash = ?", opaqueHash).
			First(&session).Error
		if err == gorm.ErrRecordNotFound {
			return nil, ErrChallengeNotFound
		}
		if err != nil {
			return nil, err
		}
		if session.Validated {
			return nil, ErrChallengeReplayed
		}
		return nil, ErrChallengeExpired
	}

	var session models.ChallengeSession
	if err := repositories.DBS.Postgres.
		Where("opaque_hash = ?", opaqueHash).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// randInt returns a uniform random int in [min, max] from the given source
func randInt(rnd io.Reader, min, max int) (int, error) {
	n, err := rand.Int(rnd, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, err
	}
	return min + int(n.Int64()), nil
}

// randomCode draws length characters from the configured charset
func randomCode(rnd io.Reader, length int, charset string) (string, error) {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		idx, err := randInt(rnd, 0, len(charset)-1)
		if err != nil {
			return "", err
		}
		result[i] = charset[idx]
	}
	return string(result), nil
}

// silentChallenge is the honeypot variant: an invisible input a human never
// fills. No session is stored; any non-empty value fails.
type silentChallenge struct{}

func (c *silentChallenge) Generate(_ context.Context) (*IssuedChallenge, error) {
	return &IssuedChallenge{
		Kind:     configs.ChallengeKindSilent,
		Markup:   c.RenderField(configs.Configs.Antispam.Challenge.Field()),
		ExpireIn: int(sessionLifetime.Seconds()),
	}, nil
}

func (c *silentChallenge) RenderField(name string) string {
	return fmt.Sprintf(
		`<input type="text" name="%s" value="" style="display:none !important" tabindex="-1" autocomplete="off">`,
		name)
}

func (c *silentChallenge) Validate(_ context.Context, answer, _ string) (bool, error) {
	return answer == "", nil
}

// arithmeticChallenge asks for the result of a small random calculation
type arithmeticChallenge struct {
	rand io.Reader
}

var arithmeticOperators = []string{"+", "-", "×"}

func (c *arithmeticChallenge) Generate(_ context.Context) (*IssuedChallenge, error) {
	a, err := randInt(c.rand, 5, 10)
	if err != nil {
		return nil, err
	}
	b, err := randInt(c.rand, 1, 5)
	if err != nil {
		return nil, err
	}
	opIdx, err := randInt(c.rand, 0, len(arithmeticOperators)-1)
	if err != nil {
		return nil, err
	}

	op := arithmeticOperators[opIdx]
	var result int
	switch op {
	case "+":
		result = a + b
	case "-":
		result = a - b
	case "×":
		result = a * b
	}

	opaqueHash, err := createSession(configs.ChallengeKindArithmetic, strconv.Itoa(result))
	if err != nil {
		return nil, err
	}

	question := fmt.Sprintf("What is %d %s %d?", a, op, b)
	return &IssuedChallenge{
		OpaqueHash: opaqueHash,
		Kind:       configs.ChallengeKindArithmetic,
		Question:   question,
		Markup:     c.RenderField(configs.Configs.Antispam.Challenge.Field()),
		ExpireIn:   int(sessionLifetime.Seconds()),
	}, nil
}

func (c *arithmeticChallenge) RenderField(name string) string {
	return fmt.Sprintf(
		`<input type="text" name="%s" value="" autocomplete="off" required>`,
		name)
}

func (c *arithmeticChallenge) Validate(_ context.Context, answer, opaqueHash string) (bool, error) {
	session, err := consumeSession(opaqueHash)
	if err != nil {
		return false, err
	}

	submitted, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return false, nil
	}
	expected, err := strconv.Atoi(session.Code)
	if err != nil {
		return false, err
	}

	return submitted == expected, nil
}

// imageChallenge shows distorted text the submitter has to copy. Rendering
// is expensive, so generation prefers a pre-rendered pool entry and only
// renders synchronously when the pool is drained.
type imageChallenge struct {
	rand io.Reader
	pool *PoolService
}

func (c *imageChallenge) Generate(ctx context.Context) (*IssuedChallenge, error) {
	cfg := configs.Configs.Antispam.Challenge

	var code string
	var imagePNG []byte

	entry, err := c.pool.Take(ctx)
	if err == nil {
		code = entry.Code
		imagePNG = entry.ImagePNG
	} else {
		if err != ErrPoolEmpty {
			configs.Logger.Warn("Challenge pool unavailable, rendering synchronously",
				zap.Error(err))
		}
		code, err = randomCode(c.rand, cfg.Length(), cfg.Chars())
		if err != nil {
			return nil, err
		}
		imagePNG, err = renderChallengeImage(code, c.rand)
		if err != nil {
			return nil, err
		}
	}

	opaqueHash, err := createSession(configs.ChallengeKindImage, code)
	if err != nil {
		return nil, err
	}

	return &IssuedChallenge{
		OpaqueHash:  opaqueHash,
		Kind:        configs.ChallengeKindImage,
		ImageBase64: base64.StdEncoding.EncodeToString(imagePNG),
		Markup:      c.RenderField(cfg.Field()),
		ExpireIn:    int(sessionLifetime.Seconds()),
	}, nil
}

func (c *imageChallenge) RenderField(name string) string {
	return fmt.Sprintf(
		`<input type="text" name="%s" value="" autocomplete="off" spellcheck="false" required>`,
		name)
}

func (c *imageChallenge) Validate(_ context.Context, answer, opaqueHash string) (bool, error) {
	session, err := consumeSession(opaqueHash)
	if err != nil {
		return false, err
	}

	// Case-sensitive comparison against the rendered code
	return strings.TrimSpace(answer) == session.Code, nil
}

// Global instance of ChallengeService
var ChallengeSvc = NewChallengeService(NewRedisRetryCounter(), PoolSvc)
