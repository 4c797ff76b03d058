package logics

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"testing"
	"time"

	"formshield-server/configs"
	"formshield-server/internal/models"
	"formshield-server/internal/repositories"
)

var sessionSeq int

func seedSession(t *testing.T, kind, code string, age time.Duration) string {
	t.Helper()

	sessionSeq++
	hash := fmt.Sprintf("session-%d-%s-%s", sessionSeq, kind, code)
	session := &models.ChallengeSession{
		OpaqueHash: hash,
		Kind:       kind,
		Code:       code,
		CreatedAt:  time.Now().Add(-age),
	}
	if err := repositories.DBS.Postgres.Create(session).Error; err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return hash
}

func TestSilentChallenge(t *testing.T) {
	newTestEnv(t)
	c := &silentChallenge{}

	tests := []struct {
		name   string
		answer string
		valid  bool
	}{
		{"empty honeypot passes", "", true},
		{"filled honeypot fails", "I am a bot", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := c.Validate(context.Background(), tt.answer, "")
			if err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if valid != tt.valid {
				t.Errorf("Validate(%q) = %v, want %v", tt.answer, valid, tt.valid)
			}
		})
	}
}

func TestArithmeticValidate(t *testing.T) {
	newTestEnv(t)
	c := &arithmeticChallenge{}

	tests := []struct {
		name   string
		code   string
		answer string
		valid  bool
	}{
		{"correct product", "21", "21", true},
		{"wrong product", "21", "20", false},
		{"whitespace tolerated", "8", " 8 ", true},
		{"non-numeric answer", "8", "eight", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := seedSession(t, configs.ChallengeKindArithmetic, tt.code, time.Duration(0))

			valid, err := c.Validate(context.Background(), tt.answer, hash)
			if err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if valid != tt.valid {
				t.Errorf("Validate(%q) against code %q = %v, want %v", tt.answer, tt.code, valid, tt.valid)
			}
		})
	}
}

func TestArithmeticGenerateStoresMatchingCode(t *testing.T) {
	newTestEnv(t)
	c := &arithmeticChallenge{rand: rand.Reader}

	for i := 0; i < 20; i++ {
		issued, err := c.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate() returned error: %v", err)
		}

		var a, b int
		var op string
		if _, err := fmt.Sscanf(issued.Question, "What is %d %s %d?", &a, &op, &b); err != nil {
			t.Fatalf("unexpected question format %q: %v", issued.Question, err)
		}
		if a < 5 || a > 10 || b < 1 || b > 5 {
			t.Errorf("operands out of range: %d %s %d", a, op, b)
		}

		var expected int
		switch op {
		case "+":
			expected = a + b
		case "-":
			expected = a - b
		case "×":
			expected = a * b
		default:
			t.Fatalf("unexpected operator %q", op)
		}

		valid, err := c.Validate(context.Background(), strconv.Itoa(expected), issued.OpaqueHash)
		if err != nil {
			t.Fatalf("Validate() returned error: %v", err)
		}
		if !valid {
			t.Errorf("computed answer %d for %q did not validate", expected, issued.Question)
		}
	}
}

func TestChallengeReplayRejected(t *testing.T) {
	newTestEnv(t)
	c := &arithmeticChallenge{}

	hash := seedSession(t, configs.ChallengeKindArithmetic, "13", 0)

	valid, err := c.Validate(context.Background(), "13", hash)
	if err != nil || !valid {
		t.Fatalf("first validation failed: valid=%v err=%v", valid, err)
	}

	valid, err = c.Validate(context.Background(), "13", hash)
	if valid {
		t.Error("second validation against the same hash must fail")
	}
	if err != ErrChallengeReplayed {
		t.Errorf("err = %v, want ErrChallengeReplayed", err)
	}
}

func TestWrongAnswerConsumesSession(t *testing.T) {
	newTestEnv(t)
	c := &arithmeticChallenge{}

	hash := seedSession(t, configs.ChallengeKindArithmetic, "13", 0)

	valid, err := c.Validate(context.Background(), "12", hash)
	if err != nil || valid {
		t.Fatalf("wrong answer must be invalid without error: valid=%v err=%v", valid, err)
	}

	// The failed attempt consumed the session; the right answer is too late
	_, err = c.Validate(context.Background(), "13", hash)
	if err != ErrChallengeReplayed {
		t.Errorf("err = %v, want ErrChallengeReplayed", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	newTestEnv(t)
	c := &arithmeticChallenge{}

	hash := seedSession(t, configs.ChallengeKindArithmetic, "13", 25*time.Hour)

	_, err := c.Validate(context.Background(), "13", hash)
	if err != ErrChallengeExpired {
		t.Errorf("err = %v, want ErrChallengeExpired", err)
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	newTestEnv(t)
	c := &arithmeticChallenge{}

	_, err := c.Validate(context.Background(), "13", "no-such-hash")
	if err != ErrChallengeNotFound {
		t.Errorf("err = %v, want ErrChallengeNotFound", err)
	}
}

func TestImageValidateCaseSensitive(t *testing.T) {
	newTestEnv(t)
	c := &imageChallenge{}

	tests := []struct {
		name   string
		answer string
		valid  bool
	}{
		{"exact match", "aB3xYz", true},
		{"case mismatch", "ab3xyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := seedSession(t, configs.ChallengeKindImage, "aB3xYz", 0)

			valid, err := c.Validate(context.Background(), tt.answer, hash)
			if err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if valid != tt.valid {
				t.Errorf("Validate(%q) = %v, want %v", tt.answer, valid, tt.valid)
			}
		})
	}
}

func TestDefuseBlocksReplay(t *testing.T) {
	newTestEnv(t)
	svc := NewChallengeService(NewMemoryRetryCounter(), NewPoolService(NewMemoryPoolQueue()))
	c := &arithmeticChallenge{}

	hash := seedSession(t, configs.ChallengeKindArithmetic, "13", 0)
	svc.Defuse(hash)

	_, err := c.Validate(context.Background(), "13", hash)
	if err != ErrChallengeNotFound {
		t.Errorf("err = %v, want ErrChallengeNotFound after defuse", err)
	}
}

func TestSessionSweep(t *testing.T) {
	newTestEnv(t)
	svc := NewChallengeService(NewMemoryRetryCounter(), NewPoolService(NewMemoryPoolQueue()))

	seedSession(t, configs.ChallengeKindArithmetic, "1", 25*time.Hour)
	seedSession(t, configs.ChallengeKindArithmetic, "2", time.Hour)

	svc.SweepSessions()

	var count int64
	repositories.DBS.Postgres.Model(&models.ChallengeSession{}).Count(&count)
	if count != 1 {
		t.Errorf("session count after sweep = %d, want 1", count)
	}
}

func TestGenerateThrottle(t *testing.T) {
	newTestEnv(t)
	configs.Configs.Antispam.Challenge = configs.ChallengeConfig{
		Enabled:              true,
		Kind:                 configs.ChallengeKindArithmetic,
		GenerateLimitPerHour: 2,
	}

	svc := NewChallengeService(NewMemoryRetryCounter(), NewPoolService(NewMemoryPoolQueue()))

	for i := 0; i < 2; i++ {
		if _, err := svc.Generate(context.Background(), testIP); err != nil {
			t.Fatalf("generation %d failed: %v", i+1, err)
		}
	}

	_, err := svc.Generate(context.Background(), testIP)
	if err != ErrTooManyChallenges {
		t.Errorf("err = %v, want ErrTooManyChallenges", err)
	}
}
