package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"chemsus-backend/config"
	"chemsus-backend/internal/models"
	"chemsus-backend/internal/store"
	"chemsus-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrNotFound         = errors.New("challenge not found")
	ErrExpired          = errors.New("challenge expired")
	ErrAlreadyVerified  = errors.New("challenge already verified")
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	ErrInvalidCode      = errors.New("incorrect verification code")
)

// RateLimitedError is returned while the resend cooldown of the most recent
// active challenge is still running.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("resend cooldown active, retry after %s", e.RetryAfter)
}

// DeliveryMode reports how the code reached (or failed to reach) the user.
type DeliveryMode string

const (
	DeliverySent     DeliveryMode = "sent"
	DeliveryDegraded DeliveryMode = "degraded"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Store is the slice of the database the challenge manager needs.
type Store interface {
	InsertOtpSession(ctx context.Context, sess *models.OtpSession) error
	GetActiveSessionByEmail(ctx context.Context, email string) (*models.OtpSession, error)
	GetSessionByChallenge(ctx context.Context, challengeID, email string) (*models.OtpSession, error)
	IncrementAttempts(ctx context.Context, sessionID int64) (int, error)
	MarkVerified(ctx context.Context, sessionID int64, token string, tokenExpiresAt time.Time) error
	PurgeStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sender dispatches a verification code to an email address.
type Sender interface {
	SendOTP(to, code string, ttl time.Duration) error
}

// Manager issues time-boxed, attempt-limited email challenges and turns a
// correct code into a single-use verification token.
type Manager struct {
	store      Store
	sender     Sender
	cfg        config.OTPConfig
	production bool
	logger     *zap.Logger
}

// NewManager creates a challenge manager. sender may be nil outside
// production; production startup must refuse a nil sender before we get
// here (see cmd/server).
func NewManager(st Store, sender Sender, cfg config.OTPConfig, production bool) *Manager {
	return &Manager{
		store:      st,
		sender:     sender,
		cfg:        cfg,
		production: production,
		logger:     util.NamedLogger("otp"),
	}
}

// SendResult is the answer to a challenge request.
type SendResult struct {
	ChallengeID  string
	ExpiresInSec int
	ResendInSec  int
	Delivery     DeliveryMode
}

// VerifyResult carries the single-use token earned by a correct code.
type VerifyResult struct {
	VerificationToken string
	TokenExpiresInSec int
}

// Send issues a fresh challenge for the email, unless the most recent
// active challenge is still inside its resend cooldown.
func (m *Manager) Send(ctx context.Context, email string) (*SendResult, error) {
	ctx, span := util.StartSpan(ctx, "otp.Send")
	defer span.End()

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	m.purge(ctx)

	active, err := m.store.GetActiveSessionByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	if active != nil {
		if wait := time.Until(active.CooldownUntil); wait > 0 {
			util.OtpSendRateLimited.Inc()
			return nil, &RateLimitedError{RetryAfter: wait.Round(time.Second)}
		}
	}

	challengeID := uuid.New().String()
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := time.Now()
	sess := &models.OtpSession{
		ChallengeID:   challengeID,
		Email:         email,
		OtpHash:       HashCode(email, code, challengeID, m.cfg.Secret),
		Attempts:      0,
		MaxAttempts:   m.cfg.MaxAttempts,
		ExpiresAt:     now.Add(m.cfg.TTL),
		CooldownUntil: now.Add(m.cfg.ResendInterval),
	}
	if err := m.store.InsertOtpSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to insert otp session: %w", err)
	}

	delivery := m.dispatch(email, code, challengeID)
	util.OtpSendTotal.WithLabelValues(string(delivery)).Inc()

	return &SendResult{
		ChallengeID:  challengeID,
		ExpiresInSec: int(m.cfg.TTL.Seconds()),
		ResendInSec:  int(m.cfg.ResendInterval.Seconds()),
		Delivery:     delivery,
	}, nil
}

// Verify checks a code against its challenge. A correct code converts the
// session into a verification token exactly once.
func (m *Manager) Verify(ctx context.Context, email, challengeID, code string) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "otp.Verify")
	defer span.End()

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	m.purge(ctx)

	sess, err := m.store.GetSessionByChallenge(ctx, challengeID, email)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			util.OtpVerifyTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	switch {
	case sess.UsedAt != nil:
		util.OtpVerifyTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	case sess.VerifiedAt != nil:
		util.OtpVerifyTotal.WithLabelValues("already_verified").Inc()
		return nil, ErrAlreadyVerified
	case time.Now().After(sess.ExpiresAt):
		util.OtpVerifyTotal.WithLabelValues("expired").Inc()
		return nil, ErrExpired
	case sess.Attempts >= sess.MaxAttempts:
		util.OtpVerifyTotal.WithLabelValues("attempts_exceeded").Inc()
		return nil, ErrAttemptsExceeded
	}

	expected := HashCode(email, code, challengeID, m.cfg.Secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sess.OtpHash)) != 1 {
		if _, err := m.store.IncrementAttempts(ctx, sess.ID); err != nil {
			if errors.Is(err, store.ErrSessionConflict) {
				util.OtpVerifyTotal.WithLabelValues("attempts_exceeded").Inc()
				return nil, ErrAttemptsExceeded
			}
			return nil, fmt.Errorf("failed to count attempt: %w", err)
		}
		util.OtpVerifyTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCode
	}

	token := uuid.New().String()
	tokenExpiry := time.Now().Add(m.cfg.TokenTTL)
	if err := m.store.MarkVerified(ctx, sess.ID, token, tokenExpiry); err != nil {
		if errors.Is(err, store.ErrSessionConflict) {
			// A concurrent verify won the transition.
			util.OtpVerifyTotal.WithLabelValues("already_verified").Inc()
			return nil, ErrAlreadyVerified
		}
		return nil, fmt.Errorf("failed to mark session verified: %w", err)
	}

	util.OtpVerifyTotal.WithLabelValues("ok").Inc()
	m.logger.Info("OTP verified", zap.String("challenge_id", challengeID))

	return &VerifyResult{
		VerificationToken: token,
		TokenExpiresInSec: int(m.cfg.TokenTTL.Seconds()),
	}, nil
}

// dispatch sends the code and never fails the request. A failed or missing
// sender degrades delivery; the plaintext code is only logged outside
// production.
func (m *Manager) dispatch(email, code, challengeID string) DeliveryMode {
	if m.sender != nil {
		err := m.sender.SendOTP(email, code, m.cfg.TTL)
		if err == nil {
			return DeliverySent
		}
		m.logger.Error("OTP email dispatch failed, delivery degraded",
			zap.String("challenge_id", challengeID),
			zap.Error(err))
	} else {
		m.logger.Error("No email sender configured, delivery degraded",
			zap.String("challenge_id", challengeID))
	}

	if !m.production {
		m.logger.Debug("OTP code (degraded delivery)",
			zap.String("challenge_id", challengeID),
			zap.String("code", code))
	}
	return DeliveryDegraded
}

func (m *Manager) purge(ctx context.Context) {
	n, err := m.store.PurgeStaleSessions(ctx, m.cfg.StaleAfter)
	if err != nil {
		m.logger.Warn("Failed to purge stale otp sessions", zap.Error(err))
		return
	}
	if n > 0 {
		util.OtpSessionsPurged.Add(float64(n))
	}
}

// NormalizeEmail lowercases and trims an address and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRe.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// HashCode binds a code to its email, challenge and the server secret, so a
// code issued for one session can never validate another.
func HashCode(email, code, challengeID, secret string) string {
	sum := sha256.Sum256([]byte(email + "|" + code + "|" + challengeID + "|" + secret))
	return hex.EncodeToString(sum[:])
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
