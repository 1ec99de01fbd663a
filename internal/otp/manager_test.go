package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chemsus-backend/config"
	"chemsus-backend/internal/models"
	"chemsus-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOtpStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*models.OtpSession
}

func newFakeOtpStore() *fakeOtpStore {
	return &fakeOtpStore{sessions: map[int64]*models.OtpSession{}}
}

func (f *fakeOtpStore) InsertOtpSession(_ context.Context, sess *models.OtpSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sess.ID = f.nextID
	sess.CreatedAt = time.Now()
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeOtpStore) GetActiveSessionByEmail(_ context.Context, email string) (*models.OtpSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.OtpSession
	for _, s := range f.sessions {
		if s.Email != email || s.VerifiedAt != nil || s.UsedAt != nil || time.Now().After(s.ExpiresAt) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, store.ErrSessionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeOtpStore) GetSessionByChallenge(_ context.Context, challengeID, email string) (*models.OtpSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ChallengeID == challengeID && s.Email == email {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrSessionNotFound
}

func (f *fakeOtpStore) IncrementAttempts(_ context.Context, sessionID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.Attempts >= s.MaxAttempts || s.VerifiedAt != nil || s.UsedAt != nil {
		return 0, store.ErrSessionConflict
	}
	s.Attempts++
	return s.Attempts, nil
}

func (f *fakeOtpStore) MarkVerified(_ context.Context, sessionID int64, token string, tokenExpiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.VerifiedAt != nil || s.UsedAt != nil || time.Now().After(s.ExpiresAt) {
		return store.ErrSessionConflict
	}
	now := time.Now()
	s.VerifiedAt = &now
	s.VerificationToken = &token
	s.TokenExpiresAt = &tokenExpiresAt
	return nil
}

func (f *fakeOtpStore) PurgeStaleSessions(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

// mutate adjusts a stored session in place, simulating time passing.
func (f *fakeOtpStore) mutate(id int64, fn func(*models.OtpSession)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.sessions[id])
}

type fakeSender struct {
	mu       sync.Mutex
	lastCode string
	fail     bool
}

func (f *fakeSender) SendOTP(_, code string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp down")
	}
	f.lastCode = code
	return nil
}

func (f *fakeSender) code() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCode
}

func testConfig() config.OTPConfig {
	return config.OTPConfig{
		TTL:            5 * time.Minute,
		ResendInterval: time.Minute,
		TokenTTL:       15 * time.Minute,
		MaxAttempts:    5,
		Secret:         "test-secret",
		StaleAfter:     7 * 24 * time.Hour,
	}
}

func TestSendAndVerify(t *testing.T) {
	st := newFakeOtpStore()
	sender := &fakeSender{}
	m := NewManager(st, sender, testConfig(), false)
	ctx := context.Background()

	sent, err := m.Send(ctx, "User@Example.COM")
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ChallengeID)
	assert.Equal(t, DeliverySent, sent.Delivery)
	assert.Equal(t, 300, sent.ExpiresInSec)
	assert.Equal(t, 60, sent.ResendInSec)

	// Email is normalized, so verify with any casing works.
	verified, err := m.Verify(ctx, "user@example.com", sent.ChallengeID, sender.code())
	require.NoError(t, err)
	assert.NotEmpty(t, verified.VerificationToken)
	assert.Equal(t, 900, verified.TokenExpiresInSec)

	// A verified session cannot be verified again, even with the right code.
	_, err = m.Verify(ctx, "user@example.com", sent.ChallengeID, sender.code())
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestSendInvalidEmail(t *testing.T) {
	m := NewManager(newFakeOtpStore(), &fakeSender{}, testConfig(), false)

	_, err := m.Send(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestSendCooldown(t *testing.T) {
	st := newFakeOtpStore()
	sender := &fakeSender{}
	m := NewManager(st, sender, testConfig(), false)
	ctx := context.Background()

	sent, err := m.Send(ctx, "a@b.com")
	require.NoError(t, err)

	_, err = m.Send(ctx, "a@b.com")
	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Greater(t, rateLimited.RetryAfter, time.Duration(0))

	// Once the cooldown elapses a resend goes through.
	st.mutate(1, func(s *models.OtpSession) {
		s.CooldownUntil = time.Now().Add(-time.Second)
	})
	resent, err := m.Send(ctx, "a@b.com")
	require.NoError(t, err)
	assert.NotEqual(t, sent.ChallengeID, resent.ChallengeID)
}

func TestVerifyAttemptBudget(t *testing.T) {
	st := newFakeOtpStore()
	sender := &fakeSender{}
	m := NewManager(st, sender, testConfig(), false)
	ctx := context.Background()

	sent, err := m.Send(ctx, "a@b.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = m.Verify(ctx, "a@b.com", sent.ChallengeID, "000000")
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	// Budget exhausted: even the correct code is refused now.
	_, err = m.Verify(ctx, "a@b.com", sent.ChallengeID, sender.code())
	assert.ErrorIs(t, err, ErrAttemptsExceeded)
}

func TestVerifyExpired(t *testing.T) {
	st := newFakeOtpStore()
	sender := &fakeSender{}
	m := NewManager(st, sender, testConfig(), false)
	ctx := context.Background()

	sent, err := m.Send(ctx, "a@b.com")
	require.NoError(t, err)

	st.mutate(1, func(s *models.OtpSession) {
		s.ExpiresAt = time.Now().Add(-time.Second)
	})

	_, err = m.Verify(ctx, "a@b.com", sent.ChallengeID, sender.code())
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyBindsChallengeAndEmail(t *testing.T) {
	st := newFakeOtpStore()
	sender := &fakeSender{}
	m := NewManager(st, sender, testConfig(), false)
	ctx := context.Background()

	sent, err := m.Send(ctx, "a@b.com")
	require.NoError(t, err)
	codeA := sender.code()

	// The code for a@b.com must not validate another email's session, nor a
	// made-up challenge.
	_, err = m.Verify(ctx, "c@d.com", sent.ChallengeID, codeA)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Verify(ctx, "a@b.com", "bogus-challenge", codeA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendDegradedDelivery(t *testing.T) {
	st := newFakeOtpStore()
	m := NewManager(st, &fakeSender{fail: true}, testConfig(), false)

	sent, err := m.Send(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDegraded, sent.Delivery)

	// No sender at all also degrades instead of failing the request.
	m = NewManager(st, nil, testConfig(), false)
	st.mutate(1, func(s *models.OtpSession) {
		s.CooldownUntil = time.Now().Add(-time.Second)
	})
	sent, err = m.Send(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDegraded, sent.Delivery)
}

func TestHashCodeBindsAllInputs(t *testing.T) {
	base := HashCode("a@b.com", "123456", "ch", "secret")
	assert.NotEqual(t, base, HashCode("x@b.com", "123456", "ch", "secret"))
	assert.NotEqual(t, base, HashCode("a@b.com", "654321", "ch", "secret"))
	assert.NotEqual(t, base, HashCode("a@b.com", "123456", "other", "secret"))
	assert.NotEqual(t, base, HashCode("a@b.com", "123456", "ch", "other"))
	assert.Equal(t, base, HashCode("a@b.com", "123456", "ch", "secret"))
}
