package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chemsus-backend/internal/models"
)

// InsertOtpSession persists a freshly issued challenge
func (s *Store) InsertOtpSession(ctx context.Context, sess *models.OtpSession) error {
	query := `
		INSERT INTO email_otp_sessions
			(challenge_id, email, otp_hash, attempts, max_attempts, expires_at, cooldown_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, sess, query,
		sess.ChallengeID, sess.Email, sess.OtpHash, sess.Attempts, sess.MaxAttempts,
		sess.ExpiresAt, sess.CooldownUntil)
}

// GetActiveSessionByEmail returns the most recent session for an email that
// is still unverified, unused and unexpired. Drives the resend cooldown.
func (s *Store) GetActiveSessionByEmail(ctx context.Context, email string) (*models.OtpSession, error) {
	var sess models.OtpSession
	err := s.db.GetContext(ctx, &sess, `
		SELECT * FROM email_otp_sessions
		WHERE email = $1 AND verified_at IS NULL AND used_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1`, email)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSessionByChallenge looks a session up by the exact (challenge, email)
// pair. Binding both prevents replaying a code against another session.
func (s *Store) GetSessionByChallenge(ctx context.Context, challengeID, email string) (*models.OtpSession, error) {
	var sess models.OtpSession
	err := s.db.GetContext(ctx, &sess,
		"SELECT * FROM email_otp_sessions WHERE challenge_id = $1 AND email = $2",
		challengeID, email)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// IncrementAttempts counts one failed guess. The increment is a single
// conditional UPDATE so two concurrent wrong guesses can never both observe
// the same pre-increment count.
func (s *Store) IncrementAttempts(ctx context.Context, sessionID int64) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		UPDATE email_otp_sessions
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND attempts < max_attempts AND verified_at IS NULL AND used_at IS NULL
		RETURNING attempts`, sessionID)
	if err == sql.ErrNoRows {
		return 0, ErrSessionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return attempts, nil
}

// MarkVerified records a successful code match and arms the verification
// token. The guards make the transition single-shot under concurrency.
func (s *Store) MarkVerified(ctx context.Context, sessionID int64, token string, tokenExpiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_otp_sessions
		SET verified_at = NOW(), verification_token = $1, token_expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND verified_at IS NULL AND used_at IS NULL AND expires_at > NOW()`,
		token, tokenExpiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionConflict
	}
	return nil
}

// GetConsumableSession returns the session a verification token can still
// spend: verified, unused, token unexpired, bound to the same email.
func (s *Store) GetConsumableSession(ctx context.Context, email, token string) (*models.OtpSession, error) {
	var sess models.OtpSession
	err := s.db.GetContext(ctx, &sess, `
		SELECT * FROM email_otp_sessions
		WHERE email = $1 AND verification_token = $2
		  AND verified_at IS NOT NULL AND used_at IS NULL AND token_expires_at > NOW()`,
		email, token)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// PurgeStaleSessions garbage-collects sessions nobody can act on anymore:
// consumed long ago, never verified and long expired, or verified but left
// unconsumed long past token expiry. Best-effort housekeeping.
func (s *Store) PurgeStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM email_otp_sessions
		WHERE (used_at IS NOT NULL AND used_at < $1)
		   OR (verified_at IS NULL AND expires_at < $1)
		   OR (verified_at IS NOT NULL AND used_at IS NULL AND token_expires_at < $1)`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
