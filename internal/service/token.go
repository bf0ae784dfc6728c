package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/model"
	"solarmarket/verify-api/pkg/security"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TokenStatus int

const (
	TokenValid TokenStatus = iota + 1
	TokenNotFound
	TokenExpired
	TokenAlreadyConsumed
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenNotFound:
		return "not_found"
	case TokenExpired:
		return "expired"
	case TokenAlreadyConsumed:
		return "already_consumed"
	}

	return "unknown"
}

// TokenResult is the outcome of a consumption attempt. SubjectID is set for
// TokenValid and TokenAlreadyConsumed.
type TokenResult struct {
	Status    TokenStatus
	SubjectID string
}

type TokenService struct {
	db      *gorm.DB
	ttl     time.Duration
	metrics *metrics.Metrics

	Now func() time.Time
}

func NewTokenService(db *gorm.DB, ttl time.Duration, m *metrics.Metrics) *TokenService {
	return &TokenService{
		db:      db,
		ttl:     ttl,
		metrics: m,
		Now:     time.Now,
	}
}

// Issue creates a fresh token for the subject, superseding any previous
// token of the same kind.
func (s *TokenService) Issue(ctx context.Context, subjectID string, kind model.TokenKind) (*model.VerificationToken, error) {
	return s.IssueTx(s.db.WithContext(ctx), subjectID, kind)
}

// IssueTx is Issue inside the caller's transaction, so the token lands
// together with the record that asked for it.
func (s *TokenService) IssueTx(tx *gorm.DB, subjectID string, kind model.TokenKind) (*model.VerificationToken, error) {
	tok, err := security.MakeVerificationToken(&security.VerificationTokenOpts{
		SubjectID: subjectID,
		Kind:      kind,
		IssuedAt:  s.Now().UTC(),
		TTL:       s.ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token, %w", err)
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "issued_at", "expires_at", "consumed", "consumed_at"}),
	}).Create(tok).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store verification token, %w", err)
	}

	s.metrics.TokensIssued.WithLabelValues(string(kind)).Inc()
	return tok, nil
}

// ValidateAndConsume checks the token and marks it consumed. Of any number
// of concurrent callers holding the same value at most one gets TokenValid.
// Malformed values are rejected with ErrMalformedToken before the store is
// touched. The returned error is only set for malformed input or store failures.
func (s *TokenService) ValidateAndConsume(ctx context.Context, value string, kind model.TokenKind) (TokenResult, error) {
	return s.ConsumeTx(s.db.WithContext(ctx), value, kind)
}

func (s *TokenService) ConsumeTx(tx *gorm.DB, value string, kind model.TokenKind) (TokenResult, error) {
	if err := security.CheckTokenShape(value); err != nil {
		return TokenResult{}, ErrMalformedToken
	}

	tok, err := s.findTx(tx, "value = ? AND kind = ?", value, kind)
	if err != nil {
		return TokenResult{}, err
	}

	if tok == nil {
		return TokenResult{Status: TokenNotFound}, nil
	}

	return s.consumeRowTx(tx, tok)
}

// ForSubjectTx returns the current token of a subject or nil when it has none.
func (s *TokenService) ForSubjectTx(tx *gorm.DB, subjectID string, kind model.TokenKind) (*model.VerificationToken, error) {
	return s.findTx(tx, "subject_id = ? AND kind = ?", subjectID, kind)
}

func (s *TokenService) consumeRowTx(tx *gorm.DB, tok *model.VerificationToken) (TokenResult, error) {
	now := s.Now().UTC()

	// Expiry wins over consumption: an expired token never validates
	if !now.Before(tok.ExpiresAt) {
		return TokenResult{Status: TokenExpired, SubjectID: tok.SubjectID}, nil
	}

	if tok.Consumed {
		return TokenResult{Status: TokenAlreadyConsumed, SubjectID: tok.SubjectID}, nil
	}

	// The commit point. Matching on the value as well keeps a reissue that
	// happened since the read from being consumed under the old value
	res := tx.Model(&model.VerificationToken{}).
		Where("id = ? AND value = ? AND consumed = ?", tok.ID, tok.Value, false).
		Updates(map[string]any{
			"consumed":    true,
			"consumed_at": now,
		})
	if res.Error != nil {
		return TokenResult{}, fmt.Errorf("failed to consume verification token, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Someone else won the race, or the token was reissued in between
		current, err := s.findTx(tx, "id = ?", tok.ID)
		if err != nil {
			return TokenResult{}, err
		}

		if current == nil || current.Value != tok.Value {
			return TokenResult{Status: TokenNotFound}, nil
		}

		return TokenResult{Status: TokenAlreadyConsumed, SubjectID: tok.SubjectID}, nil
	}

	return TokenResult{Status: TokenValid, SubjectID: tok.SubjectID}, nil
}

func (s *TokenService) findTx(tx *gorm.DB, query string, args ...any) (*model.VerificationToken, error) {
	var tok model.VerificationToken

	err := tx.Where(query, args...).First(&tok).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get verification token record, %w", err)
	}

	if err := tok.Validate(); err != nil {
		return nil, fmt.Errorf("%w, verification token %d: %w", ErrInvalidRecord, tok.ID, err)
	}

	return &tok, nil
}
