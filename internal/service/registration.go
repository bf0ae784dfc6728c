package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/model"
	"solarmarket/verify-api/pkg/security"
	"solarmarket/verify-api/pkg/validators"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Profile struct {
	FirstName string
	LastName  string
	Phone     string
}

type RegisterInput struct {
	Email    string
	Password string
	Profile
}

type RegistrationService struct {
	db       *gorm.DB
	tokens   *TokenService
	mailer   Mailer
	throttle Throttle
	links    Links
	argon    *security.ArgonHash
	access   *security.AccessTokens
	log      *zap.Logger
	metrics  *metrics.Metrics

	Now func() time.Time
}

func NewRegistrationService(
	db *gorm.DB,
	tokens *TokenService,
	mailer Mailer,
	throttle Throttle,
	links Links,
	argon *security.ArgonHash,
	access *security.AccessTokens,
	log *zap.Logger,
	m *metrics.Metrics,
) *RegistrationService {
	return &RegistrationService{
		db:       db,
		tokens:   tokens,
		mailer:   mailer,
		throttle: throttle,
		links:    links,
		argon:    argon,
		access:   access,
		log:      log,
		metrics:  m,
		Now:      time.Now,
	}
}

// Register creates an unverified account and mails its verification link.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*model.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validators.EmailValidator(email); err != nil {
		return nil, fmt.Errorf("%w, %w", ErrMalformedInput, err)
	}

	if err := validators.PasswordValidator(in.Password, email); err != nil {
		return nil, fmt.Errorf("%w, %w", ErrMalformedInput, err)
	}

	hash, err := s.argon.GenerateFromPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id, %w", err)
	}

	user := &model.UserAccount{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
	}

	var tokenValue string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.UserAccount{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to look up email, %w", err)
		}

		if n > 0 {
			return ErrEmailTaken
		}

		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create account, %w", err)
		}

		tok, err := s.tokens.IssueTx(tx, user.ID, model.TokenKindRegistration)
		if err != nil {
			return err
		}

		tokenValue = tok.Value
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendLink(ctx, user.ID, user.Email, user.FirstName, tokenValue)
	return user, nil
}

// RequestVerification issues a fresh registration token for the account and
// mails a link carrying both the token and the account id.
func (s *RegistrationService) RequestVerification(ctx context.Context, userID, email string, profile Profile) error {
	if userID == "" || email == "" {
		return fmt.Errorf("%w, user id and email are required", ErrMalformedInput)
	}

	tok, err := s.tokens.Issue(ctx, userID, model.TokenKindRegistration)
	if err != nil {
		return err
	}

	s.sendLink(ctx, userID, email, profile.FirstName, tok.Value)
	return nil
}

// Resend looks the account up by email and requests a new verification.
// Unknown addresses return nil so the endpoint can't be used to probe for
// registered emails.
func (s *RegistrationService) Resend(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validators.EmailValidator(email); err != nil {
		return fmt.Errorf("%w, %w", ErrMalformedInput, err)
	}

	user, err := s.findUser(s.db.WithContext(ctx), "email = ?", email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}

		return err
	}

	if user.CustomEmailVerified {
		return ErrAlreadyVerified
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, "registration:"+user.ID)
		if err != nil {
			s.log.Warn("Resend throttle unavailable", zap.Error(err))
		} else if !ok {
			return ErrThrottled
		}
	}

	return s.RequestVerification(ctx, user.ID, user.Email, Profile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
	})
}

func (s *RegistrationService) sendLink(ctx context.Context, userID, email, name, token string) {
	err := s.mailer.SendRegistrationVerification(ctx, email, name, s.links.RegistrationVerification(token, userID))
	if err != nil {
		s.log.Error("Failed to send registration verification mail",
			zap.String("user_id", userID), zap.Error(err))
	}
}

// Verify confirms the account's email. Missing, mismatched and already used
// tokens all fail with ErrInvalidToken, an expired one with ErrTokenExpired.
// It never signs the user in.
func (s *RegistrationService) Verify(ctx context.Context, token, userID string) error {
	err := s.verify(ctx, token, userID)

	label := "success"
	if err != nil {
		label = verifyErrorLabel(err)
	}
	s.metrics.VerificationOutcomes.WithLabelValues(string(model.TokenKindRegistration), label).Inc()

	return err
}

func (s *RegistrationService) verify(ctx context.Context, token, userID string) error {
	if token == "" || userID == "" {
		return ErrInvalidToken
	}

	if err := security.CheckTokenShape(token); err != nil {
		return ErrInvalidToken
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.findUser(tx, "id = ?", userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInvalidToken
			}

			return err
		}

		tok, err := s.tokens.ForSubjectTx(tx, user.ID, model.TokenKindRegistration)
		if err != nil {
			return err
		}

		if tok == nil || subtle.ConstantTimeCompare([]byte(tok.Value), []byte(token)) != 1 {
			return ErrInvalidToken
		}

		res, err := s.tokens.consumeRowTx(tx, tok)
		if err != nil {
			return err
		}

		switch res.Status {
		case TokenExpired:
			return ErrTokenExpired
		case TokenValid:
		default:
			return ErrInvalidToken
		}

		now := s.Now().UTC()
		err = tx.Model(&model.UserAccount{}).
			Where("id = ?", user.ID).
			Updates(map[string]any{
				"email_verified":        true,
				"custom_email_verified": true,
				"email_verified_at":     now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to mark account verified, %w", err)
		}

		return nil
	})
}

// Login checks the credentials and returns a signed access token. Accounts
// that never confirmed their email can't sign in.
func (s *RegistrationService) Login(ctx context.Context, email, password string) (string, *model.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("%w, email and password are required", ErrMalformedInput)
	}

	user, err := s.findUser(s.db.WithContext(ctx), "email = ?", email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}

		return "", nil, err
	}

	ok, err := s.argon.VerifyPasswd(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("failed to verify password, %w", err)
	}

	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	if !user.CustomEmailVerified {
		return "", nil, ErrEmailNotVerified
	}

	jwt, err := s.access.Issue(user.ID, s.Now())
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token, %w", err)
	}

	return jwt, user, nil
}

func (s *RegistrationService) findUser(tx *gorm.DB, query string, args ...any) (*model.UserAccount, error) {
	var user model.UserAccount

	if err := tx.Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get account, %w", err)
	}

	if err := user.Validate(); err != nil {
		s.log.Error("Account record failed validation", zap.String("user_id", user.ID), zap.Error(err))
		return nil, fmt.Errorf("%w, account %s: %w", ErrInvalidRecord, user.ID, err)
	}

	return &user, nil
}
