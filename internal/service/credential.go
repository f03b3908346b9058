package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/auth"
	"github.com/sakif/photo-wall/internal/clock"
	"github.com/sakif/photo-wall/internal/mailer"
	"github.com/sakif/photo-wall/internal/model"
	"github.com/sakif/photo-wall/internal/repository"
)

const (
	// CodeTTL is how long an issued code can be verified.
	CodeTTL = 5 * time.Minute

	codeSubject = "Your OTP Code"
	codeBody    = "Your OTP code is: %s. It is valid for 5 minutes."
)

// EmailValidator normalises an address and rejects ones not worth mailing.
// *emailcheck.Validator is the production implementation.
type EmailValidator interface {
	Normalize(ctx context.Context, raw string) (string, error)
}

// CredentialDeps bundles CredentialService's collaborators. There are
// enough of them that positional parameters stop being readable.
type CredentialDeps struct {
	Users        repository.UserRepository
	Credentials  repository.CredentialRepository
	Emails       EmailValidator
	Mail         mailer.Sender
	Hasher       *auth.CodeHasher
	Tokens       *auth.TokenService
	Clock        clock.Clock            // nil means clock.RealClock
	NewCode      func() (string, error) // nil means auth.GenerateCode
	DefaultQuota int                    // quota for identities created on first request
	MailTimeout  time.Duration          // bound on one delivery attempt; 0 means none
}

// CredentialService issues one-time codes and trades them for session tokens.
//
// LOGIN CYCLE:
//
//	RequestCode(email)       → identity ensured, code hashed + stored, code emailed
//	VerifyCode(email, code)  → code checked + consumed, token minted
//
// Only one code per email is live at a time. RequestCode overwrites the row,
// so the previous code stops working the moment a new one is issued.
type CredentialService struct {
	users        repository.UserRepository
	creds        repository.CredentialRepository
	emails       EmailValidator
	mail         mailer.Sender
	hasher       *auth.CodeHasher
	tokens       *auth.TokenService
	clock        clock.Clock
	newCode      func() (string, error)
	defaultQuota int
	mailTimeout  time.Duration
	logger       *slog.Logger
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(deps CredentialDeps, logger *slog.Logger) *CredentialService {
	s := &CredentialService{
		users:        deps.Users,
		creds:        deps.Credentials,
		emails:       deps.Emails,
		mail:         deps.Mail,
		hasher:       deps.Hasher,
		tokens:       deps.Tokens,
		clock:        deps.Clock,
		newCode:      deps.NewCode,
		defaultQuota: deps.DefaultQuota,
		mailTimeout:  deps.MailTimeout,
		logger:       logger,
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.newCode == nil {
		s.newCode = auth.GenerateCode
	}
	return s
}

// RequestCode issues a fresh code for email and mails it.
//
// ORDER MATTERS:
// The credential is written before the mail goes out. If delivery fails the
// caller gets apperror.ErrDeliveryFailed, but the stored code stays valid
// until it expires; nothing is rolled back. A retry is simply another
// RequestCode, which overwrites the row again.
func (s *CredentialService) RequestCode(ctx context.Context, rawEmail string) error {
	email, err := s.emails.Normalize(ctx, rawEmail)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.InvalidEmail(err.Error())
	}

	user, err := s.users.GetOrCreateByEmail(ctx, email, s.defaultQuota)
	if err != nil {
		return fmt.Errorf("service/credential: ensuring identity for %s: %w", email, err)
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("service/credential: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("service/credential: %w", err)
	}

	now := s.clock.Now()
	cred := &model.Credential{
		Email:     email,
		CodeHash:  hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(CodeTTL),
	}
	if err := s.creds.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("service/credential: storing code for %s: %w", email, err)
	}

	sendCtx, cancel := withTimeout(ctx, s.mailTimeout)
	defer cancel()
	err = s.mail.Send(sendCtx, mailer.Message{
		To:      email,
		Subject: codeSubject,
		Body:    fmt.Sprintf(codeBody, code),
	})
	if err != nil {
		s.logger.Error("code delivery failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return apperror.DeliveryFailed(err)
	}

	s.logger.Info("code issued",
		slog.String("userID", user.ID),
		slog.String("email", email),
		slog.Time("expiresAt", cred.ExpiresAt),
	)
	return nil
}

// VerifyResult is what a successful VerifyCode hands back: the bearer token
// and the identity it was minted for.
type VerifyResult struct {
	Token string
	User  *model.User
}

// VerifyCode checks code against the live credential for email and, on a
// match, consumes it and mints a session token.
//
// Every way of failing (no credential, expired, already used, wrong code)
// is reported as the same apperror.ErrInvalidOrExpired, so the response
// never tells a guesser which part was wrong. There is no attempt counter:
// the five-minute expiry is the only limit enforced here.
func (s *CredentialService) VerifyCode(ctx context.Context, rawEmail, code string) (*VerifyResult, error) {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, apperror.InvalidOrExpired()
	}

	cred, err := s.creds.GetCredential(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidOrExpired()
		}
		return nil, fmt.Errorf("service/credential: loading code for %s: %w", email, err)
	}

	if !cred.Live(s.clock.Now()) || cred.ConsumedAt != nil {
		return nil, apperror.InvalidOrExpired()
	}

	if err := s.hasher.Match(cred.CodeHash, code); err != nil {
		if errors.Is(err, auth.ErrCodeMismatch) {
			return nil, apperror.InvalidOrExpired()
		}
		return nil, fmt.Errorf("service/credential: %w", err)
	}

	consumed, err := s.creds.ConsumeCredential(ctx, email, cred.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("service/credential: consuming code for %s: %w", email, err)
	}
	if !consumed {
		// Another verification won the race, or a new code replaced this one.
		return nil, apperror.InvalidOrExpired()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/credential: loading identity for %s: %w", email, err)
	}

	token, err := s.tokens.Generate(auth.Principal{UserID: user.ID, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("service/credential: minting token for %s: %w", user.ID, err)
	}

	s.logger.Info("code verified",
		slog.String("userID", user.ID),
		slog.String("role", user.Role),
	)

	return &VerifyResult{Token: token, User: user}, nil
}

// CurrentUser re-reads the identity a token names. A deleted or deactivated
// identity is Unauthenticated even though its token is still signed.
func (s *CredentialService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("User not found")
		}
		return nil, fmt.Errorf("service/credential: loading user %s: %w", userID, err)
	}
	if !user.Active {
		return nil, apperror.Unauthenticated("User is inactive")
	}
	return user, nil
}
