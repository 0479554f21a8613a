package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/config"
)

// TokenPurpose selects which sensitive action a verification token authorizes.
type TokenPurpose string

const (
	PurposeVerify  TokenPurpose = "verify"
	PurposeReset   TokenPurpose = "reset"
	PurposeRestore TokenPurpose = "restore"
)

// Restoration tokens share the verify column: an account can only be
// deactivated after it was verified, so the column is free by then.
func (p TokenPurpose) outstanding(a *Account) (string, *time.Time) {
	if p == PurposeReset {
		return a.ForgotPasswordToken, a.ForgotPasswordExpiry
	}
	return a.VerifyToken, a.VerifyTokenExpiry
}

func (p TokenPurpose) store(a *Account, token string, expiry time.Time) {
	if p == PurposeReset {
		a.ForgotPasswordToken = token
		a.ForgotPasswordExpiry = &expiry
		return
	}
	a.VerifyToken = token
	a.VerifyTokenExpiry = &expiry
}

func (p TokenPurpose) clear(a *Account) {
	if p == PurposeReset {
		a.ForgotPasswordToken = ""
		a.ForgotPasswordExpiry = nil
		return
	}
	a.VerifyToken = ""
	a.VerifyTokenExpiry = nil
}

func (p TokenPurpose) emailKind() EmailKind {
	switch p {
	case PurposeReset:
		return EmailReset
	case PurposeRestore:
		return EmailRestoreRequest
	default:
		return EmailVerify
	}
}

type verificationClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerificationIssuer generates and consumes the single-use, time-boxed tokens
// that authorize email verification, password reset, and account restoration.
// Consumption never clears the stored token itself; the state transition the
// token authorizes clears it atomically, which is what makes a token
// single-use.
type VerificationIssuer struct {
	config   *config.AuthConfig
	log      *zap.Logger
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

func NewVerificationIssuer(config *config.AuthConfig, log *zap.Logger, repo Repository, notifier Notifier) *VerificationIssuer {
	return &VerificationIssuer{
		config:   config,
		log:      log,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Issue generates a token for the given purpose, stores it on the account
// (overwriting any outstanding token of the same purpose), and asks the
// notifier to deliver it. If delivery fails the stored token is rolled back
// so the caller can safely retry.
func (v *VerificationIssuer) Issue(account *Account, purpose TokenPurpose) (string, error) {
	now := v.now()

	var expiry time.Time
	if purpose == PurposeRestore {
		if account.RestorationDeadline == nil {
			return "", ErrStateConflict
		}
		expiry = *account.RestorationDeadline
	} else {
		expiry = now.Add(v.config.VerificationTokenTTL)
	}

	claims := &verificationClaims{
		Purpose: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(v.config.VerificationTokenSecret))
	if err != nil {
		return "", err
	}

	purpose.store(account, token, expiry)
	if err := v.repo.Save(account); err != nil {
		return "", err
	}

	payload := EmailPayload{Token: token}
	if purpose == PurposeRestore {
		payload.Deadline = account.RestorationDeadline
	}
	if err := v.notifier.Send(account.Email, purpose.emailKind(), payload); err != nil {
		purpose.clear(account)
		if saveErr := v.repo.Save(account); saveErr != nil {
			v.log.Error("failed to roll back token after notify failure",
				zap.String("account_id", account.ID.String()),
				zap.Error(saveErr))
		}
		return "", fmt.Errorf("delivering %s token: %w", purpose, err)
	}

	return token, nil
}

// Consume resolves a presented token to its account. It distinguishes three
// outcomes: ErrNotFound (the token matches nothing), ErrTokenExpired (found
// but past expiry; the field is left in place since a fresh Issue overwrites
// it), or success. Consuming a verify token for an already verified account
// succeeds without mutation so a double-clicked email link is not an error.
func (v *VerificationIssuer) Consume(token string, purpose TokenPurpose) (*Account, error) {
	claims := &verificationClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(v.config.VerificationTokenSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Purpose != string(purpose) {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	account, err := v.repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if purpose == PurposeVerify && account.IsVerified {
		return account, nil
	}

	stored, expiry := purpose.outstanding(account)
	if stored != token {
		return nil, ErrNotFound
	}
	if expiry == nil || !v.now().Before(*expiry) {
		return nil, ErrTokenExpired
	}

	return account, nil
}
