package account

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openpress/identity/internal/config"
)

// Service is the lifecycle state machine over account state:
// unverified -> active -> deactivated -> gone. Its methods are the only
// sanctioned way to mutate lifecycle flags and token columns. "Gone" is not a
// stored state: it is re-derived from the restoration deadline at every check,
// so an account past its deadline is dead to login and restore even before the
// reaper physically deletes it.
type Service struct {
	config   *config.AuthConfig
	log      *zap.Logger
	repo     Repository
	tokens   *TokenService
	verifier *VerificationIssuer
	notifier Notifier
	now      func() time.Time
}

func NewService(
	config *config.AuthConfig,
	log *zap.Logger,
	repo Repository,
	tokens *TokenService,
	verifier *VerificationIssuer,
	notifier Notifier,
) *Service {
	return &Service{
		config:   config,
		log:      log,
		repo:     repo,
		tokens:   tokens,
		verifier: verifier,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func validateRegistration(username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if len(username) < 3 || len(username) > 32 {
		return fmt.Errorf("%w: username must be between 3 and 32 characters", ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (s *Service) checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates an unverified account with its dependent profile and
// issues an email verification token. If token delivery fails the whole
// registration is rolled back so the caller can retry and get a fresh token.
func (s *Service) Register(username, email, password string) (*Account, error) {
	username = normalize(username)
	email = normalize(email)

	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	for _, identifier := range []string{username, email} {
		if _, err := s.repo.FindByUsernameOrEmail(identifier); err == nil {
			return nil, ErrAccountExists
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	profile := &Profile{
		ID:        uuid.New(),
		AccountID: account.ID,
		Username:  username,
	}

	if err := s.repo.Create(account, profile); err != nil {
		return nil, err
	}

	if _, err := s.verifier.Issue(account, PurposeVerify); err != nil {
		if delErr := s.repo.DeleteProfileByAccountID(account.ID); delErr != nil {
			s.log.Error("failed to roll back profile after registration failure",
				zap.String("account_id", account.ID.String()),
				zap.Error(delErr))
		}
		if delErr := s.repo.Delete(account.ID); delErr != nil {
			s.log.Error("failed to roll back account after registration failure",
				zap.String("account_id", account.ID.String()),
				zap.Error(delErr))
		}
		return nil, err
	}

	s.log.Info("account registered",
		zap.String("account_id", account.ID.String()),
		zap.String("username", username))

	return account, nil
}

// VerifyEmail consumes a verification token and activates the account.
// Re-presenting the token after the account is active is a no-op success.
func (s *Service) VerifyEmail(token string) (*Account, error) {
	account, err := s.verifier.Consume(token, PurposeVerify)
	if err != nil {
		return nil, err
	}

	if account.IsVerified {
		return account, nil
	}

	account.IsVerified = true
	PurposeVerify.clear(account)
	if err := s.repo.Save(account); err != nil {
		return nil, err
	}

	s.log.Info("email verified", zap.String("account_id", account.ID.String()))
	return account, nil
}

// Login authenticates by username or email. The account must be active: an
// unverified, deactivated, or past-deadline account each fails with its own
// error so the client can offer the right next action.
func (s *Service) Login(identifier, password string) (*Account, *TokenPair, error) {
	identifier = normalize(identifier)
	if identifier == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username or email and password are required", ErrValidation)
	}

	account, err := s.repo.FindByUsernameOrEmail(identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.checkPasswordHash(password, "") // keep timing comparable
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	now := s.now()
	if account.GoneAt(now) {
		return nil, nil, ErrAccountGone
	}
	if account.IsDeactivated {
		return nil, nil, ErrDeactivated
	}
	if !account.IsVerified {
		return nil, nil, ErrNotVerified
	}

	if !s.checkPasswordHash(password, account.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return nil, nil, err
	}

	return account, pair, nil
}

// Logout clears the stored refresh token, invalidating the session.
func (s *Service) Logout(id uuid.UUID) error {
	account, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}

	account.RefreshToken = ""
	return s.repo.Save(account)
}

// ChangePassword re-hashes and stores a new password for an authenticated
// account after checking the current one.
func (s *Service) ChangePassword(id uuid.UUID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	account, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}

	if !s.checkPasswordHash(oldPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	account.PasswordHash = hash
	return s.repo.Save(account)
}

// ForgotPassword issues a password reset token for the account matching the
// given email.
func (s *Service) ForgotPassword(email string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	account, err := s.repo.FindByUsernameOrEmail(email)
	if err != nil {
		return err
	}

	_, err = s.verifier.Issue(account, PurposeReset)
	return err
}

// ValidateResetToken checks a reset token without consuming it, so a client
// can render the reset form only for live links.
func (s *Service) ValidateResetToken(token string) error {
	_, err := s.verifier.Consume(token, PurposeReset)
	return err
}

// ResetPassword consumes a reset token and stores the new password. The token
// is cleared in the same transition, so it can never be used twice.
func (s *Service) ResetPassword(token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	account, err := s.verifier.Consume(token, PurposeReset)
	if err != nil {
		return err
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	account.PasswordHash = hash
	PurposeReset.clear(account)
	if err := s.repo.Save(account); err != nil {
		return err
	}

	s.log.Info("password reset", zap.String("account_id", account.ID.String()))
	return nil
}

// Deactivate moves an active account into its grace period. The stored
// refresh token is cleared so any live session dies and a future restoration
// forces a fresh login.
func (s *Service) Deactivate(id uuid.UUID) error {
	account, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}

	if !account.IsVerified || account.IsDeactivated {
		return ErrStateConflict
	}

	now := s.now()
	deadline := now.Add(s.config.DeactivationGracePeriod)

	account.IsDeactivated = true
	account.DeactivatedAt = &now
	account.RestorationDeadline = &deadline
	account.RefreshToken = ""

	if err := s.repo.Save(account); err != nil {
		return err
	}

	if err := s.notifier.Send(account.Email, EmailAccountDeactivated, EmailPayload{Deadline: &deadline}); err != nil {
		s.log.Warn("failed to send deactivation notification",
			zap.String("account_id", account.ID.String()),
			zap.Error(err))
	}

	s.log.Info("account deactivated",
		zap.String("account_id", account.ID.String()),
		zap.Time("restoration_deadline", deadline))

	return nil
}

// RequestRestoration issues a restoration token for a deactivated account
// that is still inside its grace period.
func (s *Service) RequestRestoration(identifier string) error {
	identifier = normalize(identifier)
	if identifier == "" {
		return fmt.Errorf("%w: email or username is required", ErrValidation)
	}

	account, err := s.repo.FindByUsernameOrEmail(identifier)
	if err != nil {
		return err
	}

	if !account.IsDeactivated {
		return ErrStateConflict
	}
	if account.GoneAt(s.now()) {
		return ErrAccountGone
	}

	_, err = s.verifier.Issue(account, PurposeRestore)
	return err
}

// Restore consumes a restoration token and brings the account back to active.
// At or after the restoration deadline it fails exactly like login does, no
// matter whether the reaper has already run.
func (s *Service) Restore(token string) error {
	account, err := s.verifier.Consume(token, PurposeRestore)
	if err != nil {
		// A restoration token expires at the restoration deadline, so an
		// expired token means the account is gone.
		if errors.Is(err, ErrTokenExpired) {
			return ErrAccountGone
		}
		return err
	}

	if !account.IsDeactivated {
		return ErrStateConflict
	}
	if account.GoneAt(s.now()) {
		return ErrAccountGone
	}

	account.IsDeactivated = false
	account.DeactivatedAt = nil
	account.RestorationDeadline = nil
	PurposeRestore.clear(account)

	if err := s.repo.Save(account); err != nil {
		return err
	}

	if err := s.notifier.Send(account.Email, EmailAccountRestored, EmailPayload{}); err != nil {
		s.log.Warn("failed to send restoration notification",
			zap.String("account_id", account.ID.String()),
			zap.Error(err))
	}

	s.log.Info("account restored", zap.String("account_id", account.ID.String()))
	return nil
}
