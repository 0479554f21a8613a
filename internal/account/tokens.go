package account

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/config"
)

// Principal identifies the authenticated caller of a request. It is resolved
// from the access token and threaded explicitly into handlers; nothing is
// attached to shared request state.
type Principal struct {
	ID       uuid.UUID
	Email    string
	Username string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccessClaims is the claim set of an access token. Subject carries the
// account id.
type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService mints and validates the two bearer credentials used by every
// authenticated request. It owns the single-outstanding-refresh-token
// invariant: issuing a pair overwrites the stored refresh token, invalidating
// the previous one immediately.
type TokenService struct {
	config *config.AuthConfig
	log    *zap.Logger
	repo   Repository
	now    func() time.Time
}

func NewTokenService(config *config.AuthConfig, log *zap.Logger, repo Repository) *TokenService {
	return &TokenService{
		config: config,
		log:    log,
		repo:   repo,
		now:    time.Now,
	}
}

// IssuePair mints a new access/refresh pair and persists the refresh token on
// the account, replacing any prior value.
func (s *TokenService) IssuePair(account *Account) (*TokenPair, error) {
	now := s.now()

	accessClaims := &AccessClaims{
		Email:    account.Email,
		Username: account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return nil, err
	}

	refreshClaims := &jwt.RegisteredClaims{
		Subject:   account.ID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.RefreshTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.config.RefreshTokenSecret))
	if err != nil {
		return nil, err
	}

	account.RefreshToken = refreshToken
	if err := s.repo.Save(account); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Rotate exchanges a refresh token for a fresh pair. The presented token must
// match the stored one exactly; a previously valid but already-rotated token
// fails the same way a forged one does, so a stolen token cannot be replayed
// after the legitimate client rotates again.
func (s *TokenService) Rotate(presented string) (*TokenPair, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(presented, claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.RefreshTokenSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	account, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if account.RefreshToken == "" || presented != account.RefreshToken {
		return nil, ErrInvalidToken
	}

	return s.IssuePair(account)
}

// VerifyAccess validates an access token's signature and expiry. It does not
// touch persistent state; it runs on every authenticated request.
func (s *TokenService) VerifyAccess(tokenString string) (*Principal, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.AccessTokenSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Principal{
		ID:       id,
		Email:    claims.Email,
		Username: claims.Username,
	}, nil
}
