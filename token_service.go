package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService signs and verifies the two stateless token classes. It has
// no knowledge of revocation; callers layer the RevocationRegistry on top.
type TokenService interface {
	IssueAccess(user *User) (string, error)
	IssueRefresh(user *User) (string, time.Time, error)
	ValidateAccess(tokenString string) (*AccessClaims, error)
	ValidateRefresh(tokenString string) (*RefreshClaims, error)
	AccessTTL() time.Duration
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance from the Config's
// signing secrets and lifetimes.
func NewTokenService(cfg Config, logger Logger) *TokenServiceImpl {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		accessKey:  []byte(cfg.AccessSigningKey),
		refreshKey: []byte(cfg.RefreshSigningKey),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (ts *TokenServiceImpl) WithClock(clock func() time.Time) *TokenServiceImpl {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// AccessTTL returns the configured access token lifetime.
func (ts *TokenServiceImpl) AccessTTL() time.Duration {
	return ts.accessTTL
}

// IssueAccess signs a short-lived access token carrying the subject id,
// name, email, and role.
func (ts *TokenServiceImpl) IssueAccess(user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	now := ts.now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.aud(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
		Name:     user.Name,
		Email:    user.Email,
		UserRole: user.Role,
	}

	return ts.sign(claims, ts.accessKey)
}

// IssueRefresh signs a long-lived refresh token carrying only the subject
// id, and returns its expiry so the caller can record it in the registry.
func (ts *TokenServiceImpl) IssueRefresh(user *User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, goerrors.New("user must not be nil", goerrors.CategoryInternal)
	}

	now := ts.now()
	expiresAt := now.Add(ts.refreshTTL)
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.aud(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        newTokenID(),
		},
	}

	signed, err := ts.sign(claims, ts.refreshKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccess parses and validates an access token, returning structured
// claims. Returns a typed error, never panics.
func (ts *TokenServiceImpl) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(tokenString, ts.accessKey, claims, TokenClassAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefresh parses and validates a refresh token against the refresh
// secret. Any structural failure maps to ErrInvalidRefreshToken so replayed
// and malformed tokens are indistinguishable.
func (ts *TokenServiceImpl) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(tokenString, ts.refreshKey, claims, TokenClassRefresh); err != nil {
		return nil, ErrInvalidRefreshToken
	}
	return claims, nil
}

func (ts *TokenServiceImpl) sign(claims jwt.Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

func (ts *TokenServiceImpl) parse(tokenString string, key []byte, claims jwt.Claims, class TokenClass) error {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired.Clone().
				WithMetadata(map[string]any{"token_class": class})
		}
		return goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithMetadata(map[string]any{"token_class": class})
	}

	if !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims", "token_class", class)
		return ErrTokenMalformed.Clone().
			WithMetadata(map[string]any{"token_class": class})
	}

	return nil
}

func (ts *TokenServiceImpl) aud() jwt.ClaimStrings {
	if len(ts.audience) == 0 {
		return nil
	}
	aud := make(jwt.ClaimStrings, len(ts.audience))
	copy(aud, ts.audience)
	return aud
}
