package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Token purposes. A refresh token can only be exchanged, never used as a
// bearer credential, and vice versa.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// ErrInvalidToken covers malformed, expired and wrong-purpose tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carried by both token kinds.
type Claims struct {
	UserID   int64  `json:"user_id"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses the HS256 token pair.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresIn  int64  `json:"access_expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Issue signs a fresh access+refresh pair for the user.
func (t *TokenIssuer) Issue(userID int64) (TokenPair, error) {
	access, err := t.sign(userID, TokenUseAccess, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(userID, TokenUseRefresh, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  int64(t.accessTTL.Seconds()),
		RefreshExpiresIn: int64(t.refreshTTL.Seconds()),
	}, nil
}

func (t *TokenIssuer) sign(userID int64, use string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "pathshala",
			Subject:   "dashboard",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", use, err)
	}
	return signed, nil
}

// Parse validates a token string against the expected purpose.
func (t *TokenIssuer) Parse(tokenString, expectedUse string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenUse != expectedUse {
		return nil, fmt.Errorf("%w: wrong token purpose", ErrInvalidToken)
	}
	return claims, nil
}
