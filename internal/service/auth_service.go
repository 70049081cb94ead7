package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies tokens issued by the identity provider. Session
// issuance itself lives outside this service; GenerateToken exists for
// operator tooling and tests.
type AuthService interface {
	ValidateToken(tokenString string) (*Caller, error)
	GenerateToken(caller Caller, ttl time.Duration) (string, error)
}

type identityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type authService struct {
	secret []byte
	issuer string
}

func NewAuthService(secret, issuer string) AuthService {
	return &authService{secret: []byte(secret), issuer: issuer}
}

func (s *authService) ValidateToken(tokenString string) (*Caller, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, ErrUnauthorized
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return &Caller{
		AccountID:   claims.Subject,
		Email:       normalizeEmail(claims.Email),
		DisplayName: claims.Name,
	}, nil
}

func (s *authService) GenerateToken(caller Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		Email: caller.Email,
		Name:  caller.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.AccountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
