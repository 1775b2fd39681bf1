package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cubedrop/backend/internal/domain"
)

// Claims represents the JWT claims for an authenticated player
type Claims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// Service verifies bearer credentials and issues tokens
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewService creates a new auth service
func NewService(jwtSecret string, tokenDuration time.Duration) *Service {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
	}
}

// HashPassword creates a bcrypt hash of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares a password against a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken creates a JWT for an authenticated player
func (s *Service) GenerateToken(playerID string) (string, error) {
	claims := Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// Verify validates a bearer token and returns the verified claims.
// Any validation failure is reported as domain.ErrUnauthorized.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("validating token: %w", domain.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.PlayerID == "" {
		return nil, fmt.Errorf("missing player claim: %w", domain.ErrUnauthorized)
	}

	return claims, nil
}
