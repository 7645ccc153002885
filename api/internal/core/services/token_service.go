package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// VelaClaims holds the stateless authorization data
type VelaClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"` // 🛡️ Distinguish between 'access' and 'refresh'
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// GenerateTokenPair mints both the short-lived access token and the long-lived refresh token
func (s *TokenService) GenerateTokenPair(user *domain.User) (string, string, error) {
	// 1. Mint Access Token (15 Minutes) - Contains the role for authorization
	accessClaims := VelaClaims{
		Email:     user.Email,
		Role:      user.Role,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "vela-api",
		},
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	signedAccess, err := accessToken.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	// 2. Mint Refresh Token (7 Days) - Only contains the Subject ID
	refreshClaims := VelaClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "vela-api",
			ID:        uuid.New().String(), // JTI for potential database revocation tracking
		},
	}
	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	signedRefresh, err := refreshToken.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signedAccess, signedRefresh, nil
}

// VerifyAccessToken validates signature, expiry, and token type, returning
// the embedded claims for the middleware to act on.
func (s *TokenService) VerifyAccessToken(tokenString string) (*VelaClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, fmt.Errorf("invalid token type: expected access")
	}
	return claims, nil
}

// VerifyRefreshToken validates the signature, expiry, and token type
func (s *TokenService) VerifyRefreshToken(tokenString string) (uuid.UUID, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return uuid.Nil, err
	}

	// 🛡️ Explicitly prevent an Access token from being used as a Refresh token
	if claims.TokenType != "refresh" {
		return uuid.Nil, fmt.Errorf("invalid token type: expected refresh")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed subject claim")
	}
	return userID, nil
}

func (s *TokenService) parse(tokenString string) (*VelaClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &VelaClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 🛡️ Zero-Trust: Force the signing method check
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token signature or expired: %w", err)
	}

	claims, ok := token.Claims.(*VelaClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
