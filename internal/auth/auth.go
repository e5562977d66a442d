// internal/auth/auth.go
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"leakwatch/internal/config"
	"leakwatch/internal/data"
	"leakwatch/internal/utils"
)

const (
	issuer       = "leakwatch"
	hashCost     = 12
	IngestHeader = "X-Ingest-Key"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrNoSecret        = errors.New("jwt secret not configured")
	ErrUnknownUser     = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

type ctxKey int

const (
	usernameKey ctxKey = iota
	roleKey
)

// AuthManager handles authentication and authorization
type AuthManager struct {
	config config.AuthConfig
	now    func() time.Time
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func NewAuthManager(cfg config.AuthConfig) *AuthManager {
	return &AuthManager{config: cfg, now: time.Now}
}

func (am *AuthManager) expiry() time.Duration {
	if am.config.JWTExpiration <= 0 {
		return time.Hour
	}
	return time.Duration(am.config.JWTExpiration) * time.Minute
}

// GenerateJWT creates a new JWT token for a user
func (am *AuthManager) GenerateJWT(username, role string) (string, time.Time, error) {
	now := am.now()
	expirationTime := now.Add(am.expiry())

	claims := &Claims{
		Username: username,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			Subject:   username,
			ExpiresAt: expirationTime.Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    issuer,
		},
	}

	if am.config.JWTSecret == "" {
		return "", time.Time{}, ErrNoSecret
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expirationTime, nil
}

// ValidateJWT validates the JWT token
func (am *AuthManager) ValidateJWT(tokenString string) (*Claims, error) {
	if am.config.JWTSecret == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, ErrNoSecret)
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAPIKey checks if the provided API key is valid
func (am *AuthManager) ValidateAPIKey(apiKey string) bool {
	for _, validKey := range am.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return true
		}
	}
	return false
}

// AuthenticateUser validates username and password and returns the user's role.
func (am *AuthManager) AuthenticateUser(username, password string) (string, error) {
	for _, user := range am.config.Users {
		if user.Username == username {
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				return "", ErrInvalidPassword
			}
			return user.Role, nil
		}
	}
	return "", ErrUnknownUser
}

// Login authenticates a user and issues a token.
func (am *AuthManager) Login(username, password string) (string, time.Time, error) {
	role, err := am.AuthenticateUser(username, password)
	if err != nil {
		return "", time.Time{}, err
	}
	return am.GenerateJWT(username, role)
}

// HashPassword creates a bcrypt hash from a password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

// Username returns the user stored in ctx by JWTMiddleware.
func Username(ctx context.Context) string {
	s, _ := ctx.Value(usernameKey).(string)
	return s
}

func Role(ctx context.Context) string {
	s, _ := ctx.Value(roleKey).(string)
	return s
}

// JWTMiddleware requires a valid bearer token.
func (am *AuthManager) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			utils.RespondWithError(w, data.Unauthorized(data.ErrorCodeUnauthorized, "Authorization header required"))
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			utils.RespondWithError(w, data.Unauthorized(data.ErrorCodeInvalidFormat, "Invalid authorization format"))
			return
		}

		claims, err := am.ValidateJWT(bearerToken[1])
		if err != nil {
			utils.RespondWithError(w, data.Unauthorized(data.ErrorCodeInvalidToken, "Invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
		ctx = context.WithValue(ctx, roleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKeyMiddleware requires one of the configured ingest keys in X-Ingest-Key.
func (am *AuthManager) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get(IngestHeader)
		if apiKey == "" || !am.ValidateAPIKey(apiKey) {
			utils.RespondWithError(w, data.Unauthorized(data.ErrorCodeInvalidAPIKey, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
