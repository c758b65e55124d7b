package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rekapin/backend/internal/domain"
)

const (
	RoleBridge = "bridge"
	RoleViewer = "viewer"

	tokenIssuer = "rekapin"
)

var errInvalidCredentials = errors.New("invalid client credentials")

// ClientCredential is a machine client allowed to exchange its secret for a
// token. SecretHash is a bcrypt hash; plain secrets are never stored.
type ClientCredential struct {
	ClientID   string
	SecretHash string
	Role       string
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	clients  map[string]ClientCredential
}

type bridgeClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, clients ...ClientCredential) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	manager := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		clients:  make(map[string]ClientCredential, len(clients)),
	}
	for _, client := range clients {
		id := strings.TrimSpace(client.ClientID)
		if id == "" || !IsSecretHash(client.SecretHash) {
			continue
		}
		if client.Role == "" {
			client.Role = RoleBridge
		}
		client.ClientID = id
		manager.clients[id] = client
	}
	return manager
}

func (a *AuthManager) IssueToken(req domain.TokenRequest) (domain.TokenResponse, error) {
	clientID := strings.TrimSpace(req.ClientID)
	client, ok := a.clients[clientID]
	if !ok {
		return domain.TokenResponse{}, errInvalidCredentials
	}
	if !verifySecret(client.SecretHash, req.ClientSecret) {
		return domain.TokenResponse{}, errInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(client.ClientID, client.Role, expiresAt)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	return domain.TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &bridgeClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{ClientID: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(clientID, role string, expiresAt time.Time) (string, error) {
	claims := bridgeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifySecret(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !IsSecretHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func IsSecretHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
