// Package auth handles API authentication: bcrypt-hashed user credentials,
// SHA256-hashed API keys and HMAC-signed JWTs.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/askdb/askdb/internal/errors"
)

// User represents a user in the system
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
	Active       bool     `json:"active"`
}

// APIKey represents an API key for authentication
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key,omitempty"` // Plaintext, only returned at creation
	HashedKey  string    `json:"-"`
	UserID     string    `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Active     bool      `json:"active"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	AllowAnonymous bool
}

// Manager handles authentication and user management. State is in-memory;
// users and keys are provisioned at startup or through the admin API.
type Manager struct {
	config         Config
	mu             sync.RWMutex
	users          map[string]*User   // userID -> User
	userByUsername map[string]*User   // username -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
}

// NewManager creates an authentication manager
func NewManager(config Config) *Manager {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if config.JWTSecret == "" {
		// Ephemeral secret; tokens do not survive restarts without a
		// configured secret.
		config.JWTSecret = generateRandomString(32)
	}

	return &Manager{
		config:         config,
		users:          make(map[string]*User),
		userByUsername: make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
	}
}

// AllowAnonymous reports whether unauthenticated requests are permitted
func (m *Manager) AllowAnonymous() bool {
	return m.config.AllowAnonymous
}

// CreateUser creates a new user with a bcrypt-hashed password
func (m *Manager) CreateUser(username, password string, roles []string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.userByUsername[username]; exists {
		return nil, fmt.Errorf("user already exists: %s", username)
	}

	var passwordHash string
	if password != "" {
		hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hashedBytes)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        roles,
		Active:       true,
	}

	m.users[user.ID] = user
	m.userByUsername[username] = user

	return user, nil
}

// Authenticate checks a username/password pair and returns a signed JWT
func (m *Manager) Authenticate(username, password string) (string, *User, error) {
	m.mu.RLock()
	user, exists := m.userByUsername[username]
	m.mu.RUnlock()

	if !exists || !user.Active {
		return "", nil, apperrors.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperrors.NewInvalidCredentialsError()
	}

	token, err := m.CreateJWTToken(user)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// CreateAPIKey creates a new API key for a user. The plaintext key is only
// present on the returned value; storage keeps the hash.
func (m *Manager) CreateAPIKey(userID, name string, expiresIn time.Duration) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[userID]; !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	key := generateAPIKey()
	hashedKey := hashAPIKey(key)

	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		HashedKey: hashedKey,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(expiresIn),
		Active:    true,
	}

	m.apiKeys[hashedKey] = apiKey

	return apiKey, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (m *Manager) ValidateAPIKey(key string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	apiKey, exists := m.apiKeys[hashAPIKey(key)]
	if !exists || !apiKey.Active {
		return nil, apperrors.NewInvalidCredentialsError()
	}

	if time.Now().After(apiKey.ExpiresAt) {
		return nil, apperrors.NewInvalidCredentialsError().WithDetails("API key has expired")
	}

	user, exists := m.users[apiKey.UserID]
	if !exists || !user.Active {
		return nil, apperrors.NewInvalidCredentialsError()
	}

	apiKey.LastUsedAt = time.Now()

	return user, nil
}

// RevokeAPIKey revokes an API key by ID
func (m *Manager) RevokeAPIKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, apiKey := range m.apiKeys {
		if apiKey.ID == keyID {
			apiKey.Active = false
			return nil
		}
	}

	return fmt.Errorf("API key not found: %s", keyID)
}

// CreateJWTToken creates a signed JWT for a user
func (m *Manager) CreateJWTToken(user *User) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "askdb",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeTokenCreation, "Failed to sign token")
	}

	return tokenString, nil
}

// ValidateJWTToken validates a JWT and returns the claims
func (m *Manager) ValidateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	m.mu.RLock()
	user, exists := m.users[claims.UserID]
	m.mu.RUnlock()

	if !exists || !user.Active {
		return nil, fmt.Errorf("user not found or inactive")
	}

	return claims, nil
}

// GetUser retrieves a user by ID
func (m *Manager) GetUser(userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	return user, nil
}

// generateRandomString generates a hex string from random bytes
func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// generateAPIKey generates a new API key with "adb_" prefix
func generateAPIKey() string {
	return "adb_" + generateRandomString(32)
}

// hashAPIKey hashes an API key using SHA256
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
