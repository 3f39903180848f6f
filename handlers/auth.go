package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alghanim/agentpulse/config"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues and checks the dashboard JWTs.
type AuthHandler struct {
	enabled      bool
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	logger       *zap.Logger
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}

// NewAuthHandler prepares the signing secret and the password hash. A missing
// secret or password is generated and reported in the log.
func NewAuthHandler(cfg config.AuthConfig, logger *zap.Logger) (*AuthHandler, error) {
	h := &AuthHandler{enabled: cfg.Enabled, ttl: cfg.TokenTTL, logger: logger}
	if h.ttl <= 0 {
		h.ttl = 24 * time.Hour
	}

	if cfg.JWTSecret != "" {
		h.secret = []byte(cfg.JWTSecret)
	} else {
		h.secret = []byte(randomHex(32))
		if cfg.Enabled {
			logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive restarts")
		}
	}

	switch {
	case cfg.PasswordHash != "":
		h.passwordHash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("auth: hash password: %w", err)
		}
		h.passwordHash = hash
	case cfg.Enabled:
		password := randomHex(8)
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("auth: hash password: %w", err)
		}
		h.passwordHash = hash
		logger.Warn("DASHBOARD_PASSWORD not set, generated a one-time password", zap.String("password", password))
	}
	return h, nil
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(h.passwordHash) == 0 || bcrypt.CompareHashAndPassword(h.passwordHash, []byte(body.Password)) != nil {
		h.logger.Info("rejected login", zap.String("remote", r.RemoteAddr))
		respondError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
	})
	signed, err := token.SignedString(h.secret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": signed})
}

// Logout handles POST /api/auth/logout. Tokens are stateless; the client
// drops its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	_, err := h.validateToken(r)
	respondJSON(w, http.StatusOK, map[string]bool{
		"authenticated": err == nil,
		"auth_enabled":  h.enabled,
	})
}

func (h *AuthHandler) validateToken(r *http.Request) (*jwt.Token, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, errors.New("missing bearer token")
	}
	return jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(t *jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
}

// publicWrite reports the write endpoints reachable without a token.
func publicWrite(r *http.Request) bool {
	p := r.URL.Path
	return p == "/api/auth/login" || p == "/api/chat" ||
		(r.Method == http.MethodPost && strings.HasPrefix(p, "/api/agents/") && strings.HasSuffix(p, "/chat"))
}

// RequireAuth protects write endpoints (POST/PUT/DELETE). Reads, login and
// chat always pass.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.enabled || r.Method == http.MethodGet || r.Method == http.MethodOptions || publicWrite(r) {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := h.validateToken(r); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
