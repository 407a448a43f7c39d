package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the successful login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// Authenticate checks password against the operator's bcrypt hash.
func (s *Service) Authenticate(username, password string) bool {
	hash, ok := s.accounts[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// LoginHandler handles operator authentication
func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
		return
	}

	if !s.Authenticate(req.Username, req.Password) {
		zap.L().Info("auth: login failed", zap.String("username", req.Username))
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	token, expires, err := s.GenerateToken(req.Username, RoleOperator)
	if err != nil {
		zap.L().Error("auth: generate token", zap.Error(err))
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	zap.L().Info("auth: login", zap.String("username", req.Username))
	json.NewEncoder(w).Encode(LoginResponse{
		Token:     token,
		ExpiresAt: expires,
		Username:  req.Username,
		Role:      RoleOperator,
	})
}
