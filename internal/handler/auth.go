package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/middleware"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/repository"
)

type AuthHandler struct {
	users  *repository.UserRepository
	tokens *middleware.Tokens
}

func NewAuthHandler(users *repository.UserRepository, tokens *middleware.Tokens) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type registerRequest struct {
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	Password      string     `json:"password"`
	Role          model.Role `json:"role"`
	AcademicLevel string     `json:"academic_level"`
}

type authResponse struct {
	Token string           `json:"token"`
	User  model.UserPublic `json:"user"`
}

// Register creates an account and returns a token so the client can connect
// straight away.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FullName == "" || req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "full_name, email and a password of 8+ characters are required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if req.Role != model.RoleStudent && req.Role != model.RoleLecturer {
		writeError(w, http.StatusBadRequest, "role must be student or lecturer")
		return
	}

	if _, err := h.users.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("auth register lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorf("auth register hash: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	u := &model.User{
		ID:            uuid.New().String(),
		FullName:      req.FullName,
		Email:         req.Email,
		PasswordHash:  string(hash),
		Role:          req.Role,
		AcademicLevel: req.AcademicLevel,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		logger.Errorf("auth register create: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.tokens.Generate(u.ID, u.Email)
	if err != nil {
		logger.Errorf("auth register token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: u.ToPublic()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks credentials and issues a token. Wrong email and wrong password
// answer identically.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Errorf("auth login lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Generate(u.ID, u.Email)
	if err != nil {
		logger.Errorf("auth login token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u.ToPublic()})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		logger.Errorf("auth me: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, u.ToPublic())
}
