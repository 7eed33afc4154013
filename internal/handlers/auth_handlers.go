package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ghclone/ghclone/internal/middleware"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/service"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// AuthFlow is the registration and session API the handlers drive.
type AuthFlow interface {
	Register(ctx context.Context, reg models.Registration) (*models.Registration, error)
	Verify(ctx context.Context, email, code string, candidate models.Registration) error
	ResendOTP(ctx context.Context, email string) (string, error)
	Login(ctx context.Context, email, password string) (*models.IssuedToken, error)
	Logout(ctx context.Context, claims *service.Claims) error
}

type AuthHandlers struct {
	auth   AuthFlow
	logger *logrus.Logger
}

func NewAuthHandlers(auth AuthFlow, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		auth:   auth,
		logger: logger,
	}
}

// OTPValue accepts the submitted code as either a JSON string or a JSON
// number.
type OTPValue string

func (v *OTPValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = OTPValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a string or a number")
	}
	*v = OTPValue(n.String())
	return nil
}

type VerifyRequest struct {
	Email    string              `json:"email"`
	Value    OTPValue            `json:"value"`
	UserData models.Registration `json:"userData"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

type RegisterResponse struct {
	Message  string              `json:"message"`
	Email    string              `json:"email"`
	UserData models.Registration `json:"userData"`
}

type LoginResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ProfileResponse struct {
	User *service.Claims `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "error while creating user.", err.Error())
		return
	}

	reg, err := h.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			h.respondWithError(w, http.StatusBadRequest, "error while creating user.", err.Error())
		case errors.Is(err, models.ErrDelivery):
			h.respondWithError(w, http.StatusInternalServerError, "Failed to send verification email.", "Failed to send email")
		default:
			h.respondWithServiceError(w, err)
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, RegisterResponse{
		Message:  "User created successfully. Please check your email for OTP.",
		Email:    reg.Email,
		UserData: *reg,
	})
}

func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body.", err.Error())
		return
	}

	err := h.auth.Verify(r.Context(), req.Email, string(req.Value), req.UserData)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			h.respondWithError(w, http.StatusNotFound, "User can't be verified using otp", "")
		case errors.Is(err, models.ErrPersistence):
			h.respondWithError(w, http.StatusConflict, "An account with this email or username already exists.", "")
		default:
			h.respondWithServiceError(w, err)
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, MessageResponse{
		Message: "User verified with otp",
	})
}

func (h *AuthHandlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body.", err.Error())
		return
	}

	email, err := h.auth.ResendOTP(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			h.respondWithError(w, http.StatusNotFound, "No pending registration for this email.", "")
		case errors.Is(err, models.ErrDelivery):
			h.respondWithError(w, http.StatusInternalServerError, "Failed to send verification email.", "Failed to send email")
		default:
			h.respondWithServiceError(w, err)
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, MessageResponse{
		Message: "OTP resent successfully. Please check your email.",
		Email:   email,
	})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body.", err.Error())
		return
	}

	issued, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Can't process your request.", "Invalid email or password")
			return
		}
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, LoginResponse{
		Message:   "Login successful",
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Access denied. No token provided.", "")
		return
	}

	h.respondWithJSON(w, http.StatusOK, ProfileResponse{User: claims})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Access denied. No token provided.", "")
		return
	}

	if err := h.auth.Logout(r.Context(), claims); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, MessageResponse{
		Message: "Logged out successfully",
	})
}

// respondWithServiceError maps the shared error taxonomy to a status code.
// Endpoint specific messages are handled by the caller first.
func (h *AuthHandlers) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		h.respondWithError(w, http.StatusBadRequest, "Invalid request.", err.Error())
	case errors.Is(err, models.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, "Not found.", "")
	case errors.Is(err, models.ErrUnauthorized):
		h.respondWithError(w, http.StatusUnauthorized, "Access denied. No token provided.", "")
	case errors.Is(err, models.ErrForbidden):
		h.respondWithError(w, http.StatusForbidden, "Invalid or expired token.", "")
	case errors.Is(err, models.ErrPersistence):
		h.respondWithError(w, http.StatusConflict, "Conflict.", "")
	case errors.Is(err, models.ErrUnavailable):
		h.logger.WithError(err).Error("Backing store unavailable")
		h.respondWithError(w, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again.", "")
	case errors.Is(err, models.ErrDelivery):
		h.respondWithError(w, http.StatusInternalServerError, "Failed to send verification email.", "")
	default:
		h.logger.WithError(err).Error("Unhandled service error")
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error.", "")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, message, detail string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Message: message,
		Error:   detail,
	})
}
