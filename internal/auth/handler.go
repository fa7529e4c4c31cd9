package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/errx"
	"github.com/jogardn/coastal-farmer/internal/httputil"
	"github.com/jogardn/coastal-farmer/pkg/models"
)

const (
	MessageInvalidCredentials = "Invalid email or password"
	MessageLoginSuccessful    = "Login successful"
)

// Login outcomes reported to the recorder.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid_credentials"
	OutcomeError   = "error"
)

type CredentialStore interface {
	FindAdminByEmail(ctx context.Context, email string) (*models.Administrator, error)
}

type LoginRecorder interface {
	LoginAttempt(outcome string)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type Handler struct {
	store    CredentialStore
	hasher   *Hasher
	tokens   *TokenManager
	renderer *httputil.Renderer
	recorder LoginRecorder
	logger   *logrus.Logger

	// dummyHash is compared against when the email is unknown so both
	// failure paths pay for a bcrypt comparison.
	dummyHash string
}

func NewHandler(store CredentialStore, hasher *Hasher, tokens *TokenManager, renderer *httputil.Renderer, recorder LoginRecorder, logger *logrus.Logger) (*Handler, error) {
	dummy, err := hasher.Hash("coastal-farmer-unknown-account")
	if err != nil {
		return nil, err
	}
	return &Handler{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		renderer:  renderer,
		recorder:  recorder,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WithError(err).Debug("Failed to decode login request")
		h.renderer.Error(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)

	if email == "" || req.Password == "" {
		h.reject(w, email)
		return
	}

	admin, err := h.store.FindAdminByEmail(r.Context(), email)
	if err != nil {
		h.record(OutcomeError)
		h.renderer.Error(w, r, errx.Internal(err))
		return
	}

	if admin == nil {
		h.hasher.Verify(req.Password, h.dummyHash)
		h.reject(w, email)
		return
	}

	if !h.hasher.Verify(req.Password, admin.PasswordHash) {
		h.reject(w, email)
		return
	}

	token, err := h.tokens.Issue(admin.ID, admin.Role)
	if err != nil {
		h.record(OutcomeError)
		h.renderer.Error(w, r, errx.Internal(err))
		return
	}

	h.record(OutcomeSuccess)
	h.logger.WithFields(logrus.Fields{
		"user_id": admin.ID,
		"role":    admin.Role,
	}).Info("Administrator logged in")

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		Message: MessageLoginSuccessful,
		Token:   token,
	})
}

func (h *Handler) reject(w http.ResponseWriter, email string) {
	h.record(OutcomeInvalid)
	h.logger.WithField("email", email).Warn("Rejected login attempt")
	httputil.WriteMessage(w, http.StatusUnauthorized, MessageInvalidCredentials)
}

func (h *Handler) record(outcome string) {
	if h.recorder != nil {
		h.recorder.LoginAttempt(outcome)
	}
}
