package registration

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/colcon/colcon-site/internal/i18n"
	"github.com/colcon/colcon-site/internal/platform/httpx"
)

// Handler exposes the registration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	messages *i18n.Localizer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, messages *i18n.Localizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, messages: messages}
}

// MountRoutes registers registration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Get("/users", h.listUsers)
	r.Post("/verify-email", h.verifyEmail)
}

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}

var errorMappings = []httpx.Mapping{
	{Err: ErrConflict, Status: http.StatusConflict, Message: i18n.MsgUserExists},
	{Err: ErrNotFound, Status: http.StatusNotFound, Message: i18n.MsgNotFound},
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err, i18n.MsgSaveFailed)
		return
	}
	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, i18n.MsgSaveFailed)
		return
	}
	httpx.JSON(w, http.StatusCreated, registerResponse{
		Success: true,
		Message: h.translate(r, i18n.MsgUserRegistered),
		UserID:  result.UserID,
		Email:   result.Email,
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, err, i18n.MsgLoadFailed)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Success: true, Data: doc})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err, i18n.MsgSaveFailed)
		return
	}
	if err := h.service.VerifyEmail(r.Context(), req); err != nil {
		h.fail(w, r, err, i18n.MsgSaveFailed)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: h.translate(r, i18n.MsgEmailVerified)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		httpx.Fail(w, http.StatusBadRequest, h.translate(r, inputErr.Message))
		return
	}
	status, msg := httpx.Resolve(err, errorMappings, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error("registration request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.Fail(w, status, h.translate(r, msg))
}

func (h *Handler) translate(r *http.Request, key string) string {
	return h.messages.Translate(r.Header.Get("Accept-Language"), key)
}
