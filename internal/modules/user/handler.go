package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service Service
	guard   func(http.Handler) http.Handler
}

// NewHandler builds the staff handler. guard protects every route.
func NewHandler(service Service, guard func(http.Handler) http.Handler) *Handler {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{service: service, guard: guard}
}

func (h *Handler) RegisterRoutes(router *chi.Mux) {
	router.With(h.guard).Post("/admin/users", h.registerUser)
	router.With(h.guard).Get("/admin/users/{id}", h.getUser)
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req)
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		respond(w, http.StatusCreated, user)
	case errors.As(err, &verrs):
		respond(w, http.StatusUnprocessableEntity, map[string]string{"error": "validation_failed", "message": verrs.Error()})
	case errors.Is(err, ErrEmailTaken):
		respond(w, http.StatusConflict, map[string]string{"error": "conflict", "message": err.Error()})
	default:
		respond(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": "internal server error"})
	}
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.service.GetUser(r.Context(), id)
	switch {
	case err == nil:
		respond(w, http.StatusOK, user)
	case errors.Is(err, ErrNotFound):
		respond(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": err.Error()})
	default:
		respond(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": "internal server error"})
	}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
