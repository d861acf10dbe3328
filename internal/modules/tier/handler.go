package tier

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Guards protect the admin routes.
type Guards struct {
	// Staff admits any signed-in staff member.
	Staff func(http.Handler) http.Handler
	// Writer admits staff allowed to add and edit tiers.
	Writer func(http.Handler) http.Handler
}

// writeIncludes are returned on add and edit so the caller sees the prices it set.
var writeIncludes = []string{"monthly_price", "yearly_price"}

// Handler exposes tier HTTP endpoints.
type Handler struct {
	service Service
	output  *Output
	guards  Guards
	log     *zap.Logger
}

func NewHandler(service Service, output *Output, guards Guards, log *zap.Logger) *Handler {
	open := func(next http.Handler) http.Handler { return next }
	if guards.Staff == nil {
		guards.Staff = open
	}
	if guards.Writer == nil {
		guards.Writer = open
	}
	return &Handler{service: service, output: output, guards: guards, log: log}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/content/tiers", func(r chi.Router) {
		r.Get("/", h.browse(AudienceContent))    // GET    /content/tiers
		r.Get("/{id}", h.read(AudienceContent)) // GET    /content/tiers/{id}
	})
	r.Route("/admin/tiers", func(r chi.Router) {
		r.Use(h.guards.Staff)
		r.Get("/", h.browse(AudienceAdmin))    // GET    /admin/tiers
		r.Get("/{id}", h.read(AudienceAdmin)) // GET    /admin/tiers/{id}

		r.With(h.guards.Writer).Post("/", h.add)     // POST   /admin/tiers
		r.With(h.guards.Writer).Put("/{id}", h.edit) // PUT    /admin/tiers/{id}
	})
}

func (h *Handler) browse(audience Audience) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := newFrame(r, audience)
		q := r.URL.Query()

		opts := BrowseOptions{
			Audience:  audience,
			Page:      atoi(q.Get("page")),
			Limit:     atoi(q.Get("limit")),
			Type:      Type(q.Get("type")),
			Relations: frame.Relations(),
		}
		if raw := q.Get("active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				respond(w, http.StatusBadRequest, errorBody("bad_request", "active must be a boolean"))
				return
			}
			opts.Active = &active
		}

		page, err := h.service.Browse(r.Context(), opts)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.output.Browse(page, frame)
		respond(w, http.StatusOK, frame.Response)
	}
}

func (h *Handler) read(audience Audience) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := newFrame(r, audience)
		t, err := h.service.Read(r.Context(), chi.URLParam(r, "id"), audience, frame.Relations())
		if err != nil {
			h.fail(w, err)
			return
		}
		h.output.Read(t, frame)
		respond(w, http.StatusOK, frame.Response)
	}
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req CreateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
		return
	}
	t, err := h.service.Add(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	frame := newFrame(r, AudienceAdmin)
	frame.OptionInclude = writeIncludes
	h.output.Add(t, frame)
	respond(w, http.StatusCreated, frame.Response)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	var req UpdateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
		return
	}
	t, err := h.service.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	frame := newFrame(r, AudienceAdmin)
	frame.OptionInclude = writeIncludes
	h.output.Edit(t, frame)
	respond(w, http.StatusOK, frame.Response)
}

// fail maps service errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		body := errorBody("validation_failed", "request validation failed")
		body["fields"] = verr.Fields
		respond(w, http.StatusUnprocessableEntity, body)
	case errors.Is(err, ErrNotFound):
		respond(w, http.StatusNotFound, errorBody("not_found", "tier not found"))
	case errors.Is(err, ErrDuplicateSlug):
		respond(w, http.StatusConflict, errorBody("conflict", err.Error()))
	case errors.Is(err, ErrInvalidInput):
		respond(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
	default:
		h.log.Error("tier request failed", zap.Error(err))
		respond(w, http.StatusInternalServerError, errorBody("internal", "internal server error"))
	}
}

func newFrame(r *http.Request, audience Audience) *Frame {
	return &Frame{
		Audience:     audience,
		QueryInclude: r.URL.Query().Get("include"),
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": code, "message": message}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
