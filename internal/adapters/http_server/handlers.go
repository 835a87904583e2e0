// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/app"
	"clarus_vitae/internal/domain"
)

const requestTimeout = 15 * time.Second

type Handlers struct {
	Q       *app.QueryService
	Compare *app.ComparisonService
	Verify  *app.VerificationService

	SecureCookies bool          // Secure flag on the session cookie
	Heartbeat     time.Duration // event stream keep-alive; 0 uses the default
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(requestTimeout))

		r.Get("/v1/properties", h.listProperties)
		r.Get("/v1/properties/{slug}", h.getProperty)
		r.Get("/v1/properties/{slug}/reviews", h.listReviews)
		r.Get("/v1/properties/{slug}/review-stats", h.reviewStats)
		r.Get("/v1/compare", h.compareExport)

		r.Get("/v1/comparison", h.getComparison)
		r.Post("/v1/comparison/items", h.addComparisonItem)
		r.Delete("/v1/comparison/items/{id}", h.removeComparisonItem)
		r.Delete("/v1/comparison", h.clearComparison)
		r.Get("/v1/comparison/share", h.shareComparison)

		r.Post("/v1/privacy/verification", h.requestVerification)
		r.Post("/v1/privacy/verification/confirm", h.confirmVerification)
	})

	s.mux.Get("/v1/comparison/events", h.comparisonEvents)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", what+" not found")
	case errors.Is(err, domain.ErrInvalidCursor):
		writeProblem(w, http.StatusBadRequest, "Invalid cursor", "cursor must come from a previous page")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "request did not complete in time")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCacheable answers with an ETag and honours If-None-Match.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

// writeJSON is for per-visitor state that must never be cached by intermediaries.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON body")
	}
}

func (h *Handlers) listProperties(w http.ResponseWriter, r *http.Request) {
	q, err := parsePropertiesQuery(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	page, err := h.Q.ListProperties(r.Context(), q)
	if err != nil {
		writeError(w, r, err, "properties")
		return
	}
	if page.Items == nil {
		page.Items = []domain.PropertyView{}
	}
	writeCacheable(w, r, page)
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Q.GetProperty(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err, "property")
		return
	}
	writeCacheable(w, r, p)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	page, err := parseReviewsPage(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	out, err := h.Q.ListReviews(r.Context(), chi.URLParam(r, "slug"), page)
	if err != nil {
		writeError(w, r, err, "reviews")
		return
	}
	if out.Items == nil {
		out.Items = []domain.Review{}
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) reviewStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Q.GetReviewStats(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err, "property")
		return
	}
	writeCacheable(w, r, stats)
}

// compareExport serves the side-by-side view behind a shared comparison link.
func (h *Handlers) compareExport(w http.ResponseWriter, r *http.Request) {
	slugs := app.ParseComparisonParam(r.URL.Query().Get(app.ComparisonParam))
	out, err := h.Q.Compare(r.Context(), slugs)
	if err != nil {
		writeError(w, r, err, "properties")
		return
	}
	writeCacheable(w, r, struct {
		Properties []domain.ComparedProperty `json:"properties"`
	}{out})
}
