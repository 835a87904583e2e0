package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/app"
	"clarus_vitae/internal/domain"
)

type verificationRequest struct {
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

func decodeVerification(w http.ResponseWriter, r *http.Request) (verificationRequest, bool) {
	var req verificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2048)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected JSON with email")
		return req, false
	}
	return req, true
}

// requestVerification issues a one-time code for a privacy request (data
// export or deletion). The response never reveals whether the address is known.
func (h *Handlers) requestVerification(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVerification(w, r)
	if !ok {
		return
	}
	expiresAt, err := h.Verify.RequestCode(r.Context(), req.Email, remoteIP(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"expiresAt": expiresAt.UTC().Format(time.RFC3339)})
	case errors.Is(err, domain.ErrInvalidEmail):
		writeProblem(w, http.StatusBadRequest, "Invalid email", "email address is not valid")
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(app.RateLimitWindow.Seconds())))
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "too many verification requests, try again later")
	default:
		log.Error().Err(err).Msg("verification request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func (h *Handlers) confirmVerification(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVerification(w, r)
	if !ok {
		return
	}
	if req.Code == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "code is required")
		return
	}
	err := h.Verify.VerifyCode(r.Context(), req.Email, req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
	case errors.Is(err, domain.ErrInvalidEmail):
		writeProblem(w, http.StatusBadRequest, "Invalid email", "email address is not valid")
	case errors.Is(err, domain.ErrCodeExpired):
		writeProblem(w, http.StatusGone, "Code expired", "request a new verification code")
	case errors.Is(err, domain.ErrTooManyAttempts):
		writeProblem(w, http.StatusTooManyRequests, "Too many attempts", "request a new verification code")
	case errors.Is(err, domain.ErrCodeInvalid):
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid code", "verification code is incorrect")
	default:
		log.Error().Err(err).Msg("verification confirm failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}
