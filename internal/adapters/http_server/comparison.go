package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

const (
	sessionCookie    = "cv_session"
	contextHeader    = "X-Browsing-Context"
	contextParam     = "context" // EventSource cannot set headers
	defaultHeartbeat = 25 * time.Second
)

// comparisonView is the wire shape of a visitor's comparison list.
type comparisonView struct {
	Items    []domain.ComparisonItem `json:"items"`
	Count    int                     `json:"count"`
	MaxItems int                     `json:"maxItems"`
	IsFull   bool                    `json:"isFull"`
	ShareURL string                  `json:"shareUrl"`
}

func validID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// sessionID returns the visitor's session id, issuing a session cookie when
// absent. The cookie has no Max-Age so it ends with the browser session.
func (h *Handlers) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && validID(c.Value) {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// contextID identifies the browsing context (tab). A fresh id is echoed back
// so the client can reuse it.
func contextID(w http.ResponseWriter, r *http.Request) string {
	if v := r.Header.Get(contextHeader); validID(v) {
		return v
	}
	if v := r.URL.Query().Get(contextParam); validID(v) {
		return v
	}
	id := uuid.NewString()
	w.Header().Set(contextHeader, id)
	return id
}

func (h *Handlers) view(list domain.ComparisonList) comparisonView {
	items := list.Items
	if items == nil {
		items = []domain.ComparisonItem{}
	}
	return comparisonView{
		Items:    items,
		Count:    len(items),
		MaxItems: list.MaxItems(),
		IsFull:   list.IsFull(),
		ShareURL: h.Compare.ShareURLFor(items),
	}
}

func (h *Handlers) getComparison(w http.ResponseWriter, r *http.Request) {
	st := h.Compare.Store(h.sessionID(w, r), contextID(w, r))
	writeJSON(w, http.StatusOK, h.view(st.Read(r.Context())))
}

type addItemRequest struct {
	PropertySlug string `json:"propertySlug"`
}

// addComparisonItem resolves the slug against the directory so only real
// properties (with their canonical id and name) enter the list. Duplicates
// and additions to a full list are not errors; "added" reports the outcome.
func (h *Handlers) addComparisonItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected JSON with propertySlug")
		return
	}
	slug := strings.TrimSpace(req.PropertySlug)
	if slug == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "propertySlug is required")
		return
	}
	p, err := h.Q.GetProperty(r.Context(), slug)
	if err != nil {
		writeError(w, r, err, "property")
		return
	}

	st := h.Compare.Store(h.sessionID(w, r), contextID(w, r))
	before := st.Read(r.Context()).Contains(p.ID)
	list := st.Add(r.Context(), p.ID, p.Slug, p.Name)
	writeJSON(w, http.StatusOK, struct {
		comparisonView
		Added bool `json:"added"`
	}{h.view(list), !before && list.Contains(p.ID)})
}

func (h *Handlers) removeComparisonItem(w http.ResponseWriter, r *http.Request) {
	st := h.Compare.Store(h.sessionID(w, r), contextID(w, r))
	writeJSON(w, http.StatusOK, h.view(st.Remove(r.Context(), chi.URLParam(r, "id"))))
}

func (h *Handlers) clearComparison(w http.ResponseWriter, r *http.Request) {
	st := h.Compare.Store(h.sessionID(w, r), contextID(w, r))
	writeJSON(w, http.StatusOK, h.view(st.Clear(r.Context())))
}

func (h *Handlers) shareComparison(w http.ResponseWriter, r *http.Request) {
	st := h.Compare.Store(h.sessionID(w, r), contextID(w, r))
	st.Read(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"url": st.ShareURL()})
}

// comparisonEvents streams the list as server-sent events: one "comparison"
// event on connect and one after every change made by any context of the session.
func (h *Handlers) comparisonEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}
	sid, cid := h.sessionID(w, r), contextID(w, r)

	ctx := r.Context()
	watcher := h.Compare.Watch(ctx, sid, cid)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(list domain.ComparisonList) bool {
		b, err := json.Marshal(h.view(list))
		if err != nil {
			log.Error().Err(err).Msg("marshal comparison event failed")
			return true
		}
		if _, err := fmt.Fprintf(w, "event: comparison\ndata: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(watcher.Current()) {
		return
	}

	hb := h.Heartbeat
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	ticker := time.NewTicker(hb)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if !send(list) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
