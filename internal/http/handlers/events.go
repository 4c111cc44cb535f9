package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gatherly/server/internal/match"
	"github.com/gatherly/server/internal/middleware"
)

// EventsHandler handles interest submission and match lookup.
type EventsHandler struct {
	engine *match.Engine
}

// NewEventsHandler creates the events handler.
func NewEventsHandler(engine *match.Engine) *EventsHandler {
	return &EventsHandler{engine: engine}
}

// interestResponse reports whether the interest produced (or found) a match.
type interestResponse struct {
	Matched    bool     `json:"matched"`
	Members    []string `json:"members,omitempty"`
	ChannelRef string   `json:"channel_ref,omitempty"`
}

// HandleExpressInterest handles POST /events/{eventRef}/interest.
func (h *EventsHandler) HandleExpressInterest(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventRef := strings.TrimSpace(chi.URLParam(r, "eventRef"))
	if eventRef == "" {
		respondWithError(w, http.StatusBadRequest, "event ref is required")
		return
	}

	rec, err := h.engine.ExpressInterest(r.Context(), me, eventRef)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to record interest")
		return
	}

	resp := interestResponse{}
	if rec != nil {
		resp.Matched = true
		resp.Members = refStrings(rec.Members)
		if rec.ChannelRef != nil {
			resp.ChannelRef = *rec.ChannelRef
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleMatch handles GET /events/{eventRef}/match.
func (h *EventsHandler) HandleMatch(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetIdentityRef(r.Context()); !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventRef := strings.TrimSpace(chi.URLParam(r, "eventRef"))
	if eventRef == "" {
		respondWithError(w, http.StatusBadRequest, "event ref is required")
		return
	}

	rec, err := h.engine.Match(r.Context(), eventRef)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "no match for event")
		return
	}

	resp := interestResponse{Matched: true, Members: refStrings(rec.Members)}
	if rec.ChannelRef != nil {
		resp.ChannelRef = *rec.ChannelRef
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleMyInterests handles GET /interests: the caller's expressed interests.
func (h *EventsHandler) HandleMyInterests(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	events, err := h.engine.Interests(r.Context(), me)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list interests")
		return
	}
	if events == nil {
		events = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"events": events})
}
