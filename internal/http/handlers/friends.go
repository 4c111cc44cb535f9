package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatherly/server/internal/middleware"
	"github.com/gatherly/server/internal/model"
	"github.com/gatherly/server/internal/social"
)

// FriendsHandler handles the friendship-graph endpoints. All routes are
// behind the auth middleware; the acting identity comes from the context.
type FriendsHandler struct {
	friends *social.Service
}

// NewFriendsHandler creates the friends handler.
func NewFriendsHandler(friends *social.Service) *FriendsHandler {
	return &FriendsHandler{friends: friends}
}

type friendRequestBody struct {
	To string `json:"to"`
}

// HandleRequest handles POST /friends/requests.
func (h *FriendsHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req friendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, err := uuid.Parse(strings.TrimSpace(req.To))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "to must be an identity ref")
		return
	}

	if err := h.friends.RequestFriend(r.Context(), me, to); err != nil {
		switch {
		case errors.Is(err, social.ErrSelfFriend):
			respondWithError(w, http.StatusBadRequest, "cannot friend yourself")
		case errors.Is(err, social.ErrAlreadyExists):
			respondWithError(w, http.StatusConflict, "friend edge already exists")
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to create friend request")
		}
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": string(model.FriendPending)})
}

type friendRespondBody struct {
	From   string `json:"from"`
	Accept bool   `json:"accept"`
}

// HandleRespond handles POST /friends/requests/respond. Only the recipient of
// the pending request can accept or decline it.
func (h *FriendsHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req friendRespondBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	from, err := uuid.Parse(strings.TrimSpace(req.From))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "from must be an identity ref")
		return
	}

	if err := h.friends.RespondFriend(r.Context(), me, from, req.Accept); err != nil {
		switch {
		case errors.Is(err, social.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "no pending request")
		case errors.Is(err, social.ErrSelfFriend):
			respondWithError(w, http.StatusBadRequest, "cannot respond to yourself")
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to respond")
		}
		return
	}

	status := "declined"
	if req.Accept {
		status = string(model.FriendAccepted)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleUnfriend handles DELETE /friends/{identityRef}. Idempotent.
func (h *FriendsHandler) HandleUnfriend(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	other, err := uuid.Parse(chi.URLParam(r, "identityRef"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid identity ref")
		return
	}
	if err := h.friends.Unfriend(r.Context(), me, other); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to unfriend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleList handles GET /friends.
func (h *FriendsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	refs, err := h.friends.ListFriends(r.Context(), me)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list friends")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"friends": refStrings(refs)})
}

// HandleMutual handles GET /friends/mutual?with={identityRef}.
func (h *FriendsHandler) HandleMutual(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	other, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("with")))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "with must be an identity ref")
		return
	}
	refs, err := h.friends.MutualFriends(r.Context(), me, other)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to compute mutual friends")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"mutual": refStrings(refs)})
}

// pendingRequestResponse is one incoming request in GET /friends/requests.
type pendingRequestResponse struct {
	From      string `json:"from"`
	CreatedAt string `json:"created_at"`
}

// HandlePending handles GET /friends/requests: requests awaiting my response.
func (h *FriendsHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	edges, err := h.friends.PendingRequests(r.Context(), me)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	out := make([]pendingRequestResponse, 0, len(edges))
	for _, e := range edges {
		out = append(out, pendingRequestResponse{
			From:      e.RequestedBy.String(),
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	respondJSON(w, http.StatusOK, map[string][]pendingRequestResponse{"requests": out})
}

func refStrings(refs []uuid.UUID) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.String())
	}
	return out
}
