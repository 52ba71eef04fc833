package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shipchat/internal/service"
)

// @Summary      Search usernames by prefix
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        search path string true "username prefix"
// @Success      200  {array}  domain.UserHeader
// @Router       /users/match/{search} [get]
func handleMatchUsernames(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		search := chi.URLParam(r, "search")
		headers, err := userSvc.MatchUsernames(r.Context(), search, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, headers)
	}
}

// @Summary      Get a user header
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        userID path string true "user ID"
// @Success      200  {object}  domain.UserHeader
// @Router       /users/{userID} [get]
func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUserID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		user, err := userSvc.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Header())
	}
}

// handleBlock covers both block and mute; the two relations share a surface
// and differ only in which set the target lands in.
//
// @Summary      Block or mute a user
// @Tags         users
// @Security     BearerAuth
// @Param        userID path string true "target user ID"
// @Success      201
// @Router       /users/{userID}/block [post]
func handleBlock(identSvc *service.IdentityService, block bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		targetID, err := parseUserID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		if block {
			err = identSvc.Block(r.Context(), viewer.ID, targetID)
		} else {
			err = identSvc.Mute(r.Context(), viewer.ID, targetID)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// @Summary      Unblock or unmute a user
// @Tags         users
// @Security     BearerAuth
// @Param        userID path string true "target user ID"
// @Success      204
// @Router       /users/{userID}/unblock [post]
func handleUnblock(identSvc *service.IdentityService, block bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		targetID, err := parseUserID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		if block {
			err = identSvc.Unblock(r.Context(), viewer.ID, targetID)
		} else {
			err = identSvc.Unmute(r.Context(), viewer.ID, targetID)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      List fez notifications for the current user
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  domain.Notification
// @Router       /notification/fez [get]
func handleListNotifications(notifySvc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		list, err := notifySvc.ListForUser(r.Context(), viewer.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
