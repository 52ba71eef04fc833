package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shipchat/internal/domain"
	"shipchat/internal/service"
)

type fezCreateRequest struct {
	FezType      domain.FezType `json:"fez_type"`
	Title        string         `json:"title"`
	Info         string         `json:"info"`
	Location     *string        `json:"location"`
	StartTime    *time.Time     `json:"start_time"`
	EndTime      *time.Time     `json:"end_time"`
	MinCapacity  int            `json:"min_capacity"`
	MaxCapacity  int            `json:"max_capacity"`
	InitialUsers []uuid.UUID    `json:"initial_users"`
}

type fezUpdateRequest struct {
	Title       string     `json:"title"`
	Info        string     `json:"info"`
	Location    *string    `json:"location"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	MinCapacity int        `json:"min_capacity"`
	MaxCapacity int        `json:"max_capacity"`
}

type reportRequest struct {
	Message string `json:"message"`
}

// fezDetailResponse is the full detail payload. Members and Posts are only
// populated when the viewer passes the visibility gate.
type fezDetailResponse struct {
	*service.FezSummary
	Members *service.MembersData   `json:"members,omitempty"`
	Posts   []*service.FezPostData `json:"posts,omitempty"`
}

func parseFezID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "fezID"))
}

func parseUserID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "userID"))
}

// parseWindow reads start/limit query params. start defaults to -1, meaning
// "resume near the viewer's last-read position".
func parseWindow(r *http.Request) (start, limit int) {
	start, limit = -1, 0
	if v := r.URL.Query().Get("start"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			start = i
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			limit = i
		}
	}
	return start, limit
}

func parseFilter(r *http.Request) domain.FezFilter {
	q := r.URL.Query()
	filter := domain.FezFilter{}
	if t := q.Get("type"); t != "" {
		filter.Type = domain.FezType(t)
	}
	if d := q.Get("day"); d != "" {
		if day, err := time.Parse("2006-01-02", d); err == nil {
			filter.Day = &day
		}
	}
	if v := q.Get("start"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			filter.Start = i
		}
	}
	if v := q.Get("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			filter.Limit = i
		}
	}
	return filter
}

// buildFezDetail assembles the detail payload for the viewer, populating
// members and the post window only when the visibility gate passes. Listing
// the posts advances the viewer's read count as a side effect.
func buildFezDetail(r *http.Request, fezSvc *service.FezService, postSvc *service.PostService, viewer *domain.User, fezID uuid.UUID) (*fezDetailResponse, error) {
	ctx := r.Context()
	fez, pivot, err := fezSvc.Get(ctx, viewer, fezID)
	if err != nil {
		return nil, err
	}

	var unread *int
	if pivot != nil {
		j := domain.JoinedFez{Fez: fez, ReadCount: pivot.ReadCount, HiddenCount: pivot.HiddenCount}
		u := j.UnreadCount()
		unread = &u
	}
	summary, err := fezSvc.Summary(ctx, fez, unread)
	if err != nil {
		return nil, err
	}
	resp := &fezDetailResponse{FezSummary: summary}

	if fezSvc.CanViewDetail(fez, viewer, pivot) {
		members, err := fezSvc.Members(ctx, viewer, fez, pivot)
		if err != nil {
			return nil, err
		}
		start, limit := parseWindow(r)
		posts, err := postSvc.ListPosts(ctx, viewer, fezID, start, limit)
		if err != nil {
			return nil, err
		}
		resp.Members = members
		resp.Posts = posts
	}
	return resp, nil
}

// @Summary      List open fezzes
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        type  query  string false "fez type filter"
// @Param        day   query  string false "day filter (YYYY-MM-DD)"
// @Success      200  {array}  service.FezSummary
// @Router       /fez/open [get]
func handleListOpenFezzes(fezSvc *service.FezService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		summaries, err := fezSvc.ListOpen(r.Context(), viewer, parseFilter(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// @Summary      List joined fezzes with unread counts
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  service.FezSummary
// @Router       /fez/joined [get]
func handleListJoinedFezzes(fezSvc *service.FezService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		summaries, err := fezSvc.ListJoined(r.Context(), viewer, parseFilter(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// @Summary      List owned fezzes
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  service.FezSummary
// @Router       /fez/owner [get]
func handleListOwnedFezzes(fezSvc *service.FezService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		summaries, err := fezSvc.ListOwned(r.Context(), viewer, parseFilter(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

// @Summary      Create a fez
// @Tags         fez
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body fezCreateRequest true "Fez input"
// @Success      201  {object}  fezDetailResponse
// @Router       /fez/create [post]
func handleCreateFez(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		var req fezCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		fez, err := fezSvc.Create(r.Context(), viewer, service.FezCreateInput{
			FezType:        req.FezType,
			Title:          req.Title,
			Info:           req.Info,
			Location:       req.Location,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			MinCapacity:    req.MinCapacity,
			MaxCapacity:    req.MaxCapacity,
			InitialUserIDs: req.InitialUsers,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fez.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// @Summary      Get fez detail
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        fezID path string true "fez ID"
// @Success      200  {object}  fezDetailResponse
// @Router       /fez/{fezID} [get]
func handleGetFez(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fezID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Update a fez
// @Tags         fez
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        fezID path string true "fez ID"
// @Param        input body fezUpdateRequest true "Fez fields"
// @Success      200  {object}  fezDetailResponse
// @Router       /fez/{fezID}/update [post]
func handleUpdateFez(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		var req fezUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if _, err := fezSvc.Update(r.Context(), viewer, fezID, service.FezUpdateInput{
			Title:       req.Title,
			Info:        req.Info,
			Location:    req.Location,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			MinCapacity: req.MinCapacity,
			MaxCapacity: req.MaxCapacity,
		}); err != nil {
			writeError(w, err)
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fezID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Cancel a fez
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        fezID path string true "fez ID"
// @Success      200  {object}  fezDetailResponse
// @Router       /fez/{fezID}/cancel [post]
func handleCancelFez(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		if err := fezSvc.Cancel(r.Context(), viewer, fezID); err != nil {
			writeError(w, err)
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fezID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Soft-delete a fez (moderator)
// @Tags         fez
// @Security     BearerAuth
// @Param        fezID path string true "fez ID"
// @Success      204
// @Router       /fez/{fezID} [delete]
func handleDeleteFez(fezSvc *service.FezService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		if err := fezSvc.Delete(r.Context(), viewer, fezID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Join a fez
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        fezID path string true "fez ID"
// @Success      200  {object}  fezDetailResponse
// @Router       /fez/{fezID}/join [post]
func handleJoinFez(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		if err := fezSvc.Join(r.Context(), viewer, fezID); err != nil {
			writeError(w, err)
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fezID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Leave a fez
// @Tags         fez
// @Security     BearerAuth
// @Param        fezID path string true "fez ID"
// @Success      204
// @Router       /fez/{fezID}/unjoin [post]
func handleUnjoinFez(fezSvc *service.FezService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		if err := fezSvc.Unjoin(r.Context(), viewer, fezID); err != nil {
			writeError(w, err)
			return
		}
		// No detail rebuild here: the leaver may no longer be allowed to view
		// the fez (a block with the owner now hides it), and the leave itself
		// still succeeded.
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Add a member (owner only)
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        fezID  path string true "fez ID"
// @Param        userID path string true "target user ID"
// @Success      200  {object}  fezDetailResponse
// @Router       /fez/{fezID}/user/{userID}/add [post]
func handleAddMember(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		targetID, err := parseUserID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		if err := fezSvc.AddMember(r.Context(), viewer, fezID, targetID); err != nil {
			writeError(w, err)
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fezID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Remove a member (owner only)
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        fezID  path string true "fez ID"
// @Param        userID path string true "target user ID"
// @Success      200  {object}  fezDetailResponse
// @Router       /fez/{fezID}/user/{userID}/remove [post]
func handleRemoveMember(fezSvc *service.FezService, postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		targetID, err := parseUserID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		if err := fezSvc.RemoveMember(r.Context(), viewer, fezID, targetID); err != nil {
			writeError(w, err)
			return
		}
		resp, err := buildFezDetail(r, fezSvc, postSvc, viewer, fezID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Report a fez
// @Tags         fez
// @Security     BearerAuth
// @Accept       json
// @Param        fezID path string true "fez ID"
// @Param        input body reportRequest true "report message"
// @Success      202
// @Router       /fez/{fezID}/report [post]
func handleReportFez(reportSvc *service.ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := reportSvc.ReportFez(r.Context(), viewer, fezID, req.Message); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
