package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shipchat/internal/service"
)

type postCreateRequest struct {
	Text      string  `json:"text"`
	ImageName *string `json:"image_name"`
}

func parsePostID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
}

// @Summary      Add a post to a fez
// @Tags         fez
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        fezID path string true "fez ID"
// @Param        input body postCreateRequest true "post content"
// @Success      201  {object}  service.FezPostData
// @Router       /fez/{fezID}/post [post]
func handleCreatePost(postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		var req postCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		post, err := postSvc.AddPost(r.Context(), viewer, service.PostCreateInput{
			FezID:     fezID,
			Text:      req.Text,
			ImageName: req.ImageName,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := postSvc.ToData(r.Context(), post)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, data)
	}
}

// @Summary      List posts in a fez
// @Tags         fez
// @Security     BearerAuth
// @Produce      json
// @Param        fezID path  string true  "fez ID"
// @Param        start query int    false "window start (omit to resume at last read)"
// @Param        limit query int    false "window size"
// @Success      200  {array}  service.FezPostData
// @Router       /fez/{fezID}/posts [get]
func handleListPosts(postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		fezID, err := parseFezID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fez id"})
			return
		}
		start, limit := parseWindow(r)
		posts, err := postSvc.ListPosts(r.Context(), viewer, fezID, start, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// @Summary      Delete a post (author or moderator)
// @Tags         fez
// @Security     BearerAuth
// @Param        postID path int true "post ID"
// @Success      204
// @Router       /fez/post/{postID} [delete]
func handleDeletePost(postSvc *service.PostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		postID, err := parsePostID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid post id"})
			return
		}
		if err := postSvc.DeletePost(r.Context(), viewer, postID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Report a post
// @Tags         fez
// @Security     BearerAuth
// @Accept       json
// @Param        postID path int true "post ID"
// @Param        input body reportRequest true "report message"
// @Success      202
// @Router       /fez/post/{postID}/report [post]
func handleReportPost(reportSvc *service.ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		postID, err := parsePostID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid post id"})
			return
		}
		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := reportSvc.ReportPost(r.Context(), viewer, postID, req.Message); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
