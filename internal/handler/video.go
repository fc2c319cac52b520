package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/media-backend/internal/service"
	"github.com/sakif/media-backend/internal/storage"
)

// VideoHandler serves video endpoints.
//
// Reads and view counting are public; everything that changes a video
// requires a bearer token and ownership.
type VideoHandler struct {
	videos         *service.VideoService
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewVideoHandler(videos *service.VideoService, maxUploadBytes int64, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		videos:         videos,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes mounts the video endpoints.
//
// ROUTE ORDER:
// chi matches static segments before parameters, so /search and /user/{userId}
// never reach the /{id} handlers.
func (h *VideoHandler) Routes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/search", h.HandleSearch)
	r.Get("/user/{userId}", h.HandleListByUser)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}/views", h.HandleAddView)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.HandleCreate)
		r.Put("/{id}/video", h.HandleReplaceVideo)
		r.Put("/{id}/cover", h.HandleReplaceCover)
		r.Put("/{id}/other", h.HandleUpdateOther)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// HandleCreate uploads a new video.
//
// HTTP: POST /videos
// MULTIPART FIELDS: title, description, video (mp4/mov), cover (jpeg/png)
// RESPONSE: 201 with the created video
func (h *VideoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	me, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	form, err := parseMultipart(w, r, h.maxUploadBytes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer form.Close()

	video, err := form.file(storage.VideoRule, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	cover, err := form.file(storage.CoverRule, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	in := service.VideoInput{}
	if v := form.value("title"); v != nil {
		in.Title = *v
	}
	if v := form.value("description"); v != nil {
		in.Description = *v
	}

	created, err := h.videos.Create(r.Context(), me, in, *video, *cover)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleReplaceVideo swaps the video file.
//
// HTTP: PUT /videos/{id}/video (multipart field "video")
func (h *VideoHandler) HandleReplaceVideo(w http.ResponseWriter, r *http.Request) {
	h.replaceFile(w, r, storage.VideoReplaceRule, func(f *storage.File) service.VideoUpdate {
		return service.VideoUpdate{Video: f}
	})
}

// HandleReplaceCover swaps the cover image.
//
// HTTP: PUT /videos/{id}/cover (multipart field "cover")
func (h *VideoHandler) HandleReplaceCover(w http.ResponseWriter, r *http.Request) {
	h.replaceFile(w, r, storage.CoverReplaceRule, func(f *storage.File) service.VideoUpdate {
		return service.VideoUpdate{Cover: f}
	})
}

func (h *VideoHandler) replaceFile(w http.ResponseWriter, r *http.Request, rule storage.Rule, build func(*storage.File) service.VideoUpdate) {
	me, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	form, err := parseMultipart(w, r, h.maxUploadBytes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer form.Close()

	f, err := form.file(rule, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.videos.UpdateFromCreator(r.Context(), me, chi.URLParam(r, "id"), build(f))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// HandleUpdateOther edits title and/or description.
//
// HTTP: PUT /videos/{id}/other
// REQUEST BODY: {"title": "...", "description": "..."} (either may be omitted)
func (h *VideoHandler) HandleUpdateOther(w http.ResponseWriter, r *http.Request) {
	me, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req updateVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.videos.UpdateFromCreator(r.Context(), me, chi.URLParam(r, "id"), service.VideoUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleAddView counts one view. No authentication.
//
// HTTP: PUT /videos/{id}/views
func (h *VideoHandler) HandleAddView(w http.ResponseWriter, r *http.Request) {
	v, err := h.videos.AddView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleGet returns one video with its uploader.
//
// HTTP: GET /videos/{id}
func (h *VideoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.videos.GetOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleListByUser returns a page of one user's videos, newest first.
//
// HTTP: GET /videos/user/{userId}?skip=0&take=20
func (h *VideoHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	skip, take, err := pagination(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	videos, err := h.videos.ListByUser(r.Context(), chi.URLParam(r, "userId"), skip, take)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

// HandleSearch matches title, description and uploader name, most viewed first.
//
// HTTP: GET /videos/search?query=cats&skip=0&take=20
func (h *VideoHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	skip, take, err := pagination(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	videos, err := h.videos.Search(r.Context(), r.URL.Query().Get("query"), skip, take)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

// HandleDelete removes an owned video and its files.
//
// HTTP: DELETE /videos/{id}
func (h *VideoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.videos.Delete(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "video deleted"})
}

func pagination(r *http.Request) (skip, take int, err error) {
	if skip, err = queryInt(r, "skip"); err != nil {
		return 0, 0, err
	}
	if take, err = queryInt(r, "take"); err != nil {
		return 0, 0, err
	}
	return skip, take, nil
}
