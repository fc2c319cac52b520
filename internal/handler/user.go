package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/model"
	"github.com/sakif/media-backend/internal/service"
	"github.com/sakif/media-backend/internal/storage"
)

// UserHandler serves profile endpoints. Every route requires a bearer token.
type UserHandler struct {
	users          *service.UserService
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewUserHandler(users *service.UserService, maxUploadBytes int64, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:          users,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes mounts the user endpoints behind requireAuth.
//
//	GET    /me    → the caller's own profile
//	GET    /{id}  → any profile
//	PATCH  /{id}  → update own profile (JSON or multipart with "avatar")
//	DELETE /{id}  → delete own account
func (h *UserHandler) Routes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", h.HandleMe)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// requester returns the authenticated user set by auth.RequireAuth.
func requester(r *http.Request) (*model.User, error) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	return u, nil
}

// HandleMe returns the authenticated user.
//
// HTTP: GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleGet returns one user.
//
// HTTP: GET /users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateUserRequest struct {
	Password  *string   `json:"password"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
	Birthday  *jsonDate `json:"birthday"`
}

// HandleUpdate applies a partial profile update.
//
// HTTP: PATCH /users/{id}
//
// TWO BODY FORMATS:
// A JSON body updates fields only. A multipart body carries the same fields
// as form values plus an optional "avatar" image.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	me, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var (
		patch  model.UserPatch
		avatar *storage.File
	)
	if isMultipart(r) {
		form, err := parseMultipart(w, r, h.maxUploadBytes)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		defer form.Close()

		patch.Password = form.value("password")
		patch.FirstName = form.value("firstName")
		patch.LastName = form.value("lastName")
		if raw := form.value("birthday"); raw != nil {
			if patch.Birthday, err = parseDate("birthday", *raw); err != nil {
				writeError(w, r, h.logger, err)
				return
			}
		}
		if avatar, err = form.file(storage.AvatarRule, false); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	} else {
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		patch = model.UserPatch{
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Birthday:  req.Birthday.ptr(),
		}
	}

	updated, err := h.users.Update(r.Context(), me, chi.URLParam(r, "id"), patch, avatar)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete removes the caller's own account with its videos and files.
//
// HTTP: DELETE /users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, err := requester(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.users.Delete(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "user deleted"})
}
