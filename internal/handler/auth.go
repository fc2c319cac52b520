package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler serves registration and every sign-in path.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister        → create a credential account
//   - HandleLogin           → username + password → access token
//   - HandleGoogle          → client-verified Google profile → access token
//   - HandleGoogleLogin     → redirect the browser to Google's consent page
//   - HandleGoogleCallback  → exchange the code server-side → access token
//
// Tokens are returned in the JSON body; clients send them back as
// "Authorization: Bearer <token>".
type AuthHandler struct {
	auth   *service.AuthService
	google *auth.GoogleProvider // nil when Google OAuth is not configured
	logger *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, google *auth.GoogleProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		google: google,
		logger: logger,
	}
}

// Routes mounts the auth endpoints. The server-side Google flow is only
// mounted when a provider was configured.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Post("/google", h.HandleGoogle)
	if h.google != nil {
		r.Get("/google/login", h.HandleGoogleLogin)
		r.Get("/google/callback", h.HandleGoogleCallback)
	}
}

type registerRequest struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Birthday  *jsonDate `json:"birthday"`
}

// HandleRegister creates a credential account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"username":"alice","password":"secret123","firstName":"Alice"}
// RESPONSE: 201 with the user (the password hash is never serialized)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Birthday:  req.Birthday.ptr(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin exchanges credentials for an access token.
//
// HTTP: POST /auth/login
// RESPONSE: 200 {"user": {...}, "accessToken": "..."}
// An unknown username is 404 and a wrong password is 401, with the same message.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type googleRequest struct {
	GoogleID  string    `json:"googleId"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Birthday  *jsonDate `json:"birthday"`
	Avatar    string    `json:"avatar"`
}

// HandleGoogle signs in a client that performed Google sign-in itself.
//
// HTTP: POST /auth/google
// The first call for a googleId creates the account; later calls sign in.
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.GoogleAuth(r.Context(), service.GoogleProfile{
		GoogleID:  req.GoogleID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Birthday:  req.Birthday.ptr(),
		Avatar:    req.Avatar,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the Google
// URL. The callback only proceeds when both match, which proves the flow was
// started here.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the server-side Google flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the verified Google profile
//  3. Sign in (or create) the matching account
//  4. Return {user, accessToken}
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.WarnContext(r.Context(), "google callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "google callback: authorization denied", slog.String("error", errParam))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "google authorization was denied"})
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code", Field: "code"})
		return
	}

	// --- Step 2: Exchange code for the Google profile ---
	gu, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WarnContext(r.Context(), "google callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "google authentication failed"})
		return
	}

	// --- Step 3: Sign in ---
	firstName := gu.GivenName
	if firstName == "" {
		firstName = gu.Email
	}
	result, err := h.auth.GoogleAuth(r.Context(), service.GoogleProfile{
		GoogleID:  gu.ID,
		Email:     gu.Email,
		FirstName: firstName,
		LastName:  gu.FamilyName,
		Avatar:    gu.Picture,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// --- Step 4: Respond ---
	writeJSON(w, http.StatusOK, result)
}
