package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. With a plain string key any
// package that knows the string could read or shadow the value. Only this
// package can create a contextKey, so only this package can set the user.
type contextKey string

const userKey contextKey = "user"

// UserValidator resolves a token subject to a live account.
// service.AuthService implements it; it must return an error wrapping
// apperror.ErrUnauthorized when the account no longer exists.
type UserValidator interface {
	ValidateUser(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth is the middleware guarding protected routes.
//
// For every request it:
//  1. reads "Authorization: Bearer <token>"
//  2. validates signature, issuer and expiry (TokenService.Validate)
//  3. resolves the subject through users, so a token issued before the
//     account was deleted stops working immediately
//  4. stores the *model.User in the request context for handlers
//
// Any failure ends the request with 401 and a JSON error body.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns one that wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
func RequireAuth(tokens *TokenService, users UserValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "valid authentication required")
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					writeUnauthorized(w, "token expired")
					return
				}
				writeUnauthorized(w, "invalid token")
				return
			}

			user, err := users.ValidateUser(r.Context(), claims.UserID)
			if err != nil {
				var appErr *apperror.AppError
				if errors.As(err, &appErr) && errors.Is(err, apperror.ErrUnauthorized) {
					writeUnauthorized(w, appErr.Message)
					return
				}
				logger.ErrorContext(r.Context(), "resolving token subject", "user_id", claims.UserID, "error", err)
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a context carrying the authenticated user.
// RequireAuth uses it; tests use it to call handlers directly.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) on routes
// not behind RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// bearerToken extracts the token from the Authorization header.
// The scheme is matched case-insensitively per RFC 6750.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

// writeAuthError writes the same {"error","message"} body as handler.writeError.
func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="media-backend"`)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
