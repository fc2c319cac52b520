package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/model"
)

// Input limits.
const (
	MinPasswordLength = 6
	MaxUsernameLength = 50
	MaxNameLength     = 100
)

// wrongCredentials is shared by both login failure paths so the response does
// not reveal whether the username exists.
const wrongCredentials = "username or password is wrong"

// AuthService orchestrates registration, sign-in and token validation.
//
//	AuthHandler (HTTP) → AuthService → UserService → UserRepository
//	                                 ↘ TokenService (JWT)
//	                                 ↘ PasswordService (bcrypt)
type AuthService struct {
	users     *UserService
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users *UserService,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	User        *model.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

// RegisterInput is a credential registration request.
type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Birthday  *time.Time
}

// GoogleProfile is a Google identity, either posted by a client that did the
// Google sign-in itself or fetched by the server-side OAuth callback.
type GoogleProfile struct {
	GoogleID  string
	Email     string
	FirstName string
	LastName  string
	Birthday  *time.Time
	Avatar    string
}

// Register creates a credential account. A taken username is a Conflict.
//
// The pre-check gives a clean error in the common case; the UNIQUE constraint
// on username catches the concurrent case and comes back as Conflict too.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	_, exists, err := s.users.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("service: checking username: %w", err)
	}
	if exists {
		return nil, apperror.Conflict("username already exists")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service: hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Birthday:     in.Birthday,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies a username and password and issues an access token.
//
// STATUS DISCIPLINE:
// An unknown username is NotFound and a wrong password is Unauthorized, but
// both carry the same message, so the body never tells an attacker which
// half was wrong.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, ok, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service: looking up user: %w", err)
	}
	if !ok {
		return nil, apperror.NotFoundMessage(wrongCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.InfoContext(ctx, "login failed", "user_id", user.ID)
			return nil, apperror.Unauthorized(wrongCredentials)
		}
		return nil, fmt.Errorf("service: verifying password: %w", err)
	}

	return s.issue(user)
}

// GoogleAuth signs in a Google identity, creating the account on first use.
//
// It is idempotent on GoogleID: the same id always resolves to the same user.
// Two first sign-ins racing each other both try to insert; the loser hits the
// UNIQUE constraint on google_id and re-reads the winner's row.
func (s *AuthService) GoogleAuth(ctx context.Context, p GoogleProfile) (*AuthResult, error) {
	p.GoogleID = strings.TrimSpace(p.GoogleID)
	if p.GoogleID == "" {
		return nil, apperror.ValidationFailed("googleId", "googleId is required")
	}

	user, ok, err := s.users.FindByGoogleID(ctx, p.GoogleID)
	if err != nil {
		return nil, fmt.Errorf("service: looking up google user: %w", err)
	}
	if ok {
		return s.issue(user)
	}

	user, err = s.createGoogleUser(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) createGoogleUser(ctx context.Context, p GoogleProfile) (*model.User, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.TrimSpace(p.Email)

	if p.FirstName == "" {
		return nil, apperror.ValidationFailed("firstName", "firstName is required")
	}
	if err := validateOptionalEmail(p.Email); err != nil {
		return nil, err
	}
	// The avatar is later deleted as "our" file on replacement or account
	// deletion, so it must not name a file someone else uploaded.
	p.Avatar = strings.TrimSpace(p.Avatar)
	if s.users.ownsMedia(p.Avatar) {
		return nil, apperror.ValidationFailed("avatar", "avatar must be an external image url")
	}

	user := &model.User{
		GoogleID:  p.GoogleID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Birthday:  p.Birthday,
		Avatar:    p.Avatar,
	}

	err := s.users.Create(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		existing, ok, findErr := s.users.FindByGoogleID(ctx, p.GoogleID)
		if findErr != nil {
			return nil, fmt.Errorf("service: re-reading google user: %w", findErr)
		}
		if ok {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "google user provisioned", "user_id", user.ID)
	return user, nil
}

// ValidateUser resolves the subject of an already verified token. A subject
// whose account was deleted is Unauthorized. RequireAuth calls this on every
// protected request.
func (s *AuthService) ValidateUser(ctx context.Context, id string) (*model.User, error) {
	user, ok, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: validating user: %w", err)
	}
	if !ok {
		return nil, apperror.Unauthorized("user does not exist")
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Identity())
	if err != nil {
		return nil, fmt.Errorf("service: issuing token: %w", err)
	}
	return &AuthResult{User: user, AccessToken: token}, nil
}

func validateRegistration(in RegisterInput) error {
	if in.Username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if len(in.Username) > MaxUsernameLength {
		return apperror.ValidationFailed("username", fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if strings.ContainsAny(in.Username, " \t\r\n") {
		return apperror.ValidationFailed("username", "username must not contain whitespace")
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if in.FirstName == "" {
		return apperror.ValidationFailed("firstName", "firstName is required")
	}
	if len(in.FirstName) > MaxNameLength {
		return apperror.ValidationFailed("firstName", fmt.Sprintf("firstName must be %d characters or less", MaxNameLength))
	}
	if len(in.LastName) > MaxNameLength {
		return apperror.ValidationFailed("lastName", fmt.Sprintf("lastName must be %d characters or less", MaxNameLength))
	}
	return validateOptionalEmail(in.Email)
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters long", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}

// validateOptionalEmail accepts "" or a bare address like "a@b.c".
// "Alice <a@b.c>" parses as an address too, so the parsed form must equal
// the input.
func validateOptionalEmail(email string) error {
	if email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email must be a valid address")
	}
	return nil
}
