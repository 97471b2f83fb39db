package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/authgate/pkg/auth"
	"github.com/platinummonkey/authgate/pkg/httputil"
	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/platinummonkey/authgate/pkg/users"
)

// AuthService is the workflow behind the auth routes
type AuthService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	GetUser(ctx context.Context, id string) (*users.User, error)
	ListUsers(ctx context.Context) ([]*users.User, error)
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	service AuthService
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(service AuthService) *AuthHandlers {
	return &AuthHandlers{service: service}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/auth/users", h.listUsers).Methods(http.MethodGet)
	router.HandleFunc("/auth/users/{id}", h.getUser).Methods(http.MethodGet)
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		observability.FromContext(r.Context()).WithError(err).Debug("Malformed login body")
		httputil.WriteBadRequest(w, MessageInvalidRequestBody)
		return
	}
	if req.IDToken == "" {
		httputil.WriteBadRequest(w, MessageInvalidToken)
		return
	}

	res, err := h.service.Login(r.Context(), auth.LoginRequest{
		IDToken:    req.IDToken,
		Department: req.Department,
	})
	switch {
	case errors.Is(err, auth.ErrInvalidIdentityToken):
		httputil.WriteBadRequest(w, MessageInvalidToken)
		return
	case err != nil:
		httputil.WriteInternalError(w)
		return
	}

	message := MessageLoginSuccessful
	if res.IsNewUser {
		message = MessageAccountCreated
	}

	httputil.WriteSuccess(w, LoginResponse{
		Success:   true,
		Message:   message,
		Token:     res.Token,
		IsNewUser: res.IsNewUser,
		User:      newUserView(res.User, false),
	})
}

// getUser handles GET /auth/users/{id}
func (h *AuthHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteNotFound(w, MessageUserNotFound)
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteNotFound(w, MessageUserNotFound)
		return
	case err != nil:
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, UserResponse{Success: true, User: newUserView(u, true)})
}

// listUsers handles GET /auth/users
func (h *AuthHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.ListUsers(r.Context())
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	views := make([]*UserView, 0, len(all))
	for _, u := range all {
		views = append(views, newUserView(u, true))
	}

	httputil.WriteSuccess(w, UsersResponse{Success: true, Users: views, Count: len(views)})
}
