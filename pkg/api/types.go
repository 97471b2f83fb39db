package api

import (
	"time"

	"github.com/platinummonkey/authgate/pkg/users"
)

// Response messages
const (
	MessageAccountCreated     = "Account created successfully"
	MessageLoginSuccessful    = "Login successful"
	MessageInvalidToken       = "Invalid identity token"
	MessageInvalidRequestBody = "Invalid request body"
	MessageUserNotFound       = "User not found"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	IDToken    string  `json:"idToken"`
	Department *string `json:"department,omitempty"`
}

// UserView is the public shape of a user record
type UserView struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       *string    `json:"name"`
	Role       string     `json:"role"`
	Department *string    `json:"department"`
	AvatarURL  *string    `json:"avatarUrl"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// LoginResponse is the success body of POST /auth/login
type LoginResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	IsNewUser bool      `json:"isNewUser"`
	User      *UserView `json:"user"`
}

// UserResponse is the success body of GET /auth/users/{id}
type UserResponse struct {
	Success bool      `json:"success"`
	User    *UserView `json:"user"`
}

// UsersResponse is the success body of GET /auth/users
type UsersResponse struct {
	Success bool        `json:"success"`
	Users   []*UserView `json:"users"`
	Count   int         `json:"count"`
}

func newUserView(u *users.User, withCreatedAt bool) *UserView {
	v := &UserView{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Department: u.Department,
		AvatarURL:  u.AvatarURL,
	}
	if withCreatedAt && !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		v.CreatedAt = &created
	}
	return v
}
