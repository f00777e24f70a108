package auth

import "time"

// Roles known to the service. Every user carries exactly one.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User is an account able to authenticate against the service. Password hash
// and reset-token fields never leave the server.
type User struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	Active       bool   `json:"active"`
	Phone        string `json:"phone"`
	Department   string `json:"department"`
	Function     string `json:"function"`

	ResetToken       string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user carries the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
