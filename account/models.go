package account

import "time"

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleArbiter    Role = "arbiter"
	RoleOperator   Role = "operator"
)

// User is the domain representation of a platform identity. It mirrors
// the users table and carries no JSON annotations so it can be reused by
// different presentation layers.
type User struct {
	ID            string
	Email         string
	FullName      string
	PasswordHash  string
	WalletAddress *string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegisterRequest contains registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
