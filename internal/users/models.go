package users

import "github.com/mind-engage/quizdesk/internal/apperr"

const (
	RoleStudent = "student"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

var ErrNotFound = apperr.ErrNotFound

type User struct {
	ID           string `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email,omitempty" db:"email"`
	Role         string `json:"role" db:"role"`
	PasswordHash string `json:"-" db:"password_hash"`
	CreatedAt    int64  `json:"created_at" db:"created_at"`
}

// Row is one entry of a bulk upsert (JSON body or CSV upload).
type Row struct {
	ID       string `json:"id"`
	Username string `json:"username" validate:"notblank"`
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"omitempty,oneof=student manager admin"`
	Password string `json:"password,omitempty"`
}

func ValidRole(r string) bool {
	return r == RoleStudent || r == RoleManager || r == RoleAdmin
}

// IsStaff reports whether role may manage courses, banks and quizzes.
func IsStaff(role string) bool { return role == RoleManager || role == RoleAdmin }
