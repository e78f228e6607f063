package models

import "time"

type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	PasswordHash     string     `json:"-"`
	SuperAdmin       bool       `json:"super_admin"`
	Locked           bool       `json:"locked"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	TOTPSecret       *string    `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
}
