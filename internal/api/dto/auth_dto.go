package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse returns the issued access token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmployeeResponse is the public view of an employee.
type EmployeeResponse struct {
	ID       int64               `json:"id"`
	Name     string              `json:"name"`
	Email    string              `json:"email"`
	Role     domain.EmployeeRole `json:"role"`
	Channel  *domain.Channel     `json:"channel,omitempty"`
	AreaIDs  []int64             `json:"area_ids,omitempty"`
	Capacity int                 `json:"capacity,omitempty"`
}
