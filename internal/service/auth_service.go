package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// AuthService coordinates employee login and registration.
type AuthService struct {
	employees  repository.EmployeeRepository
	areas      repository.AreaRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	EmployeeRepo repository.EmployeeRepository
	AreaRepo     repository.AreaRepository
}

// RegisterEmployeeInput describes a new directory entry.
type RegisterEmployeeInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.EmployeeRole
	Channel  *domain.Channel
	AreaIDs  []int64
	Capacity int
}

// LoginResult carries the issued token.
type LoginResult struct {
	Employee    *domain.Employee
	AccessToken string
	Token       domain.Token
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		employees:  deps.EmployeeRepo,
		areas:      deps.AreaRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL()),
		bcryptCost: cfg.BcryptCost,
	}
}

// Login authenticates an employee and returns a role-bearing token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	employee, err := s.employees.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized(auth.ErrInvalidCredentials.Error())
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(employee.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized(err.Error())
	}
	if !employee.Active {
		return nil, apperrors.NewForbidden("employee inactive")
	}
	access, meta, err := s.tokenMgr.GenerateToken(employee)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{Employee: employee, AccessToken: access, Token: meta}, nil
}

// RegisterEmployee adds an employee to the directory. Role specific fields
// must match the role: a channel for frontline, areas and capacity for
// backoffice, neither for oversight.
func (s *AuthService) RegisterEmployee(ctx context.Context, input RegisterEmployeeInput) (*domain.Employee, error) {
	if err := validateEmployee(input); err != nil {
		return nil, err
	}
	for _, areaID := range input.AreaIDs {
		if _, err := s.areas.GetByID(ctx, areaID); err != nil {
			return nil, notFoundAs(err, "area", map[string]any{"area_id": areaID})
		}
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := s.employees.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewValidationError("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	employee := &domain.Employee{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		Channel:      input.Channel,
		AreaIDs:      input.AreaIDs,
		Capacity:     input.Capacity,
		Active:       true,
	}
	if err := s.employees.Create(ctx, employee); err != nil {
		return nil, apperrors.MapError(err)
	}
	return employee, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func validateEmployee(input RegisterEmployeeInput) error {
	problems := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		problems["name"] = "required"
	}
	if !strings.Contains(input.Email, "@") {
		problems["email"] = "invalid"
	}
	if len(input.Password) < 8 {
		problems["password"] = "at least 8 characters"
	}
	switch input.Role {
	case domain.RoleFrontline:
		if input.Channel == nil || !input.Channel.Valid() {
			problems["channel"] = "frontline employees need a valid channel"
		}
		if len(input.AreaIDs) > 0 || input.Capacity != 0 {
			problems["areas"] = "frontline employees are not bound to areas"
		}
	case domain.RoleBackoffice:
		if input.Channel != nil {
			problems["channel"] = "backoffice employees have no channel"
		}
		if input.Capacity < 0 {
			problems["capacity"] = "must not be negative"
		}
	case domain.RoleOversight:
		if input.Channel != nil || len(input.AreaIDs) > 0 || input.Capacity != 0 {
			problems["role"] = "oversight employees carry no channel, areas or capacity"
		}
	default:
		problems["role"] = "unknown role"
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid employee", problems)
	}
	return nil
}
