package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/identity"
	"hotelpos/backend/internal/store"
)

// CreateStaff stores the PIN and password as bcrypt hashes. Legacy rows with
// plain PINs keep working through the identity checker.
func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (*domain.StaffMember, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if strings.ContainsAny(strings.TrimSpace(req.Username), " \t\r\n") {
		return nil, fmt.Errorf("%w: username must not contain spaces", store.ErrValidation)
	}
	req.Username = identity.NormalizeUsername(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := identity.CheckPINStrength(req.PIN.String()); err != nil {
		return nil, err
	}

	pinHash, err := identity.HashSecret(req.PIN.String())
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}
	member := domain.StaffMember{
		EmployeeID: req.EmployeeID,
		Username:   req.Username,
		Name:       req.Name,
		Role:       req.Role,
		PIN:        pinHash,
		Active:     true,
		CreatedAt:  s.now(),
	}
	if req.Password != "" {
		member.PasswordHash, err = identity.HashSecret(req.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	created, err := s.repo.CreateStaff(ctx, member)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "staff_create", "staff", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("username=%s,role=%s", created.Username, created.Role))
	return created, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	return s.repo.ListStaff(ctx)
}

func (s *Service) DeactivateStaff(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if actor.StaffID == id {
		return fmt.Errorf("%w: cannot deactivate your own account", store.ErrValidation)
	}
	if err := s.repo.DeactivateStaff(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "staff_deactivate", "staff", strconv.FormatInt(id, 10), "")
	return nil
}

// ValidatePIN answers a terminal's PIN prompt. Unknown users and wrong PINs
// both come back as {valid:false}.
func (s *Service) ValidatePIN(ctx context.Context, req domain.PINValidationRequest) (domain.PINValidation, error) {
	if strings.TrimSpace(req.Username) == "" || req.PIN.String() == "" {
		return domain.PINValidation{}, fmt.Errorf("%w: username and pin are required", store.ErrValidation)
	}
	return s.identity.ValidatePIN(ctx, req.Username, req.PIN)
}

// Authenticate checks a password login. Token issuance is left to the caller.
func (s *Service) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.StaffMember, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	member, err := s.identity.ValidatePassword(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	s.logAudit(WithActor(ctx, domain.Actor{StaffID: member.ID, Username: member.Username, Role: member.Role}),
		"auth_login", "staff", strconv.FormatInt(member.ID, 10), "")
	return member, nil
}
