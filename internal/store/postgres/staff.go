package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/identity"
	"hotelpos/backend/internal/store"
)

func (s *Store) CreateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	member.Username = identity.NormalizeUsername(member.Username)
	if member.Username == "" || strings.TrimSpace(member.Name) == "" || member.Role == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO staff (employee_id, username, name, role, pin, password_hash, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		RETURNING id, created_at
	`, nullIfEmpty(member.EmployeeID), member.Username, member.Name, member.Role, member.PIN, member.PasswordHash, member.Active).
		Scan(&member.ID, &member.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %s already exists", store.ErrConflict, member.Username)
		}
		return nil, err
	}
	member.CreatedAt = member.CreatedAt.UTC()
	return &member, nil
}

func (s *Store) GetActiveStaffByUsername(ctx context.Context, username string) (*domain.StaffMember, error) {
	var member domain.StaffMember
	var employeeID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, username, name, role, pin, password_hash, is_active, created_at
		FROM staff
		WHERE username = $1 AND is_active = true
	`, identity.NormalizeUsername(username)).Scan(
		&member.ID, &employeeID, &member.Username, &member.Name, &member.Role,
		&member.PIN, &member.PasswordHash, &member.Active, &member.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	member.EmployeeID = employeeID.String
	member.CreatedAt = member.CreatedAt.UTC()
	return &member, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, username, name, role, is_active, created_at
		FROM staff
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]domain.StaffMember, 0, 16)
	for rows.Next() {
		var member domain.StaffMember
		var employeeID sql.NullString
		if err := rows.Scan(&member.ID, &employeeID, &member.Username, &member.Name, &member.Role, &member.Active, &member.CreatedAt); err != nil {
			return nil, err
		}
		member.EmployeeID = employeeID.String
		member.CreatedAt = member.CreatedAt.UTC()
		staff = append(staff, member)
	}
	return staff, rows.Err()
}

func (s *Store) DeactivateStaff(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE staff SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
