package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/store"
)

func (s *Store) OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.StaffID == 0 {
		return nil, store.ErrValidation
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = s.now()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shifts (staff_id, staff_name, opening_float, closing_cash, status, opened_at)
		VALUES ($1,$2,$3,0,$4,$5)
		RETURNING id
	`, shift.StaffID, shift.StaffName, shift.OpeningFloat, shift.Status, shift.OpenedAt).Scan(&shift.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: shift already open", store.ErrConflict)
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, staffID int64, closingCash decimal.Decimal, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = s.now()
	}
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET status = $2, closing_cash = $3, closed_at = $4
		WHERE staff_id = $1 AND status = $5
		RETURNING id, staff_id, staff_name, opening_float, closing_cash, status, opened_at, closed_at
	`, staffID, domain.ShiftStatusClosed, closingCash, closedAt, domain.ShiftStatusOpen))
	if err != nil {
		return nil, err
	}
	return shift, nil
}

func (s *Store) GetActiveShift(ctx context.Context, staffID int64) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, staff_id, staff_name, opening_float, closing_cash, status, opened_at, closed_at
		FROM shifts
		WHERE staff_id = $1 AND status = $2
	`, staffID, domain.ShiftStatusOpen))
}

func scanShift(row *sql.Row) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.StaffID, &shift.StaffName, &shift.OpeningFloat, &shift.ClosingCash, &shift.Status, &shift.OpenedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	shift.ClosedAt = timePtr(closedAt)
	return &shift, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (request_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, nullIfEmpty(entry.RequestID), entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var requestID, detail sql.NullString
		if err := rows.Scan(&entry.ID, &requestID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.RequestID = requestID.String
		entry.Detail = detail.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
