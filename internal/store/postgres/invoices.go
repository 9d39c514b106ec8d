package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/store"
)

// NextDocumentNumber reserves the next number of scope on its own.
func (s *Store) NextDocumentNumber(ctx context.Context, scope numbering.Scope, at time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	number, release, err := s.nextNumberTx(ctx, tx, scope, at)
	if err != nil {
		return "", err
	}
	defer release()
	return number, tx.Commit()
}

// nextNumberTx draws a number inside tx. With a document_sequences table the
// counter row is upserted, which holds its row lock until tx ends. Without it
// the last issued number is read back under the store's locker. Callers defer
// release so the lock outlives the commit and nobody reads the same maximum.
func (s *Store) nextNumberTx(ctx context.Context, tx *sql.Tx, scope numbering.Scope, at time.Time) (string, func(), error) {
	noop := func() {}
	if s.caps.HasDocumentSequences {
		var seq int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO document_sequences (scope, last_number)
			VALUES ($1, 1)
			ON CONFLICT (scope) DO UPDATE SET last_number = document_sequences.last_number + 1
			RETURNING last_number
		`, scope.Key(at)).Scan(&seq)
		if err != nil {
			return "", noop, fmt.Errorf("next %s number: %w", scope.Name(), err)
		}
		return scope.Format(at, seq), noop, nil
	}

	release, err := s.locker.Acquire(ctx, scope.Key(at))
	if err != nil {
		return "", noop, err
	}

	var table, column string
	switch scope.Name() {
	case "purchase_order":
		table, column = "purchase_orders", s.caps.PONumber.ReadExpr("")
	default:
		table, column = "invoices", "invoice_number"
	}
	var last sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %[1]s FROM %[2]s
		WHERE %[1]s LIKE $1
		ORDER BY length(%[1]s) DESC, %[1]s DESC
		LIMIT 1
	`, column, table), scope.Prefix(at)+"%").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		release()
		return "", noop, fmt.Errorf("last %s number: %w", scope.Name(), err)
	}
	return scope.Next(last.String, at), release, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice, scope numbering.Scope) (*domain.Invoice, error) {
	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var orderNumber string
	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT order_number, total_amount FROM orders WHERE id = $1 FOR SHARE`, invoice.OrderID).Scan(&orderNumber, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var existing sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT invoice_number FROM invoices WHERE order_id = $1 AND status <> $2 LIMIT 1
	`, invoice.OrderID, domain.InvoiceStatusVoid).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing.Valid {
		return nil, fmt.Errorf("%w: order %s already has invoice %s", store.ErrConflict, orderNumber, existing.String)
	}

	number, release, err := s.nextNumberTx(ctx, tx, scope, invoice.IssuedAt)
	if err != nil {
		return nil, err
	}
	defer release()
	invoice.InvoiceNumber = number
	invoice.Amount = total
	invoice.Status = domain.InvoiceStatusUnpaid
	invoice.PaidAt = nil

	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoices (invoice_number, order_id, amount, status, issued_by, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, invoice.InvoiceNumber, invoice.OrderID, invoice.Amount, invoice.Status, nullIfEmpty(invoice.IssuedBy), invoice.IssuedAt).Scan(&invoice.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invoice for order %s already exists", store.ErrConflict, orderNumber)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	invoice.IssuedAt = invoice.IssuedAt.UTC()
	return &invoice, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var issuedBy sql.NullString
	var paidAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, order_id, amount, status, issued_by, issued_at, paid_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(&invoice.ID, &invoice.InvoiceNumber, &invoice.OrderID, &invoice.Amount, &invoice.Status, &issuedBy, &invoice.IssuedAt, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	invoice.IssuedBy = issuedBy.String
	invoice.IssuedAt = invoice.IssuedAt.UTC()
	invoice.PaidAt = timePtr(paidAt)
	return &invoice, nil
}

// UpdateInvoiceStatus settles or voids an invoice. Paying also completes the
// order's payment.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id int64, status string, at time.Time) (*domain.Invoice, error) {
	if at.IsZero() {
		at = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	var orderID int64
	err = tx.QueryRowContext(ctx, `SELECT status, order_id FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&current, &orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !domain.CanTransitionInvoice(current, status) {
		return nil, fmt.Errorf("%w: cannot move invoice from %s to %s", store.ErrConflict, current, status)
	}

	if status == domain.InvoiceStatusPaid {
		if _, err := tx.ExecContext(ctx, `UPDATE invoices SET status = $2, paid_at = $3 WHERE id = $1`, id, status, at); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1
		`, orderID, domain.PaymentStatusCompleted); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET status = $2 WHERE order_id = $1
		`, orderID, domain.PaymentStatusCompleted); err != nil {
			return nil, err
		}
	} else if _, err := tx.ExecContext(ctx, `UPDATE invoices SET status = $2 WHERE id = $1`, id, status); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, id)
}
