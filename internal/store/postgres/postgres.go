package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/schema"
	"hotelpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db          *sql.DB
	caps        schema.Capabilities
	locker      numbering.Locker
	autoMigrate bool
	now         func() time.Time
}

type Option func(*Store)

// WithAutoMigrate applies the embedded schema before the first probe.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Store) {
		s.autoMigrate = enabled
	}
}

// WithLocker sets the lock used to number documents when the database has no
// document_sequences table. The default only covers one process.
func WithLocker(locker numbering.Locker) Option {
	return func(s *Store) {
		if locker != nil {
			s.locker = locker
		}
	}
}

func New(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		locker: numbering.NewLocalLocker(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.autoMigrate {
		err = s.Migrate(ctx)
	} else {
		err = s.Reprobe(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates any missing tables. It never renames or drops columns, so a
// database that still carries legacy column names keeps them.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return s.Reprobe(ctx)
}

// Reprobe refreshes the schema capabilities. Call it after a migration has
// changed the live schema.
func (s *Store) Reprobe(ctx context.Context) error {
	caps, err := schema.Probe(ctx, schema.NewProber(columnLister{db: s.db}))
	if err != nil {
		return err
	}
	s.caps = caps
	log.Info().
		Int("version", caps.Version).
		Bool("document_sequences", caps.HasDocumentSequences).
		Strs("po_number_columns", caps.PONumber.WriteColumns()).
		Strs("po_item_quantity_columns", caps.POItemQuantity.WriteColumns()).
		Msg("postgres schema probed")
	return nil
}

func (s *Store) Capabilities() schema.Capabilities {
	return s.caps
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type columnLister struct {
	db *sql.DB
}

func (l columnLister) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make([]string, 0, 16)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertBuilder collects column/value pairs for an INSERT whose column list
// depends on the probed schema.
type insertBuilder struct {
	cols []string
	args []any
}

func (b *insertBuilder) add(col string, value any) {
	b.cols = append(b.cols, col)
	b.args = append(b.args, value)
}

// addPair writes value to every present column of a renamed pair.
func (b *insertBuilder) addPair(pair schema.ColumnPair, value any) {
	b.addRenamed(pair, value, value)
}

// addRenamed is addPair for pairs whose legacy column has a different type.
func (b *insertBuilder) addRenamed(pair schema.ColumnPair, current any, legacy any) {
	if pair.HasCurrent {
		b.add(pair.Current, current)
	}
	if pair.HasLegacy {
		b.add(pair.Legacy, legacy)
	}
}

func (b *insertBuilder) build(table string, returning string) string {
	placeholders := make([]string, len(b.cols))
	for i := range b.cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(b.cols, ", "), strings.Join(placeholders, ", "))
	if returning != "" {
		query += " RETURNING " + returning
	}
	return query
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return dateUTC(*val)
}

func dateUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func int64Ptr(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	v := val.Int64
	return &v
}
