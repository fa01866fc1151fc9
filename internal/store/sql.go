package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/havenstay/backend/internal/models"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders into ?N for SQLite, which binds "$1" as a
// named parameter in order of appearance rather than by number.
func (d Dialect) rebind(query string) string {
	if d != SQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}

// SQLStore persists ledgers in a relational database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB exposes the handle for collaborators sharing the connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	guest_name TEXT NOT NULL DEFAULT '',
	guest_email TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS booking_ledgers (
	booking_id TEXT PRIMARY KEY REFERENCES bookings(id),
	total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
	down_payment BIGINT NOT NULL DEFAULT 0 CHECK (down_payment >= 0),
	amount_paid BIGINT NOT NULL CHECK (amount_paid >= 0),
	remaining_balance BIGINT NOT NULL CHECK (remaining_balance >= 0),
	claimed_amount BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
	proof_reference TEXT,
	rejection_reason TEXT,
	reviewed_by TEXT,
	reviewed_at TIMESTAMP,
	submitted_at TIMESTAMP,
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_booking_ledgers_status ON booking_ledgers (status);

CREATE TABLE IF NOT EXISTS staff_activity_logs (
	id TEXT PRIMARY KEY,
	employment_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action TEXT NOT NULL,
	details TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staff_activity_logs_employee ON staff_activity_logs (employment_id);
`

// Migrate creates the schema. Production deployments run versioned
// migrations; this keeps local and test databases usable.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storageError("migrate", err)
	}
	return nil
}

const ledgerColumns = `
	l.booking_id, COALESCE(b.guest_name, ''), COALESCE(b.guest_email, ''),
	l.total_amount, l.down_payment, l.amount_paid, l.remaining_balance, l.claimed_amount,
	l.status, l.proof_reference, l.rejection_reason, l.reviewed_by, l.reviewed_at, l.submitted_at,
	l.version, l.created_at, l.updated_at`

const ledgerFrom = `
	FROM booking_ledgers l
	LEFT JOIN bookings b ON b.id = l.booking_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (*models.LedgerRecord, error) {
	var (
		rec                                   models.LedgerRecord
		status                                string
		proof, reason, reviewer               sql.NullString
		reviewedAt, submittedAt               sql.NullTime
		total, down, paid, remaining, claimed int64
	)

	err := row.Scan(
		&rec.BookingID, &rec.GuestName, &rec.GuestEmail,
		&total, &down, &paid, &remaining, &claimed,
		&status, &proof, &reason, &reviewer, &reviewedAt, &submittedAt,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.TotalAmount = amount(total)
	rec.DownPayment = amount(down)
	rec.AmountPaid = amount(paid)
	rec.RemainingBal = amount(remaining)
	rec.ClaimedAmount = amount(claimed)
	rec.Status = models.PaymentStatus(status)
	rec.ProofReference = fromNullString(proof)
	rec.RejectionReason = fromNullString(reason)
	rec.ReviewedBy = fromNullString(reviewer)
	rec.ReviewedAt = fromNullTime(reviewedAt)
	rec.SubmittedAt = fromNullTime(submittedAt)
	return &rec, nil
}

// Load reads the ledger of one booking.
func (s *SQLStore) Load(ctx context.Context, bookingID string) (*models.LedgerRecord, error) {
	query := s.dialect.rebind(`SELECT` + ledgerColumns + ledgerFrom + `
	WHERE l.booking_id = $1`)

	rec, err := scanLedger(s.db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrBookingNotFound, bookingID)
	}
	if err != nil {
		return nil, storageError("load ledger", err)
	}
	return rec, nil
}

// CommitIfVersion writes the mutable ledger columns guarded by the version
// token. The check and the write are a single statement, so two writers that
// loaded the same version cannot both succeed.
func (s *SQLStore) CommitIfVersion(ctx context.Context, rec *models.LedgerRecord, expectedVersion int64) (int64, error) {
	query := s.dialect.rebind(`
	UPDATE booking_ledgers
	SET amount_paid = $1, remaining_balance = $2, claimed_amount = $3, status = $4,
		proof_reference = $5, rejection_reason = $6, reviewed_by = $7, reviewed_at = $8,
		submitted_at = $9, updated_at = $10, version = version + 1
	WHERE booking_id = $11 AND version = $12`)

	result, err := s.db.ExecContext(ctx, query,
		int64(rec.AmountPaid), int64(rec.RemainingBal), int64(rec.ClaimedAmount), string(rec.Status),
		toNullString(rec.ProofReference), toNullString(rec.RejectionReason), toNullString(rec.ReviewedBy),
		toNullTime(rec.ReviewedAt), toNullTime(rec.SubmittedAt), rec.UpdatedAt,
		rec.BookingID, expectedVersion,
	)
	if err != nil {
		return 0, storageError("commit ledger", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storageError("commit ledger", err)
	}
	if rowsAffected == 0 {
		return 0, fmt.Errorf("%w: booking %s at version %d", models.ErrConflict, rec.BookingID, expectedVersion)
	}

	return expectedVersion + 1, nil
}

// Create records the booking metadata (if not present yet) and its initial ledger.
func (s *SQLStore) Create(ctx context.Context, rec *models.LedgerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin create", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
	INSERT INTO bookings (id, guest_name, guest_email, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING`),
		rec.BookingID, rec.GuestName, rec.GuestEmail, rec.CreatedAt)
	if err != nil {
		return storageError("insert booking", err)
	}

	if rec.Version == 0 {
		rec.Version = 1
	}

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
	INSERT INTO booking_ledgers (booking_id, total_amount, down_payment, amount_paid, remaining_balance,
		claimed_amount, status, proof_reference, rejection_reason, reviewed_by, reviewed_at, submitted_at,
		version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`),
		rec.BookingID, int64(rec.TotalAmount), int64(rec.DownPayment), int64(rec.AmountPaid), int64(rec.RemainingBal),
		int64(rec.ClaimedAmount), string(rec.Status), toNullString(rec.ProofReference), toNullString(rec.RejectionReason),
		toNullString(rec.ReviewedBy), toNullTime(rec.ReviewedAt), toNullTime(rec.SubmittedAt),
		rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateBooking, rec.BookingID)
		}
		return storageError("insert ledger", err)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit create", err)
	}
	return nil
}

var sortColumns = map[models.SortField]string{
	models.SortBookingID:   "l.booking_id",
	models.SortGuest:       "LOWER(COALESCE(b.guest_name, ''))",
	models.SortTotalAmount: "l.total_amount",
	models.SortDownPayment: "l.down_payment",
	models.SortAmountPaid:  "l.amount_paid",
	models.SortRemaining:   "l.remaining_balance",
	models.SortStatus:      "l.status",
	models.SortCreatedAt:   "l.created_at",
}

// likeEscaper makes search text match literally, as MemoryStore does.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// filter builds the WHERE clause shared by List and Summary.
func filter(status models.PaymentStatus, search string) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	if status != "" {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", argIndex))
		args = append(args, string(status))
		argIndex++
	}

	if q := strings.TrimSpace(search); q != "" {
		conditions = append(conditions, fmt.Sprintf(
			`(LOWER(l.booking_id) LIKE $%d ESCAPE '\' OR LOWER(COALESCE(b.guest_name, '')) LIKE $%d ESCAPE '\')`, argIndex, argIndex))
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(q))+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns one page of ledgers, newest first unless a sort is given.
func (s *SQLStore) List(ctx context.Context, q models.ListQuery) (*models.LedgerPage, error) {
	where, args := filter(q.Status, q.Search)

	var total int
	countQuery := s.dialect.rebind(`SELECT COUNT(*)` + ledgerFrom + where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, storageError("count ledgers", err)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = sortColumns[models.SortCreatedAt]
		q.SortDesc = true
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	query := `SELECT` + ledgerColumns + ledgerFrom + where +
		fmt.Sprintf(" ORDER BY %s %s, l.booking_id ASC LIMIT $%d OFFSET $%d", column, direction, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, storageError("list ledgers", err)
	}
	defer rows.Close()

	items := []models.LedgerRecord{}
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, storageError("scan ledger", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list ledgers", err)
	}

	return newPage(items, q, total), nil
}

// Summary aggregates counts and totals over the ledgers matching search.
func (s *SQLStore) Summary(ctx context.Context, search string) (*models.StatusSummary, error) {
	where, args := filter("", search)
	query := s.dialect.rebind(`
	SELECT
		COALESCE(SUM(CASE WHEN l.status = 'approved' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN l.status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN l.status = 'rejected' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(l.total_amount), 0),
		COALESCE(SUM(l.amount_paid), 0),
		COALESCE(SUM(l.remaining_balance), 0)` + ledgerFrom + where)

	var summary models.StatusSummary
	var total, paid, remaining int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.Approved, &summary.Pending, &summary.Rejected, &total, &paid, &remaining)
	if err != nil {
		return nil, storageError("summarize ledgers", err)
	}
	summary.TotalAmount = amount(total)
	summary.TotalPaid = amount(paid)
	summary.TotalRemaining = amount(remaining)
	return &summary, nil
}

func storageError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

// InsertActivity appends a staff activity log entry.
func (s *SQLStore) InsertActivity(ctx context.Context, entry models.ActivityLog) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
	INSERT INTO staff_activity_logs (id, employment_id, action_type, action, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`),
		entry.ID, entry.EmploymentID, entry.ActionType, entry.Action, entry.Details, entry.CreatedAt)
	if err != nil {
		return storageError("insert activity log", err)
	}
	return nil
}
