package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/repository"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type DispatchRepo struct {
	db *sql.DB
}

func NewDispatchRepo(db *sql.DB) repository.DispatchRepository {
	return &DispatchRepo{db: db}
}

const dispatchColumns = `id, subscriber_id, digest_date, subject, status, provider, transport_id, error_message, created_at`

func scanDispatchRecord(s rowScanner) (*entity.DispatchRecord, error) {
	var (
		rec         entity.DispatchRecord
		status      string
		transportID sql.NullString
		errorMsg    sql.NullString
	)
	if err := s.Scan(
		&rec.ID, &rec.SubscriberID, &rec.DigestDate, &rec.Subject, &status,
		&rec.Provider, &transportID, &errorMsg, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = entity.DispatchStatus(status)
	rec.TransportID = transportID.String
	rec.ErrorMessage = errorMsg.String
	return &rec, nil
}

func (repo *DispatchRepo) HasSentToday(ctx context.Context, subscriberID int64, date time.Time) (bool, error) {
	const query = `
SELECT EXISTS (
    SELECT 1 FROM dispatch_records
    WHERE subscriber_id = $1 AND digest_date = $2 AND status = 'sent'
)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, subscriberID, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("HasSentToday: %w", err)
	}
	return exists, nil
}

// RecordAttempt appends a ledger row. A sent row conflicting with an existing sent
// row for the same subscriber and date is not inserted and yields ErrAlreadySent.
func (repo *DispatchRepo) RecordAttempt(ctx context.Context, a repository.DispatchAttempt) (*entity.DispatchRecord, error) {
	if !a.Status.Valid() {
		return nil, fmt.Errorf("RecordAttempt: %w", &entity.ValidationError{Field: "status", Message: "unknown status " + string(a.Status)})
	}

	const query = `
INSERT INTO dispatch_records (subscriber_id, digest_date, subject, status, provider, transport_id, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (subscriber_id, digest_date) WHERE status = 'sent' DO NOTHING
RETURNING ` + dispatchColumns
	rec, err := scanDispatchRecord(repo.db.QueryRowContext(ctx, query,
		a.SubscriberID, a.DigestDate, a.Subject, string(a.Status), a.Provider,
		nullString(a.TransportID), nullString(a.ErrorMessage),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("RecordAttempt: %w", repository.ErrAlreadySent)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, fmt.Errorf("RecordAttempt: %w", repository.ErrAlreadySent)
	}
	if err != nil {
		return nil, fmt.Errorf("RecordAttempt: %w", err)
	}
	return rec, nil
}

func (repo *DispatchRepo) CountAttempts(
	ctx context.Context, subscriberID int64, date time.Time, status entity.DispatchStatus,
) (int, error) {
	const query = `
SELECT COUNT(*) FROM dispatch_records
WHERE subscriber_id = $1 AND digest_date = $2 AND status = $3`
	var n int
	if err := repo.db.QueryRowContext(ctx, query, subscriberID, date, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountAttempts: %w", err)
	}
	return n, nil
}

func (repo *DispatchRepo) ListByDate(ctx context.Context, date time.Time) ([]*entity.DispatchRecord, error) {
	const query = `
SELECT ` + dispatchColumns + `
FROM dispatch_records
WHERE digest_date = $1
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("ListByDate: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*entity.DispatchRecord, 0, 64)
	for rows.Next() {
		rec, err := scanDispatchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByDate: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByDate: %w", err)
	}
	return records, nil
}

// Search builds its WHERE clause from the non-zero filter fields.
func (repo *DispatchRepo) Search(ctx context.Context, f repository.DispatchFilter) ([]*entity.DispatchRecord, error) {
	b := sq.Select(dispatchColumns).
		From("dispatch_records").
		OrderBy("created_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)
	if f.SubscriberID != 0 {
		b = b.Where(sq.Eq{"subscriber_id": f.SubscriberID})
	}
	if !f.DigestDate.IsZero() {
		b = b.Where(sq.Eq{"digest_date": f.DigestDate})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("Search: build query: %w", err)
	}
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*entity.DispatchRecord
	for rows.Next() {
		rec, err := scanDispatchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
