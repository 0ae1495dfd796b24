// Package repository implements the share RecordStore on Postgres via pgx.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftshare/driftshare/internal/share"
)

// uniqueViolation is the Postgres error code for a unique index conflict.
const uniqueViolation = "23505"

// ShareRepository wraps all SQL used by the engine and the sweeper.
type ShareRepository struct {
	pool *pgxpool.Pool
}

// NewShareRepository constructs a repository.
func NewShareRepository(pool *pgxpool.Pool) *ShareRepository {
	return &ShareRepository{pool: pool}
}

const shareColumns = `id, locator, blob_key, file_name, media_type, size_bytes,
	uploaded_at, ttl_millis, max_downloads, remaining_downloads,
	COALESCE(password_hash,''), terminal, updated_at`

// Insert persists a freshly created record. A locator uniqueness conflict is
// mapped to share.ErrLocatorTaken so the engine can retry with a new token.
func (r *ShareRepository) Insert(ctx context.Context, rec *share.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shares (id, locator, blob_key, file_name, media_type, size_bytes,
			uploaded_at, ttl_millis, max_downloads, remaining_downloads,
			password_hash, terminal, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.ID, rec.Locator, rec.BlobKey, rec.FileName, rec.MediaType, rec.SizeBytes,
		rec.UploadedAt, rec.TTLMillis, rec.MaxDownloads, rec.RemainingDownloads,
		nullIfEmpty(rec.PasswordHash), rec.Terminal, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return share.ErrLocatorTaken
		}
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// GetByID returns a record by its internal id.
func (r *ShareRepository) GetByID(ctx context.Context, id string) (*share.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shareColumns+` FROM shares WHERE id=$1`, id)
	return scanShare(row)
}

// GetByLocator returns a record by its public token.
func (r *ShareRepository) GetByLocator(ctx context.Context, locator string) (*share.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shareColumns+` FROM shares WHERE locator=$1`, locator)
	return scanShare(row)
}

// ConsumeDownload decrements the budget and sets the terminal flag in one
// UPDATE, so two concurrent calls against a single remaining unit can never
// both succeed. The WHERE clause is the zero-check; a row that no longer
// qualifies is simply not updated.
func (r *ShareRepository) ConsumeDownload(ctx context.Context, id string) (share.DecrementResult, error) {
	var (
		remaining int
		terminal  bool
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE shares
		SET remaining_downloads = remaining_downloads - 1,
			terminal = (remaining_downloads - 1 <= 0),
			updated_at = $2
		WHERE id = $1 AND NOT terminal AND remaining_downloads > 0
		RETURNING remaining_downloads, terminal
	`, id, time.Now().UTC()).Scan(&remaining, &terminal)
	if err == nil {
		return share.DecrementResult{NewRemaining: remaining, BecameTerminal: terminal}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return share.DecrementResult{}, fmt.Errorf("consume download: %w", err)
	}
	// No row matched: either the record is gone or the budget is spent. The
	// distinction does not need to be atomic, only the decrement above.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shares WHERE id=$1)`, id).Scan(&exists); err != nil {
		return share.DecrementResult{}, fmt.Errorf("check share exists: %w", err)
	}
	if !exists {
		return share.DecrementResult{}, share.ErrNotFound
	}
	return share.DecrementResult{}, share.ErrBudgetExhausted
}

// FindReclaimable returns every record that is terminal, out of budget, or
// past its TTL at the given instant.
func (r *ShareRepository) FindReclaimable(ctx context.Context, now time.Time) ([]*share.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+shareColumns+`
		FROM shares
		WHERE terminal
		   OR remaining_downloads <= 0
		   OR uploaded_at + (ttl_millis * interval '1 millisecond') < $1
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select reclaimable shares: %w", err)
	}
	defer rows.Close()

	var out []*share.Record
	for rows.Next() {
		rec, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reclaimable shares: %w", err)
	}
	return out, nil
}

// Delete removes the record row.
func (r *ShareRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shares WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return share.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*share.Record, error) {
	var (
		rec       share.Record
		maxDL     sql.NullInt32
		remaining sql.NullInt32
	)
	err := row.Scan(&rec.ID, &rec.Locator, &rec.BlobKey, &rec.FileName, &rec.MediaType,
		&rec.SizeBytes, &rec.UploadedAt, &rec.TTLMillis, &maxDL, &remaining,
		&rec.PasswordHash, &rec.Terminal, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, share.ErrNotFound
		}
		return nil, fmt.Errorf("scan share: %w", err)
	}
	if maxDL.Valid {
		v := int(maxDL.Int32)
		rec.MaxDownloads = &v
	}
	if remaining.Valid {
		v := int(remaining.Int32)
		rec.RemainingDownloads = &v
	}
	return &rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
