// Package tracker persists a record of every reminder send attempt.
package tracker

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/domain"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS email_tracking (
	id SERIAL PRIMARY KEY,
	projectid VARCHAR(255) NOT NULL,
	bidpackageid VARCHAR(255) NOT NULL,
	firstname VARCHAR(255),
	lastname VARCHAR(255),
	inviteid VARCHAR(255) NOT NULL,
	title VARCHAR(255),
	email VARCHAR(255) NOT NULL,
	projectname VARCHAR(255),
	bidpackagename VARCHAR(255),
	bidinvitelink TEXT,
	bidsdueat TIMESTAMP,
	daysuntilbidsdue INTEGER,
	sentat TIMESTAMP NOT NULL DEFAULT NOW(),
	status VARCHAR(50) NOT NULL
);`

const insertAttemptSQL = `
INSERT INTO email_tracking (
	projectid, bidpackageid, firstname, lastname, inviteid, title, email,
	projectname, bidpackagename, bidinvitelink, bidsdueat, daysuntilbidsdue,
	sentat, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id;`

// PostgresTracker writes send records to the email_tracking table.
type PostgresTracker struct {
	pool *pgxpool.Pool
}

// NewPostgresTracker connects to databaseURL and ensures the tracking table
// exists.
func NewPostgresTracker(ctx context.Context, databaseURL string) (*PostgresTracker, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure email_tracking table: %w", err)
	}

	return &PostgresTracker{pool: pool}, nil
}

func (t *PostgresTracker) Close() {
	t.pool.Close()
}

// LogAttempt inserts one send record.
func (t *PostgresTracker) LogAttempt(ctx context.Context, attempt domain.EmailAttempt) error {
	var id int64

	err := t.pool.QueryRow(ctx, insertAttemptSQL,
		attempt.ProjectID,
		attempt.BidPackageID,
		attempt.FirstName,
		attempt.LastName,
		attempt.InviteID,
		attempt.Title,
		attempt.Email,
		attempt.ProjectName,
		attempt.BidPackageName,
		attempt.LinkToBid,
		attempt.BidsDueAt.UTC(),
		attempt.DaysUntilDue,
		attempt.SentAt.UTC(),
		attempt.Status,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert email tracking record: %w", err)
	}

	log.Debug().
		Int64("record_id", id).
		Str("email", attempt.Email).
		Str("status", attempt.Status).
		Msg("Logged email attempt")

	return nil
}

// Stats summarizes tracked sends by status.
func (t *PostgresTracker) Stats(ctx context.Context) (map[string]int64, error) {
	rows, err := t.pool.Query(ctx, `SELECT status, COUNT(*) FROM email_tracking GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query email stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}

	return stats, rows.Err()
}

// RecentSends returns the most recent send records, newest first.
func (t *PostgresTracker) RecentSends(ctx context.Context, limit int) ([]domain.EmailAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := t.pool.Query(ctx, `
		SELECT projectid, bidpackageid, firstname, lastname, inviteid, title,
		       email, projectname, bidpackagename, bidinvitelink, bidsdueat,
		       daysuntilbidsdue, sentat, status
		FROM email_tracking
		ORDER BY sentat DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sends: %w", err)
	}
	defer rows.Close()

	var attempts []domain.EmailAttempt
	for rows.Next() {
		var a domain.EmailAttempt
		err := rows.Scan(
			&a.ProjectID, &a.BidPackageID, &a.FirstName, &a.LastName,
			&a.InviteID, &a.Title, &a.Email, &a.ProjectName,
			&a.BidPackageName, &a.LinkToBid, &a.BidsDueAt,
			&a.DaysUntilDue, &a.SentAt, &a.Status,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// NoopTracker satisfies the tracker contract when no database is configured.
type NoopTracker struct{}

func (NoopTracker) LogAttempt(ctx context.Context, attempt domain.EmailAttempt) error {
	return nil
}
