// Package persistence implements the document store half of spec.md
// §6's persisted-state layout: "one document per company id with the
// full profile and provenance; schemaless JSON; size unrestricted."
// Grounded on the teacher's internal/persistence/postgres.go (the
// *sql.DB wrapper, connection-pool settings, PingContext health check)
// and postgres_repos.go's query()/scanX() repository shape, generalized
// from the teacher's five typed repositories (articles, summaries,
// feeds, feed items, digests) down to a single JSONB document table
// keyed by company id, since spec.md describes the document store as
// schemaless rather than a normalized relational schema.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"briefly/internal/core"
)

// PostgresDB implements the orchestrator's DocumentStore contract against
// a single JSONB-column table, plus an append-only progress-log table for
// durable, queryable event retention. internal/progress's Bus keeps its
// events in memory and does not write to this table.
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB opens a connection pool to connectionString and verifies
// it with a bounded ping, mirroring the teacher's NewPostgresDB.
func NewPostgresDB(connectionString string, maxConns, idleConns int) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	if idleConns <= 0 {
		idleConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping verifies the database is reachable.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// SaveCompany upserts company's full profile as a JSONB document, keyed
// by id — the orchestrator's "(2) persists the full profile to the
// document store" commit step (spec.md §4.5).
func (p *PostgresDB) SaveCompany(ctx context.Context, company *core.Company) error {
	doc, err := json.Marshal(company)
	if err != nil {
		return fmt.Errorf("failed to marshal company %s: %w", company.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, website, document, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			website = EXCLUDED.website,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`, company.ID, company.Name, company.Website, doc, company.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save company %s: %w", company.ID, err)
	}
	return nil
}

// GetCompany fetches a previously saved company's full profile.
func (p *PostgresDB) GetCompany(ctx context.Context, id string) (*core.Company, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT document FROM companies WHERE id = $1`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("company %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch company %s: %w", id, err)
	}

	var company core.Company
	if err := json.Unmarshal(doc, &company); err != nil {
		return nil, fmt.Errorf("failed to unmarshal company %s: %w", id, err)
	}
	return &company, nil
}

// DeleteCompany removes a company's document, completing the
// orchestrator's DocumentStore contract. The orchestrator's compensating
// delete after a failed document write removes the vector record, not
// this document.
func (p *PostgresDB) DeleteCompany(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete company %s: %w", id, err)
	}
	return nil
}

// AppendProgressEvent appends one progress/terminal event to the durable
// progress log (spec.md §6's "Progress log: append-only per-job event
// list retained for a configurable window"). kind is "progress" or
// "terminal"; payload is the JSON-encoded event.
func (p *PostgresDB) AppendProgressEvent(ctx context.Context, jobID, kind string, payload []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO progress_log (job_id, kind, payload, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, jobID, kind, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append progress event for job %s: %w", jobID, err)
	}
	return nil
}

// PruneProgressLog deletes progress-log rows older than olderThan, the
// "configurable window" spec.md §6 names for the progress log's
// retention policy.
func (p *PostgresDB) PruneProgressLog(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM progress_log WHERE recorded_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune progress log: %w", err)
	}
	return res.RowsAffected()
}
