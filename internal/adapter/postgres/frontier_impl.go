package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// FrontierRepoImpl provides a concrete implementation for the FrontierRepository interface using PostgreSQL.
type FrontierRepoImpl struct {
	db *pgxpool.Pool
}

// NewFrontierRepo creates a new instance of FrontierRepoImpl.
func NewFrontierRepo(db *pgxpool.Pool) *FrontierRepoImpl {
	return &FrontierRepoImpl{db: db}
}

const frontierColumns = `id, audit_id, url, normalized_url, depth, status, discovered_from, last_error, created_at, updated_at`

// Enqueue inserts the entry and spends one unit of the audit's discovery budget in the same
// transaction. The unique (audit_id, url_hash) index makes concurrent inserts of the same URL
// collapse into one row; a spent budget rolls the insert back.
func (r *FrontierRepoImpl) Enqueue(ctx context.Context, e *entity.FrontierEntry) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO frontier_entries (audit_id, url, normalized_url, url_hash, depth, discovered_from)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (audit_id, url_hash) DO NOTHING
		RETURNING id, status, created_at, updated_at;
	`
	var status string
	err = tx.QueryRow(ctx, query,
		e.AuditID,
		e.URL,
		e.NormalizedURL,
		urlutil.HashURL(e.NormalizedURL),
		e.Depth,
		e.DiscoveredFrom,
	).Scan(&e.ID, &status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE audits SET pages_discovered = pages_discovered + 1
		WHERE id = $1 AND pages_discovered < pages_limit;
	`, e.AuditID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		e.ID = 0
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	e.Status = entity.FrontierStatus(status)
	return true, nil
}

// Get retrieves one entry by id.
func (r *FrontierRepoImpl) Get(ctx context.Context, id int64) (*entity.FrontierEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+frontierColumns+` FROM frontier_entries WHERE id = $1;`, id)
	e, err := scanFrontierEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return e, err
}

// Claim moves a batch of queued entries to processing. SKIP LOCKED lets several
// coordinators claim from the same audit without handing out an entry twice.
func (r *FrontierRepoImpl) Claim(ctx context.Context, auditID string, maxDepth, limit int) ([]*entity.FrontierEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		UPDATE frontier_entries
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM frontier_entries
			WHERE audit_id = $1 AND status = 'queued' AND depth <= $2
			ORDER BY depth ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + frontierColumns + `;
	`
	rows, err := r.db.Query(ctx, query, auditID, maxDepth, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []*entity.FrontierEntry
	for rows.Next() {
		e, err := scanFrontierEntry(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, e)
	}
	return claimed, rows.Err()
}

// MarkDone moves an entry to done.
func (r *FrontierRepoImpl) MarkDone(ctx context.Context, id int64) error {
	return r.transition(ctx, id, entity.FrontierDone, "")
}

// MarkFailed moves an entry to failed and records the reason.
func (r *FrontierRepoImpl) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.transition(ctx, id, entity.FrontierFailed, reason)
}

func (r *FrontierRepoImpl) transition(ctx context.Context, id int64, to entity.FrontierStatus, reason string) error {
	var from []string
	for _, s := range []entity.FrontierStatus{entity.FrontierQueued, entity.FrontierProcessing} {
		if s.CanTransition(to) {
			from = append(from, string(s))
		}
	}
	query := `
		UPDATE frontier_entries
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4);
	`
	tag, err := r.db.Exec(ctx, query, id, string(to), reason, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == to {
		return nil
	}
	return &entity.TransitionError{EntryID: id, From: current.Status, To: to}
}

// SkipQueued marks every remaining queued entry done without fetching it.
func (r *FrontierRepoImpl) SkipQueued(ctx context.Context, auditID string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE frontier_entries SET status = 'done', updated_at = NOW()
		WHERE audit_id = $1 AND status = 'queued';
	`, auditID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Counts aggregates the frontier of one audit in a single pass.
func (r *FrontierRepoImpl) Counts(ctx context.Context, auditID string, maxDepth int) (entity.FrontierCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued' AND depth <= $2),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'done'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM frontier_entries
		WHERE audit_id = $1;
	`
	var c entity.FrontierCounts
	err := r.db.QueryRow(ctx, query, auditID, maxDepth).Scan(&c.Queued, &c.Processing, &c.Done, &c.Failed)
	return c, err
}

// ListFailed returns the failed entries of the audit.
func (r *FrontierRepoImpl) ListFailed(ctx context.Context, auditID string) ([]*entity.FrontierEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+frontierColumns+` FROM frontier_entries
		WHERE audit_id = $1 AND status = 'failed'
		ORDER BY id ASC;
	`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failed []*entity.FrontierEntry
	for rows.Next() {
		e, err := scanFrontierEntry(rows)
		if err != nil {
			return nil, err
		}
		failed = append(failed, e)
	}
	return failed, rows.Err()
}

func scanFrontierEntry(row pgx.Row) (*entity.FrontierEntry, error) {
	var e entity.FrontierEntry
	var status string
	if err := row.Scan(
		&e.ID,
		&e.AuditID,
		&e.URL,
		&e.NormalizedURL,
		&e.Depth,
		&status,
		&e.DiscoveredFrom,
		&e.LastError,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = entity.FrontierStatus(status)
	return &e, nil
}
