package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

// AuditRepoImpl provides a concrete implementation for the AuditRepository interface using PostgreSQL.
type AuditRepoImpl struct {
	db *pgxpool.Pool
}

// NewAuditRepo creates a new instance of AuditRepoImpl.
func NewAuditRepo(db *pgxpool.Pool) *AuditRepoImpl {
	return &AuditRepoImpl{db: db}
}

const auditColumns = `id, org_id, target_url, normalized_url, host, status, pages_limit, crawl_depth,
	pages_scanned, pages_discovered, progress_percent, category_scores, issue_counts, pending_phases,
	overall_score, overall_grade, crawl_stats, error_message, created_at, started_at, completed_at`

// Create inserts a new audit row.
func (r *AuditRepoImpl) Create(ctx context.Context, a *entity.Audit) error {
	query := `
		INSERT INTO audits (id, org_id, target_url, status, pages_limit, crawl_depth)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;
	`
	return r.db.QueryRow(ctx, query,
		a.ID,
		a.OrgID,
		a.TargetURL,
		string(a.Status),
		a.PagesLimit,
		a.CrawlDepth,
	).Scan(&a.CreatedAt)
}

// Get retrieves one audit by id.
func (r *AuditRepoImpl) Get(ctx context.Context, id string) (*entity.Audit, error) {
	row := r.db.QueryRow(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = $1;`, id)
	return scanAudit(row)
}

// MarkRunning moves a queued audit to running. Calling it again is a no-op.
func (r *AuditRepoImpl) MarkRunning(ctx context.Context, id, normalizedURL, host string) error {
	query := `
		UPDATE audits
		SET status = 'running', normalized_url = $2, host = $3, started_at = NOW()
		WHERE id = $1 AND status = 'queued';
	`
	tag, err := r.db.Exec(ctx, query, id, normalizedURL, host)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// MarkFailed terminates a non-terminal audit.
func (r *AuditRepoImpl) MarkFailed(ctx context.Context, id, message string) error {
	query := `
		UPDATE audits
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running');
	`
	tag, err := r.db.Exec(ctx, query, id, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// CountScanned is a conditional increment: the row is only touched while pages_scanned is
// below pages_limit, so concurrent workers can never overshoot the limit.
func (r *AuditRepoImpl) CountScanned(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE audits
		SET pages_scanned = pages_scanned + 1,
			progress_percent = LEAST(90, 90 * (pages_scanned + 1) / GREATEST(pages_discovered, 1))
		WHERE id = $1 AND pages_scanned < pages_limit;
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

// SetProgress overwrites the progress percentage.
func (r *AuditRepoImpl) SetProgress(ctx context.Context, id string, percent int) error {
	tag, err := r.db.Exec(ctx, `UPDATE audits SET progress_percent = $2 WHERE id = $1;`, id, percent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SaveCrawlStats stores the link graph summary.
func (r *AuditRepoImpl) SaveCrawlStats(ctx context.Context, id string, stats entity.CrawlStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE audits SET crawl_stats = $2 WHERE id = $1;`, id, statsJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateScores locks the audit row for the duration of mutate, so phase merges arriving
// concurrently are applied one after another.
func (r *AuditRepoImpl) UpdateScores(ctx context.Context, id string, mutate func(a *entity.Audit) error) (*entity.Audit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	a, err := scanAudit(tx.QueryRow(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = $1 FOR UPDATE;`, id))
	if err != nil {
		return nil, err
	}
	if err := mutate(a); err != nil {
		return nil, err
	}

	scoresJSON, err := json.Marshal(a.CategoryScores)
	if err != nil {
		return nil, err
	}
	countsJSON, err := json.Marshal(a.IssueCounts)
	if err != nil {
		return nil, err
	}
	phases := make([]string, 0, len(a.PendingPhases))
	for _, p := range a.PendingPhases {
		phases = append(phases, string(p))
	}

	query := `
		UPDATE audits
		SET category_scores = $2,
			issue_counts = $3,
			pending_phases = $4,
			overall_score = $5,
			overall_grade = $6,
			status = $7,
			progress_percent = $8,
			completed_at = $9
		WHERE id = $1;
	`
	if _, err := tx.Exec(ctx, query,
		id,
		scoresJSON,
		countsJSON,
		phases,
		a.OverallScore,
		a.OverallGrade,
		string(a.Status),
		a.ProgressPercent,
		a.CompletedAt,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AuditRepoImpl) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM audits WHERE id = $1);`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return nil
}

func scanAudit(row pgx.Row) (*entity.Audit, error) {
	var (
		a                                entity.Audit
		status                           string
		scoresJSON, countsJSON, statsRaw []byte
		phases                           []string
	)
	err := row.Scan(
		&a.ID,
		&a.OrgID,
		&a.TargetURL,
		&a.NormalizedURL,
		&a.Host,
		&status,
		&a.PagesLimit,
		&a.CrawlDepth,
		&a.PagesScanned,
		&a.PagesDiscovered,
		&a.ProgressPercent,
		&scoresJSON,
		&countsJSON,
		&phases,
		&a.OverallScore,
		&a.OverallGrade,
		&statsRaw,
		&a.ErrorMessage,
		&a.CreatedAt,
		&a.StartedAt,
		&a.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Status = entity.AuditStatus(status)
	if err := json.Unmarshal(scoresJSON, &a.CategoryScores); err != nil {
		return nil, fmt.Errorf("decode category_scores: %w", err)
	}
	if err := json.Unmarshal(countsJSON, &a.IssueCounts); err != nil {
		return nil, fmt.Errorf("decode issue_counts: %w", err)
	}
	if err := json.Unmarshal(statsRaw, &a.CrawlStats); err != nil {
		return nil, fmt.Errorf("decode crawl_stats: %w", err)
	}
	for _, p := range phases {
		a.PendingPhases = append(a.PendingPhases, entity.Phase(p))
	}
	return &a, nil
}
