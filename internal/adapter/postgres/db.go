package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/seo-audit-service/internal/repository"
)

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// Repositories bundles the Postgres-backed stores.
type Repositories struct {
	Audits   *AuditRepoImpl
	Frontier *FrontierRepoImpl
	Pages    *PageRepoImpl
	Links    *LinkRepoImpl
}

func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Audits:   NewAuditRepo(db),
		Frontier: NewFrontierRepo(db),
		Pages:    NewPageRepo(db),
		Links:    NewLinkRepo(db),
	}
}

var (
	_ repository.AuditRepository    = (*AuditRepoImpl)(nil)
	_ repository.FrontierRepository = (*FrontierRepoImpl)(nil)
	_ repository.PageRepository     = (*PageRepoImpl)(nil)
	_ repository.LinkRepository     = (*LinkRepoImpl)(nil)
)
