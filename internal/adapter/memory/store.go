// Package memory implements the repositories and the task queue in process memory. It backs
// the one-shot cli and the end-to-end tests; every guarantee of the Postgres and Redis
// adapters holds here too, enforced with a single mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

type frontierKey struct {
	auditID    string
	normalized string
}

type pageKey struct {
	auditID string
	url     string
}

type edgeKey struct {
	auditID    string
	from       string
	normalized string
}

// Store holds every audit-owned row.
type Store struct {
	mu sync.Mutex

	nextID int64

	audits       map[string]*entity.Audit
	frontier     map[int64]*entity.FrontierEntry
	frontierKeys map[frontierKey]int64
	pages        map[pageKey]*entity.PageRecord
	edges        map[int64]*entity.LinkEdge
	edgeKeys     map[edgeKey]int64
}

func NewStore() *Store {
	return &Store{
		audits:       make(map[string]*entity.Audit),
		frontier:     make(map[int64]*entity.FrontierEntry),
		frontierKeys: make(map[frontierKey]int64),
		pages:        make(map[pageKey]*entity.PageRecord),
		edges:        make(map[int64]*entity.LinkEdge),
		edgeKeys:     make(map[edgeKey]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- audits ---

func (s *Store) Create(ctx context.Context, audit *entity.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	s.audits[audit.ID] = cloneAudit(audit)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*entity.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAudit(a), nil
}

func (s *Store) MarkRunning(ctx context.Context, id, normalizedURL, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status != entity.AuditQueued {
		return nil
	}
	now := time.Now().UTC()
	a.Status = entity.AuditRunning
	a.NormalizedURL = normalizedURL
	a.Host = host
	a.StartedAt = &now
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	a.Status = entity.AuditFailed
	a.ErrorMessage = message
	a.CompletedAt = &now
	return nil
}

func (s *Store) CountScanned(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if a.PagesScanned >= a.PagesLimit {
		return false, nil
	}
	a.PagesScanned++
	a.ProgressPercent = entity.CrawlProgress(a.PagesScanned, a.PagesDiscovered)
	return true, nil
}

func (s *Store) SetProgress(ctx context.Context, id string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.ProgressPercent = percent
	return nil
}

func (s *Store) SaveCrawlStats(ctx context.Context, id string, stats entity.CrawlStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.CrawlStats = stats
	return nil
}

func (s *Store) UpdateScores(ctx context.Context, id string, mutate func(a *entity.Audit) error) (*entity.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	working := cloneAudit(a)
	if err := mutate(working); err != nil {
		return nil, err
	}
	a.CategoryScores = working.CategoryScores
	a.IssueCounts = working.IssueCounts
	a.PendingPhases = working.PendingPhases
	a.OverallScore = working.OverallScore
	a.OverallGrade = working.OverallGrade
	a.Status = working.Status
	a.ProgressPercent = working.ProgressPercent
	a.CompletedAt = working.CompletedAt
	return cloneAudit(a), nil
}

// --- frontier ---

// FrontierRepo exposes the store through repository.FrontierRepository, whose method names
// overlap with the audit repository.
type FrontierRepo struct{ s *Store }

func (s *Store) Frontier() *FrontierRepo { return &FrontierRepo{s} }

func (r *FrontierRepo) Enqueue(ctx context.Context, e *entity.FrontierEntry) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := frontierKey{e.AuditID, e.NormalizedURL}
	if _, exists := s.frontierKeys[key]; exists {
		return false, nil
	}
	a, ok := s.audits[e.AuditID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if a.PagesDiscovered >= a.PagesLimit {
		return false, nil
	}

	now := time.Now().UTC()
	stored := *e
	stored.ID = s.id()
	stored.Status = entity.FrontierQueued
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.frontier[stored.ID] = &stored
	s.frontierKeys[key] = stored.ID
	a.PagesDiscovered++

	e.ID = stored.ID
	e.Status = stored.Status
	return true, nil
}

func (r *FrontierRepo) Get(ctx context.Context, id int64) (*entity.FrontierEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.frontier[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *FrontierRepo) Claim(ctx context.Context, auditID string, maxDepth, limit int) ([]*entity.FrontierEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}

	var queued []*entity.FrontierEntry
	for _, e := range s.frontier {
		if e.AuditID == auditID && e.Status == entity.FrontierQueued && e.Depth <= maxDepth {
			queued = append(queued, e)
		}
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].Depth != queued[j].Depth {
			return queued[i].Depth < queued[j].Depth
		}
		return queued[i].ID < queued[j].ID
	})
	if len(queued) > limit {
		queued = queued[:limit]
	}

	out := make([]*entity.FrontierEntry, 0, len(queued))
	for _, e := range queued {
		e.Status = entity.FrontierProcessing
		e.UpdatedAt = time.Now().UTC()
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *FrontierRepo) transition(id int64, to entity.FrontierStatus, reason string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.frontier[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.Status == to {
		return nil
	}
	if !e.Status.CanTransition(to) {
		return &entity.TransitionError{EntryID: id, From: e.Status, To: to}
	}
	e.Status = to
	e.LastError = reason
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *FrontierRepo) MarkDone(ctx context.Context, id int64) error {
	return r.transition(id, entity.FrontierDone, "")
}

func (r *FrontierRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.transition(id, entity.FrontierFailed, reason)
}

func (r *FrontierRepo) SkipQueued(ctx context.Context, auditID string) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.frontier {
		if e.AuditID == auditID && e.Status == entity.FrontierQueued {
			e.Status = entity.FrontierDone
			e.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (r *FrontierRepo) Counts(ctx context.Context, auditID string, maxDepth int) (entity.FrontierCounts, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var c entity.FrontierCounts
	for _, e := range s.frontier {
		if e.AuditID != auditID {
			continue
		}
		switch e.Status {
		case entity.FrontierQueued:
			if e.Depth <= maxDepth {
				c.Queued++
			}
		case entity.FrontierProcessing:
			c.Processing++
		case entity.FrontierDone:
			c.Done++
		case entity.FrontierFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (r *FrontierRepo) ListFailed(ctx context.Context, auditID string) ([]*entity.FrontierEntry, error) {
	return r.list(auditID, func(e *entity.FrontierEntry) bool { return e.Status == entity.FrontierFailed }), nil
}

// List returns every entry of the audit ordered by id.
func (r *FrontierRepo) List(auditID string) []*entity.FrontierEntry {
	return r.list(auditID, func(*entity.FrontierEntry) bool { return true })
}

func (r *FrontierRepo) list(auditID string, keep func(*entity.FrontierEntry) bool) []*entity.FrontierEntry {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.FrontierEntry
	for _, e := range s.frontier {
		if e.AuditID == auditID && keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- pages ---

// PageRepo exposes the store through repository.PageRepository.
type PageRepo struct{ s *Store }

func (s *Store) Pages() *PageRepo { return &PageRepo{s} }

func (r *PageRepo) Upsert(ctx context.Context, page *entity.PageRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pageKey{page.AuditID, page.URL}
	cp := *page
	if existing, ok := s.pages[key]; ok {
		cp.ID = existing.ID
		if cp.MobilePerf == nil {
			cp.MobilePerf = existing.MobilePerf
		}
		if cp.DesktopPerf == nil {
			cp.DesktopPerf = existing.DesktopPerf
		}
	} else {
		cp.ID = s.id()
	}
	s.pages[key] = &cp
	page.ID = cp.ID
	return nil
}

func (r *PageRepo) ListByAudit(ctx context.Context, auditID string) ([]*entity.PageRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.PageRecord
	for k, p := range s.pages {
		if k.auditID == auditID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *PageRepo) SavePerformance(ctx context.Context, auditID, url string, mobile, desktop *entity.PerformanceMetrics) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageKey{auditID, url}]
	if !ok {
		return repository.ErrNotFound
	}
	if mobile != nil {
		p.MobilePerf = mobile
	}
	if desktop != nil {
		p.DesktopPerf = desktop
	}
	return nil
}

// --- links ---

// LinkRepo exposes the store through repository.LinkRepository.
type LinkRepo struct{ s *Store }

func (s *Store) Links() *LinkRepo { return &LinkRepo{s} }

func (r *LinkRepo) UpsertEdges(ctx context.Context, edges []*entity.LinkEdge) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range edges {
		key := edgeKey{e.AuditID, e.FromURL, e.NormalizedToURL}
		if id, exists := s.edgeKeys[key]; exists {
			e.ID = id
			continue
		}
		cp := *e
		cp.ID = s.id()
		s.edges[cp.ID] = &cp
		s.edgeKeys[key] = cp.ID
		e.ID = cp.ID
		n++
	}
	return n, nil
}

func (r *LinkRepo) ListUnvalidated(ctx context.Context, auditID string, linkType entity.LinkType, limit int) ([]*entity.LinkEdge, error) {
	out := r.list(auditID, func(e *entity.LinkEdge) bool { return e.Type == linkType && !e.Validated() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *LinkRepo) SaveValidation(ctx context.Context, edgeID int64, v entity.LinkValidation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	e.StatusCode = v.StatusCode
	e.FinalURL = v.FinalURL
	e.RedirectHops = v.RedirectHops
	e.Broken = v.Broken
	e.Error = v.Error
	e.ValidatedAt = &now
	return nil
}

func (r *LinkRepo) ListByAudit(ctx context.Context, auditID string) ([]*entity.LinkEdge, error) {
	return r.list(auditID, func(*entity.LinkEdge) bool { return true }), nil
}

func (r *LinkRepo) list(auditID string, keep func(*entity.LinkEdge) bool) []*entity.LinkEdge {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.LinkEdge
	for _, e := range s.edges {
		if e.AuditID == auditID && keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneAudit(a *entity.Audit) *entity.Audit {
	cp := *a
	if a.CategoryScores != nil {
		cp.CategoryScores = make(map[entity.Category]int, len(a.CategoryScores))
		for k, v := range a.CategoryScores {
			cp.CategoryScores[k] = v
		}
	}
	if a.IssueCounts != nil {
		cp.IssueCounts = make(map[entity.Category]int, len(a.IssueCounts))
		for k, v := range a.IssueCounts {
			cp.IssueCounts[k] = v
		}
	}
	cp.PendingPhases = append([]entity.Phase(nil), a.PendingPhases...)
	if a.OverallScore != nil {
		v := *a.OverallScore
		cp.OverallScore = &v
	}
	return &cp
}

var (
	_ repository.AuditRepository    = (*Store)(nil)
	_ repository.FrontierRepository = (*FrontierRepo)(nil)
	_ repository.PageRepository     = (*PageRepo)(nil)
	_ repository.LinkRepository     = (*LinkRepo)(nil)
)
