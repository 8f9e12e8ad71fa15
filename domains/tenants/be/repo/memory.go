package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local runs
// without a database.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]service.Organization
	byDomain map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[uuid.UUID]service.Organization),
		byDomain: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Organization, 0, len(r.byID))
	for _, o := range r.byID {
		if opts.IsActive != nil && o.IsActive != *opts.IsActive {
			continue
		}
		items = append(items, o)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedDate.Equal(items[j].CreatedDate) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedDate.After(items[j].CreatedDate)
	})

	page, pageSize := normalizePaging(opts.Page, opts.PageSize)
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))

	return service.ListResult{
		Organizations: items[start:end],
		Page:          page,
		PageSize:      pageSize,
		TotalItems:    len(items),
		TotalPages:    (len(items) + pageSize - 1) / pageSize,
	}, nil
}

func (r *MemoryRepository) Create(ctx context.Context, o service.Organization) (service.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byDomain[o.DomainName]; exists {
		return service.Organization{}, service.ErrConflict
	}
	for _, existing := range r.byID {
		if existing.Name == o.Name || existing.Email == o.Email {
			return service.Organization{}, service.ErrConflict
		}
	}

	r.byID[o.ID] = o
	r.byDomain[o.DomainName] = o.ID
	return o, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return service.Organization{}, service.ErrNotFound
	}
	return o, nil
}

func (r *MemoryRepository) MarkProvisioned(ctx context.Context, id uuid.UUID, at time.Time) (service.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return service.Organization{}, service.ErrNotFound
	}
	o.ProvisionedAt = &at
	o.UpdatedDate = at
	r.byID[id] = o
	return o, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
