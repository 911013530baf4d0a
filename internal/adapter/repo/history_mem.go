package repo

import (
	"context"
	"sort"
	"sync"

	"comicd/internal/domain"
)

// HistoryRepositoryMem is an in-memory domain.HistoryRepository used by the
// CLI when no database is configured, and by tests.
type HistoryRepositoryMem struct {
	mu      sync.RWMutex
	records map[string]domain.HistoryRecord
}

// NewHistoryRepositoryMem constructs an empty in-memory repository.
func NewHistoryRepositoryMem() *HistoryRepositoryMem {
	return &HistoryRepositoryMem{records: make(map[string]domain.HistoryRecord)}
}

// Insert stores a new record; domain.ErrDuplicateRecord when the ID exists.
func (r *HistoryRepositoryMem) Insert(ctx context.Context, record *domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return domain.ErrDuplicateRecord
	}
	clone := *record
	clone.Payload = append([]byte(nil), record.Payload...)
	r.records[record.ID] = clone
	return nil
}

// ListAll returns every record, newest first.
func (r *HistoryRepositoryMem) ListAll(ctx context.Context) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]domain.HistoryRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreationDate.Equal(records[j].CreationDate) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreationDate.After(records[j].CreationDate)
	})
	return records, nil
}

// ListRecent returns the newest records, truncated to limit.
func (r *HistoryRepositoryMem) ListRecent(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	records, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetByID fetches one record by its comic ID.
func (r *HistoryRepositoryMem) GetByID(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

// Delete removes one record; domain.ErrNotFound when the ID is absent.
func (r *HistoryRepositoryMem) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

// DeleteAll removes every record.
func (r *HistoryRepositoryMem) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]domain.HistoryRecord)
	return nil
}

// Count returns the number of stored records.
func (r *HistoryRepositoryMem) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

var _ domain.HistoryRepository = (*HistoryRepositoryMem)(nil)
