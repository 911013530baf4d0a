package domain

import "context"

// HistoryRepository defines persistence for completed comics. Insert must be
// idempotent on the record ID: inserting an existing ID returns
// ErrDuplicateRecord and leaves the stored row untouched.
type HistoryRepository interface {
	Insert(ctx context.Context, record *HistoryRecord) error
	ListAll(ctx context.Context) ([]HistoryRecord, error)
	ListRecent(ctx context.Context, limit int) ([]HistoryRecord, error)
	GetByID(ctx context.Context, id string) (*HistoryRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// DeviceIDProvider supplies the stable anonymous device identifier attached
// to generated comics. Injected so callers control where the ID lives.
type DeviceIDProvider interface {
	DeviceID() (string, error)
}
