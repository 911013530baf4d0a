package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"comicd/internal/domain"
	"comicd/internal/sqlinline"
)

// HistoryRepositoryPG implements domain.HistoryRepository backed by PostgreSQL.
type HistoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository backed by PostgreSQL.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{pool: pool}
}

// EnsureSchema creates the history table and index when they do not exist.
func (r *HistoryRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, sqlinline.QCreateHistoryTable)
	return err
}

// Insert stores a new record. Inserting an existing ID is a no-op reported
// as domain.ErrDuplicateRecord.
func (r *HistoryRepositoryPG) Insert(ctx context.Context, record *domain.HistoryRecord) error {
	tag, err := r.pool.Exec(ctx, sqlinline.QInsertHistory,
		record.ID,
		record.Title,
		record.OriginalVideoTitle,
		record.CreationDate,
		record.PanelCount,
		record.Payload,
		record.DeviceID,
		record.StoryStyle,
		record.ThumbnailRef,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateRecord
	}
	return nil
}

// ListAll returns every record, newest first.
func (r *HistoryRepositoryPG) ListAll(ctx context.Context) ([]domain.HistoryRecord, error) {
	rows, err := r.pool.Query(ctx, sqlinline.QListHistory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecent returns the newest records, truncated to limit.
func (r *HistoryRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, sqlinline.QListHistoryRecent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetByID fetches one record by its comic ID.
func (r *HistoryRepositoryPG) GetByID(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	row := r.pool.QueryRow(ctx, sqlinline.QGetHistoryByID, id)
	var record domain.HistoryRecord
	if err := scanRecord(row, &record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Delete removes one record; domain.ErrNotFound when the ID is absent.
func (r *HistoryRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, sqlinline.QDeleteHistory, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAll removes every record.
func (r *HistoryRepositoryPG) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, sqlinline.QDeleteAllHistory)
	return err
}

// Count returns the number of stored records.
func (r *HistoryRepositoryPG) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, sqlinline.QCountHistory).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanRecords(rows pgx.Rows) ([]domain.HistoryRecord, error) {
	var records []domain.HistoryRecord
	for rows.Next() {
		var record domain.HistoryRecord
		if err := scanRecord(rows, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(row pgx.Row, record *domain.HistoryRecord) error {
	return row.Scan(
		&record.ID,
		&record.Title,
		&record.OriginalVideoTitle,
		&record.CreationDate,
		&record.PanelCount,
		&record.Payload,
		&record.DeviceID,
		&record.StoryStyle,
		&record.ThumbnailRef,
	)
}

var _ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
