package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"

	"comicd/internal/domain"
	"comicd/internal/infra"
	"comicd/pkg/zip"
)

// ImageCache is the slice of the panel image store the service cascades into.
type ImageCache interface {
	Write(ctx context.Context, comicID, name string, data []byte) (string, error)
	Read(ctx context.Context, ref string) ([]byte, error)
	List(ctx context.Context, comicID string) ([]string, error)
	Delete(ctx context.Context, comicID string) error
	DeleteAll(ctx context.Context) error
}

// Options configures a Service.
type Options struct {
	Repo   domain.HistoryRepository
	Cache  ImageCache
	Logger *infra.Logger
}

// Service persists completed comics and keeps the local panel image cache in
// step: deleting a record also deletes that comic's cached images.
type Service struct {
	repo   domain.HistoryRepository
	cache  ImageCache
	logger *infra.Logger
}

// New constructs a history service. The cache is optional.
func New(opts Options) (*Service, error) {
	if opts.Repo == nil {
		return nil, errors.New("history: repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Service{repo: opts.Repo, cache: opts.Cache, logger: logger}, nil
}

// Save stores a completed comic. Returns false without error when a record
// with the same comic ID already exists; duplicate saves are a recoverable
// no-op, not a failure.
func (s *Service) Save(ctx context.Context, result *domain.ComicResult, styleLabel, thumbnailRef string) (bool, error) {
	if result == nil || result.ComicID == "" {
		return false, fmt.Errorf("history: %w: comic id missing", domain.ErrInvalidTask)
	}
	payload, err := result.EncodePayload()
	if err != nil {
		return false, err
	}

	created, err := time.Parse(time.RFC3339, result.CreationDate)
	if err != nil {
		created = time.Now().UTC()
	}

	record := &domain.HistoryRecord{
		ID:                 result.ComicID,
		Title:              result.Title,
		OriginalVideoTitle: result.OriginalVideoTitle,
		CreationDate:       created,
		PanelCount:         result.PanelCount,
		Payload:            payload,
		DeviceID:           result.DeviceID,
		StoryStyle:         styleLabel,
		ThumbnailRef:       thumbnailRef,
	}
	if err := s.repo.Insert(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicateRecord) {
			s.logger.Debug().Str("comic_id", result.ComicID).Msg("history: duplicate save ignored")
			return false, nil
		}
		return false, fmt.Errorf("history: save record: %w", err)
	}
	s.logger.Info().
		Str("comic_id", result.ComicID).
		Int("panels", result.PanelCount).
		Msg("history: comic saved")
	return true, nil
}

// FetchAll returns every record, newest first.
func (s *Service) FetchAll(ctx context.Context) ([]domain.HistoryRecord, error) {
	return s.repo.ListAll(ctx)
}

// FetchRecent returns the newest records, truncated to limit.
func (s *Service) FetchRecent(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	return s.repo.ListRecent(ctx, limit)
}

// FetchByID returns one record, or domain.ErrNotFound.
func (s *Service) FetchByID(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// FetchResultByID returns the stored comic decoded back into its full form.
func (s *Service) FetchResultByID(ctx context.Context, id string) (*domain.ComicResult, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.DecodeComicResult(record.Payload)
}

// Delete removes one record and cascades to the comic's cached panel
// images. Returns false without error when the ID is absent.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("history: delete record: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("comic_id", id).Msg("history: cached images not removed")
		}
	}
	return true, nil
}

// ClearAll removes every record and the whole image cache.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("history: clear records: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.DeleteAll(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("history: image cache not cleared")
		}
	}
	return nil
}

// ExportArchive bundles a saved comic into a zip: the decoded comic as
// comic.json plus whatever panel images are cached locally.
func (s *Service) ExportArchive(ctx context.Context, id string) ([]byte, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	entries := []zip.Entry{{Name: "comic.json", Data: record.Payload}}
	if s.cache != nil {
		refs, err := s.cache.List(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("history: list cached images: %w", err)
		}
		for _, ref := range refs {
			data, err := s.cache.Read(ctx, ref)
			if err != nil {
				s.logger.Warn().Err(err).Str("ref", ref).Msg("history: cached image unreadable, skipped")
				continue
			}
			entries = append(entries, zip.Entry{Name: "panels/" + path.Base(ref), Data: data})
		}
	}
	return zip.Archive(entries)
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// CachePanelImage stores image bytes for the comic and returns the cache
// reference, or an empty string when no cache is configured.
func (s *Service) CachePanelImage(ctx context.Context, comicID, name string, data []byte) (string, error) {
	if s.cache == nil {
		return "", nil
	}
	return s.cache.Write(ctx, comicID, name, data)
}
