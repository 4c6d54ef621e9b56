package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"fileflow/internal/model"
	"fileflow/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// PageMeta describes one page of a listing.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// FileListResult is the service-level DTO for paginated files.
type FileListResult struct {
	Items []model.FileStatusView `json:"data"`
	Meta  PageMeta               `json:"meta"`
}

// TrackingService is the read side of the pipeline. Files owned by someone
// else are reported as not found.
type TrackingService interface {
	GetStatus(ctx context.Context, fileID, ownerID int64) (*model.FileStatusView, error)
	List(ctx context.Context, ownerID int64, page, limit int) (*FileListResult, error)
	// DownloadURL presigns a download of the archived copy of a processed file.
	DownloadURL(ctx context.Context, fileID, ownerID int64, expiry time.Duration) (string, error)
}

// Presigner issues time-limited download URLs for archive keys.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// StatusCache holds views that can no longer change.
type StatusCache = expirable.LRU[int64, *model.FileStatusView]

// NewStatusCache creates an expirable LRU of settled status views.
func NewStatusCache(size int, ttl time.Duration) *StatusCache {
	return expirable.NewLRU[int64, *model.FileStatusView](size, nil, ttl)
}

type trackingService struct {
	repo      repository.RecordStore
	presigner Presigner
	cache     *StatusCache
}

// NewTrackingService constructs a TrackingService. presigner and cache may be nil.
func NewTrackingService(repo repository.RecordStore, presigner Presigner, cache *StatusCache) TrackingService {
	return &trackingService{repo: repo, presigner: presigner, cache: cache}
}

func (s *trackingService) GetStatus(ctx context.Context, fileID, ownerID int64) (*model.FileStatusView, error) {
	if ownerID <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, model.ErrOwnerRequired)
	}
	if fileID <= 0 {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(fileID); ok {
			if v.OwnerID != ownerID {
				return nil, ErrNotFound
			}
			cp := *v
			return &cp, nil
		}
	}

	f, err := s.repo.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if f.OwnerID != ownerID {
		return nil, ErrNotFound
	}

	j, err := s.repo.FindLatestJobByFileID(ctx, fileID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	v := model.NewFileStatusView(*f, j)
	if s.cache != nil && v.Settled() {
		cp := *v
		s.cache.Add(fileID, &cp)
	}
	return v, nil
}

func (s *trackingService) List(ctx context.Context, ownerID int64, page, limit int) (*FileListResult, error) {
	if ownerID <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, model.ErrOwnerRequired)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	res, err := s.repo.ListFilesByOwner(ctx, ownerID, repository.PageQuery{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return nil, err
	}

	items := make([]model.FileStatusView, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, *model.NewFileStatusView(it.File, it.Job))
	}
	return &FileListResult{
		Items: items,
		Meta: PageMeta{
			Page:       page,
			Limit:      limit,
			Total:      res.Total,
			TotalPages: (res.Total + limit - 1) / limit,
		},
	}, nil
}

func (s *trackingService) DownloadURL(ctx context.Context, fileID, ownerID int64, expiry time.Duration) (string, error) {
	v, err := s.GetStatus(ctx, fileID, ownerID)
	if err != nil {
		return "", err
	}
	if s.presigner == nil || v.Status != model.FileStatusProcessed || v.ExtractedData == nil || v.ExtractedData.ArchiveKey == "" {
		return "", ErrNotArchived
	}
	url, err := s.presigner.PresignGet(ctx, v.ExtractedData.ArchiveKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}
