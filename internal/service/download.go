// download.go — выдача содержимого из Blob Store с записью события download.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/content-registry/internal/blobstore"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cr_downloads_total",
	Help: "Количество запросов на скачивание (по статусу).",
}, []string{"status"})

// DownloadResult — открытое содержимое и запись.
// Вызывающий обязан закрыть Content.
type DownloadResult struct {
	Record  *model.ContentRecord
	Content io.ReadCloser
}

// DownloadService — скачивание содержимого.
type DownloadService struct {
	repo    repository.ContentRepository
	blobs   blobstore.Store
	records *RecordsService
	logger  *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	repo repository.ContentRepository,
	blobs blobstore.Store,
	records *RecordsService,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		repo:    repo,
		blobs:   blobs,
		records: records,
		logger:  logger.With(slog.String("component", "download")),
	}
}

// Download открывает содержимое записи и добавляет событие download.
func (s *DownloadService) Download(ctx context.Context, address, requester, requesterContext string) (*DownloadResult, error) {
	if !hasher.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: некорректный content address %q", ErrInvalidInput, address)
	}

	rec, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return nil, storeError("скачивание", err)
	}
	if rec.BlobLocator == nil || !blobstore.Enabled(s.blobs) {
		downloadsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("скачивание %s: %w", address, ErrBlobUnavailable)
	}

	rc, err := s.blobs.Get(ctx, *rec.BlobLocator)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrInvalidLocator) {
			downloadsTotal.WithLabelValues("unavailable").Inc()
			return nil, fmt.Errorf("скачивание %s: %w: %v", address, ErrBlobUnavailable, err)
		}
		downloadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка чтения из Blob Store",
			slog.String("content_address", address),
			slog.String("backend", s.blobs.Name()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("скачивание %s: %w: %v", address, ErrBlobStoreUnavailable, err)
	}

	if requester == "" {
		requester = model.AnonymousIdentity
	}
	entry := model.DownloadEntry{DownloadedBy: requester, Timestamp: time.Now().UTC()}
	if requesterContext != "" {
		entry.RequesterContext = &requesterContext
	}
	if err := s.repo.AppendDownload(ctx, address, entry); err != nil {
		s.logger.Warn("Не удалось сохранить событие скачивания",
			slog.String("content_address", address),
			slog.String("error", err.Error()),
		)
	} else {
		rec.DownloadHistory = append(rec.DownloadHistory, entry)
		s.records.Invalidate(address)
	}

	downloadsTotal.WithLabelValues("ok").Inc()
	return &DownloadResult{Record: rec, Content: rc}, nil
}
