// records.go — чтение записей: одна запись (через кэш) и постраничный список.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

// Параметры пагинации.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination — параметры страницы в ответе.
type Pagination struct {
	Page  int
	Limit int
	Total int
	Pages int
}

// RecordPage — страница записей.
type RecordPage struct {
	Items      []*model.ContentRecord
	Pagination Pagination
}

// RecordsService — запросы к Content Store с кэшированием.
type RecordsService struct {
	repo   repository.ContentRepository
	cache  *CacheService
	logger *slog.Logger
}

// NewRecordsService создаёт сервис. cache может быть nil.
func NewRecordsService(repo repository.ContentRepository, cache *CacheService, logger *slog.Logger) *RecordsService {
	return &RecordsService{
		repo:   repo,
		cache:  cache,
		logger: logger.With(slog.String("component", "records")),
	}
}

// Get возвращает запись по адресу.
func (s *RecordsService) Get(ctx context.Context, address string) (*model.ContentRecord, error) {
	if !hasher.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: некорректный content address %q", ErrInvalidInput, address)
	}

	var epoch uint64
	if s.cache != nil {
		if rec, ok := s.cache.Get(address); ok {
			return rec, nil
		}
		epoch = s.cache.Epoch()
	}

	rec, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return nil, storeError("получение записи", err)
	}
	if s.cache != nil && !s.cache.SetIfCurrent(rec, epoch) {
		s.logger.Debug("Заполнение кэша отброшено: запись изменилась во время чтения",
			slog.String("content_address", address),
		)
	}
	return rec, nil
}

// List возвращает страницу записей, новые первыми.
// page < 1 трактуется как 1, limit вне 1..MaxPageLimit — как DefaultPageLimit или MaxPageLimit.
func (s *RecordsService) List(ctx context.Context, page, limit int) (*RecordPage, error) {
	page, limit = normalizePage(page, limit)

	items, total, err := s.repo.ListAll(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, storeError("получение списка записей", err)
	}
	if items == nil {
		items = []*model.ContentRecord{}
	}

	return &RecordPage{
		Items: items,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// Invalidate удаляет запись из кэша. Допускает nil-получатель.
func (s *RecordsService) Invalidate(address string) {
	if s != nil && s.cache != nil {
		s.cache.Delete(address)
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	return page, clampLimit(limit)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}
