// history.go — чтение истории: лента активности, история записи, статистика.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

// RecordSummary — краткие сведения о записи в ответе истории.
type RecordSummary struct {
	ContentAddress string
	OriginalName   string
	MimeType       string
	SizeBytes      int64
	CurrentOwner   string
	CreatedAt      time.Time
}

// RecordHistory — история одной записи.
type RecordHistory struct {
	Record              RecordSummary
	TransferHistory     []model.TransferEntry
	VerificationHistory []model.VerificationEntry
	DownloadHistory     []model.DownloadEntry
	MergedTimeline      []*model.HistoryEvent
}

// Stats — агрегаты по всему реестру.
type Stats struct {
	TotalContent       int
	TotalVerifications int
	TotalTransfers     int
	TotalDownloads     int
	TotalActivities    int
}

// HistoryService — read-only проекции журнала событий.
type HistoryService struct {
	repo   repository.ContentRepository
	logger *slog.Logger
}

// NewHistoryService создаёт сервис истории.
func NewHistoryService(repo repository.ContentRepository, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		repo:   repo,
		logger: logger.With(slog.String("component", "history")),
	}
}

// ActivityFeed возвращает последние limit событий по всем записям.
func (s *HistoryService) ActivityFeed(ctx context.Context, limit int) ([]*model.HistoryEvent, error) {
	events, err := s.repo.RecentEvents(ctx, clampLimit(limit))
	if err != nil {
		return nil, storeError("лента активности", err)
	}
	sortTimeline(events)
	if events == nil {
		events = []*model.HistoryEvent{}
	}
	return events, nil
}

// HistoryFor возвращает историю записи с объединённой лентой событий.
func (s *HistoryService) HistoryFor(ctx context.Context, address string) (*RecordHistory, error) {
	if !hasher.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: некорректный content address %q", ErrInvalidInput, address)
	}

	rec, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return nil, storeError("история записи", err)
	}
	events, err := s.repo.ListEvents(ctx, address)
	if err != nil {
		return nil, storeError("история записи", err)
	}
	// Подсписки и лента строятся из одного чтения журнала
	rec.ApplyHistory(events)
	sortTimeline(events)

	h := &RecordHistory{
		Record: RecordSummary{
			ContentAddress: rec.ContentAddress,
			OriginalName:   rec.OriginalName,
			MimeType:       rec.MimeType,
			SizeBytes:      rec.SizeBytes,
			CurrentOwner:   rec.CurrentOwner,
			CreatedAt:      rec.CreatedAt,
		},
		TransferHistory:     nonNil(rec.TransferHistory),
		VerificationHistory: nonNil(rec.VerificationHistory),
		DownloadHistory:     nonNil(rec.DownloadHistory),
		MergedTimeline:      nonNil(events),
	}
	return h, nil
}

// Stats считает записи и события по видам.
func (s *HistoryService) Stats(ctx context.Context) (*Stats, error) {
	var (
		st  Stats
		err error
	)
	if st.TotalContent, err = s.repo.CountContent(ctx); err != nil {
		return nil, storeError("статистика", err)
	}
	counters := []struct {
		kind model.EventKind
		dst  *int
	}{
		{model.EventVerify, &st.TotalVerifications},
		{model.EventTransfer, &st.TotalTransfers},
		{model.EventDownload, &st.TotalDownloads},
	}
	for _, c := range counters {
		if *c.dst, err = s.repo.CountEvents(ctx, c.kind); err != nil {
			return nil, storeError("статистика", err)
		}
	}
	// Активность — действия над уже зарегистрированным содержимым, mint не входит
	st.TotalActivities = st.TotalVerifications + st.TotalTransfers + st.TotalDownloads
	return &st, nil
}

// sortTimeline — по убыванию времени, при равенстве по убыванию seq.
func sortTimeline(events []*model.HistoryEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].Seq > events[j].Seq
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
