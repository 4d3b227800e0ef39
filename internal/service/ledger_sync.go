// ledger_sync.go — фоновая досинхронизация с внешним реестром.
//
// Записи, для которых регистрация в реестре не удалась при загрузке
// (таймаут, недоступный узел), периодически регистрируются повторно
// пачками по CR_LEDGER_SYNC_BATCH. Полученная квитанция сохраняется в записи.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/content-registry/internal/ledger"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

// Prometheus метрики досинхронизации.
var (
	ledgerSyncRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cr_ledger_sync_runs_total",
		Help: "Общее количество проходов досинхронизации с реестром",
	})

	ledgerSyncRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cr_ledger_sync_registered_total",
		Help: "Количество записей, зарегистрированных при досинхронизации",
	})

	ledgerSyncDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cr_ledger_sync_duration_seconds",
		Help:    "Длительность прохода досинхронизации в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})
)

// LedgerSyncResult — результат одного прохода.
type LedgerSyncResult struct {
	// Checked — записей без квитанции в пачке
	Checked int
	// Registered — успешно зарегистрировано
	Registered int
	// Skipped — слишком свежие записи (регистрация ещё может идти)
	Skipped int
	// Errors — ошибок регистрации или сохранения
	Errors   int
	Duration time.Duration
}

// LedgerSyncService — фоновая досинхронизация.
type LedgerSyncService struct {
	repo        repository.ContentRepository
	registrar   ledger.Registrar
	records     *RecordsService
	interval    time.Duration
	batch       int
	callTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex // защита от параллельного RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLedgerSyncService создаёт сервис досинхронизации.
func NewLedgerSyncService(
	repo repository.ContentRepository,
	registrar ledger.Registrar,
	records *RecordsService,
	interval time.Duration,
	batch int,
	callTimeout time.Duration,
	logger *slog.Logger,
) *LedgerSyncService {
	return &LedgerSyncService{
		repo:        repo,
		registrar:   registrar,
		records:     records,
		interval:    interval,
		batch:       batch,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "ledger_sync")),
	}
}

// Start запускает фоновую горутину. Вызывается один раз при старте.
func (s *LedgerSyncService) Start(ctx context.Context) {
	syncCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(syncCtx)

	s.logger.Info("Досинхронизация с реестром запущена",
		slog.String("interval", s.interval.String()),
		slog.Int("batch", s.batch),
	)
}

// Stop останавливает фоновый процесс и ждёт завершения текущего прохода.
func (s *LedgerSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("Досинхронизация с реестром остановлена")
}

func (s *LedgerSyncService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход по пачке записей без квитанции.
func (s *LedgerSyncService) RunOnce(ctx context.Context) *LedgerSyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &LedgerSyncResult{}

	recs, err := s.repo.ListWithoutLedgerReceipt(ctx, s.batch)
	if err != nil {
		s.logger.Error("Ошибка получения записей без квитанции", slog.String("error", err.Error()))
		result.Errors++
		return result
	}
	result.Checked = len(recs)

	// Свежие записи могут ещё регистрироваться в запросе загрузки
	cutoff := time.Now().Add(-2 * s.callTimeout)

	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		if rec.CreatedAt.After(cutoff) {
			result.Skipped++
			continue
		}

		metadata, err := ledger.MetadataFor(rec)
		if err != nil {
			result.Errors++
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		receipt, err := s.registrar.Register(callCtx, rec.ContentAddress, metadata)
		cancel()
		if err != nil {
			s.logger.Warn("Досинхронизация: регистрация не выполнена",
				slog.String("content_address", rec.ContentAddress),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		if err := s.repo.AttachLedgerReceipt(ctx, rec.ContentAddress, receipt); err != nil {
			s.logger.Error("Досинхронизация: ошибка сохранения квитанции",
				slog.String("content_address", rec.ContentAddress),
				slog.String("receipt", receipt),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		s.records.Invalidate(rec.ContentAddress)
		result.Registered++
	}

	result.Duration = time.Since(start)
	ledgerSyncRunsTotal.Inc()
	ledgerSyncRegisteredTotal.Add(float64(result.Registered))
	ledgerSyncDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Досинхронизация завершена",
		slog.Int("checked", result.Checked),
		slog.Int("registered", result.Registered),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}
