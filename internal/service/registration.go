// registration.go — регистрация загруженного содержимого.
//
// Порядок:
//  1. content address = SHA-256 содержимого
//  2. CreateIfAbsent в Content Store (событие mint пишется в той же транзакции)
//  3. для дубликата — возврат существующей записи без побочных эффектов
//  4. для новой записи — параллельно Blob Store put и регистрация в реестре,
//     каждый вызов ограничен таймаутом; ошибки не откатывают запись
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/content-registry/internal/blobstore"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/ledger"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

// Prometheus-метрики регистрации.
var (
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cr_registrations_total",
		Help: "Количество регистраций по результату (created, duplicate, failed).",
	}, []string{"outcome"})

	sideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cr_side_effect_failures_total",
		Help: "Количество неудачных внешних вызовов при регистрации (blob, ledger).",
	}, []string{"target"})

	sideEffectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cr_side_effect_duration_seconds",
		Help:    "Длительность внешних вызовов при регистрации.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"target"})
)

// RegisterParams — входные данные регистрации.
type RegisterParams struct {
	Content      []byte
	OriginalName string
	MimeType     string
	Title        string
	Description  string
	// Requester — идентичность загружающего (пусто — anonymous)
	Requester string
}

// RegistrationResult — результат регистрации.
type RegistrationResult struct {
	Record           *model.ContentRecord
	Created          bool
	Duplicate        bool
	BlobStored       bool
	LedgerRegistered bool
}

// RegistrationService — регистрация содержимого.
type RegistrationService struct {
	repo        repository.ContentRepository
	blobs       blobstore.Store
	registrar   ledger.Registrar
	records     *RecordsService
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewRegistrationService создаёт сервис. blobs и registrar могут быть
// отключёнными заглушками (blobstore.Disabled, ledger.Disabled).
func NewRegistrationService(
	repo repository.ContentRepository,
	blobs blobstore.Store,
	registrar ledger.Registrar,
	records *RecordsService,
	callTimeout time.Duration,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		repo:        repo,
		blobs:       blobs,
		registrar:   registrar,
		records:     records,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "registration")),
	}
}

// Register регистрирует содержимое. Повторная регистрация тех же байтов
// возвращает существующую запись с Duplicate=true.
func (s *RegistrationService) Register(ctx context.Context, p RegisterParams) (*RegistrationResult, error) {
	address, err := hasher.Hash(p.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	requester := p.Requester
	if requester == "" {
		requester = model.AnonymousIdentity
	}

	rec, created, err := s.repo.CreateIfAbsent(ctx, &model.ContentRecord{
		ContentAddress: address,
		OriginalName:   p.OriginalName,
		MimeType:       p.MimeType,
		SizeBytes:      int64(len(p.Content)),
		Title:          p.Title,
		Description:    p.Description,
		Category:       model.CategoryFromMimeType(p.MimeType),
		CurrentOwner:   model.UnattributedOwner,
		RegisteredBy:   requester,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		registrationsTotal.WithLabelValues("failed").Inc()
		return nil, storeError("регистрация", err)
	}

	if !created {
		registrationsTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("Повторная загрузка известного содержимого",
			slog.String("content_address", address),
			slog.String("requester", requester),
		)
		return &RegistrationResult{
			Record:           rec,
			Duplicate:        true,
			BlobStored:       rec.BlobLocator != nil,
			LedgerRegistered: rec.LedgerReceipt != nil,
		}, nil
	}

	registrationsTotal.WithLabelValues("created").Inc()
	result := &RegistrationResult{Record: rec, Created: true}

	var (
		locator string
		receipt string
		g       errgroup.Group
	)
	if blobstore.Enabled(s.blobs) {
		g.Go(func() error {
			locator = s.putBlob(ctx, address, p.Content)
			return nil
		})
	}
	if ledger.Enabled(s.registrar) {
		g.Go(func() error {
			receipt = s.registerLedger(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	// Результаты выполненных побочных эффектов сохраняются и после отмены запроса.
	attachCtx := context.WithoutCancel(ctx)
	if locator != "" {
		if err := s.repo.AttachBlobLocator(attachCtx, address, locator); err != nil {
			s.logger.Warn("Не удалось сохранить локатор blob-хранилища",
				slog.String("content_address", address),
				slog.String("error", err.Error()),
			)
		} else {
			rec.BlobLocator = &locator
			result.BlobStored = true
		}
	}
	if receipt != "" {
		if err := s.repo.AttachLedgerReceipt(attachCtx, address, receipt); err != nil {
			s.logger.Warn("Не удалось сохранить квитанцию реестра",
				slog.String("content_address", address),
				slog.String("error", err.Error()),
			)
		} else {
			rec.LedgerReceipt = &receipt
			result.LedgerRegistered = true
		}
	}
	s.records.Invalidate(address)

	s.logger.Info("Содержимое зарегистрировано",
		slog.String("content_address", address),
		slog.String("original_name", p.OriginalName),
		slog.Int64("size", rec.SizeBytes),
		slog.String("requester", requester),
		slog.Bool("blob_stored", result.BlobStored),
		slog.Bool("ledger_registered", result.LedgerRegistered),
	)
	return result, nil
}

// putBlob сохраняет байты в Blob Store. Пустая строка — неудача.
func (s *RegistrationService) putBlob(ctx context.Context, address string, content []byte) string {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	locator, err := s.blobs.Put(callCtx, bytes.NewReader(content))
	sideEffectDuration.WithLabelValues("blob").Observe(time.Since(start).Seconds())
	if err != nil {
		sideEffectFailuresTotal.WithLabelValues("blob").Inc()
		s.logger.Warn("Blob Store недоступен, запись сохранена без содержимого",
			slog.String("content_address", address),
			slog.String("backend", s.blobs.Name()),
			slog.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return locator
}

// registerLedger регистрирует адрес во внешнем реестре. Пустая строка — неудача.
func (s *RegistrationService) registerLedger(ctx context.Context, rec *model.ContentRecord) string {
	metadata, err := ledger.MetadataFor(rec)
	if err != nil {
		sideEffectFailuresTotal.WithLabelValues("ledger").Inc()
		s.logger.Error("Ошибка формирования метаданных", slog.String("error", err.Error()))
		return ""
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.registrar.Register(callCtx, rec.ContentAddress, metadata)
	sideEffectDuration.WithLabelValues("ledger").Observe(time.Since(start).Seconds())
	if err != nil {
		sideEffectFailuresTotal.WithLabelValues("ledger").Inc()
		s.logger.Warn("Регистрация в реестре не выполнена",
			slog.String("content_address", rec.ContentAddress),
			slog.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return receipt
}
