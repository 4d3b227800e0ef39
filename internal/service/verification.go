// verification.go — проверка подлинности содержимого по content address.
// Запись в Content Store авторитетна: расхождение с реестром или его
// недоступность отражаются только в ledgerCrossCheck/ledgerNote.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/ledger"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

var verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cr_verifications_total",
	Help: "Количество проверок по результату (verified, unknown).",
}, []string{"result"})

// Пояснения к перекрёстной проверке.
const (
	LedgerNoteConfirmed   = "адрес найден во внешнем реестре"
	LedgerNoteMissing     = "адрес не найден во внешнем реестре"
	LedgerNoteDisabled    = "внешний реестр не настроен"
	LedgerNoteUnreachable = "запись подтверждена хранилищем, внешний реестр недоступен"
)

// VerifyParams — входные данные проверки.
type VerifyParams struct {
	Content []byte
	// Requester — идентичность проверяющего (пусто — anonymous)
	Requester string
	// RequesterContext — IP клиента или другой контекст запроса
	RequesterContext string
}

// VerificationResult — результат проверки.
// LedgerCrossCheck: true/false — результат сверки, nil — сверка не выполнена.
type VerificationResult struct {
	Verified         bool
	ContentAddress   string
	Record           *model.ContentRecord
	LedgerCrossCheck *bool
	LedgerNote       string
}

// VerificationService — проверка содержимого.
type VerificationService struct {
	repo        repository.ContentRepository
	registrar   ledger.Registrar
	records     *RecordsService
	scanLimit   int
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewVerificationService создаёт сервис проверки.
func NewVerificationService(
	repo repository.ContentRepository,
	registrar ledger.Registrar,
	records *RecordsService,
	scanLimit int,
	callTimeout time.Duration,
	logger *slog.Logger,
) *VerificationService {
	return &VerificationService{
		repo:        repo,
		registrar:   registrar,
		records:     records,
		scanLimit:   scanLimit,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "verification")),
	}
}

// Verify проверяет, зарегистрировано ли содержимое.
// Незарегистрированное содержимое — штатный результат verified=false.
func (s *VerificationService) Verify(ctx context.Context, p VerifyParams) (*VerificationResult, error) {
	address, err := hasher.Hash(p.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec, err := s.repo.FindByAddress(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		verificationsTotal.WithLabelValues("unknown").Inc()
		return &VerificationResult{Verified: false, ContentAddress: address}, nil
	}
	if err != nil {
		return nil, storeError("проверка", err)
	}

	requester := p.Requester
	if requester == "" {
		requester = model.AnonymousIdentity
	}
	entry := model.VerificationEntry{
		VerifiedBy: requester,
		Timestamp:  time.Now().UTC(),
		Outcome:    model.VerificationOutcomeVerified,
	}
	if p.RequesterContext != "" {
		entry.RequesterContext = &p.RequesterContext
	}
	if err := s.repo.AppendVerification(ctx, address, entry); err != nil {
		s.logger.Warn("Не удалось сохранить событие проверки",
			slog.String("content_address", address),
			slog.String("error", err.Error()),
		)
	} else {
		rec.VerificationHistory = append(rec.VerificationHistory, entry)
		rec.UpdatedAt = entry.Timestamp
		s.records.Invalidate(address)
	}

	result := &VerificationResult{Verified: true, ContentAddress: address, Record: rec}
	result.LedgerCrossCheck, result.LedgerNote = s.crossCheck(ctx, address)

	verificationsTotal.WithLabelValues("verified").Inc()
	s.logger.Debug("Содержимое подтверждено",
		slog.String("content_address", address),
		slog.String("requester", requester),
		slog.String("ledger_note", result.LedgerNote),
	)
	return result, nil
}

// crossCheck ищет адрес среди последних регистраций реестра.
func (s *VerificationService) crossCheck(ctx context.Context, address string) (*bool, string) {
	if !ledger.Enabled(s.registrar) {
		return nil, LedgerNoteDisabled
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	found, err := ledger.ScanNewestFirst(callCtx, s.registrar, address, s.scanLimit)
	if err != nil {
		s.logger.Warn("Перекрёстная проверка с реестром не выполнена",
			slog.String("content_address", address),
			slog.String("error", err.Error()),
		)
		return nil, LedgerNoteUnreachable
	}
	if found {
		return &found, LedgerNoteConfirmed
	}
	return &found, LedgerNoteMissing
}
