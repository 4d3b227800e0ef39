// ownership.go — передача владения записью (compare-and-swap по текущему владельцу).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

// TransferParams — параметры передачи.
type TransferParams struct {
	From string
	To   string
	// Proof — необязательное подтверждение (например, хэш транзакции)
	Proof string
}

// OwnershipService — передача владения.
type OwnershipService struct {
	repo    repository.ContentRepository
	records *RecordsService
	logger  *slog.Logger
}

// NewOwnershipService создаёт сервис передачи владения.
func NewOwnershipService(repo repository.ContentRepository, records *RecordsService, logger *slog.Logger) *OwnershipService {
	return &OwnershipService{
		repo:    repo,
		records: records,
		logger:  logger.With(slog.String("component", "ownership")),
	}
}

// Transfer передаёт запись от p.From к p.To.
// Если текущий владелец не p.From — ErrOwnershipConflict, запись не меняется.
func (s *OwnershipService) Transfer(ctx context.Context, address string, p TransferParams) (*model.ContentRecord, error) {
	if !hasher.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: некорректный content address %q", ErrInvalidInput, address)
	}
	from := strings.TrimSpace(p.From)
	to := strings.TrimSpace(p.To)
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: from и to обязательны", ErrInvalidInput)
	}
	if from == to {
		return nil, fmt.Errorf("%w: from и to совпадают", ErrInvalidInput)
	}

	entry := model.TransferEntry{From: from, To: to, Timestamp: time.Now().UTC()}
	if proof := strings.TrimSpace(p.Proof); proof != "" {
		entry.LedgerReceipt = &proof
	}

	rec, err := s.repo.RecordTransfer(ctx, address, entry)
	if err != nil {
		return nil, storeError("передача владения", err)
	}
	s.records.Invalidate(address)

	s.logger.Info("Владение передано",
		slog.String("content_address", address),
		slog.String("from", from),
		slog.String("to", to),
	)
	return rec, nil
}
