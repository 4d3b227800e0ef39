// Пакет ledger — регистрация content address во внешнем реестре
// (смарт-контракт MediaRegistry в сети Ethereum).
package ledger

import (
	"context"
	"errors"
)

// ErrDisabled — внешний реестр не настроен.
var ErrDisabled = errors.New("внешний реестр отключён")

// Registration — запись контракта MediaRegistry.
type Registration struct {
	Index    uint64 `json:"index"`
	Hash     string `json:"hash"`
	Metadata string `json:"metadata"`
}

// Registrar — внешний реестр регистраций.
type Registrar interface {
	// Register регистрирует адрес и возвращает квитанцию (хэш транзакции).
	Register(ctx context.Context, contentAddress string, metadata []byte) (string, error)
	// ListRegistrations возвращает все регистрации по возрастанию индекса.
	ListRegistrations(ctx context.Context) ([]Registration, error)
	// Find возвращает регистрацию по индексу.
	Find(ctx context.Context, index uint64) (*Registration, error)
	// Count возвращает количество регистраций.
	Count(ctx context.Context) (uint64, error)
}

// Disabled — заглушка при CR_LEDGER_ENABLED=false.
type Disabled struct{}

func (Disabled) Register(context.Context, string, []byte) (string, error) {
	return "", ErrDisabled
}

func (Disabled) ListRegistrations(context.Context) ([]Registration, error) {
	return nil, ErrDisabled
}

func (Disabled) Find(context.Context, uint64) (*Registration, error) {
	return nil, ErrDisabled
}

func (Disabled) Count(context.Context) (uint64, error) {
	return 0, ErrDisabled
}

// Enabled сообщает, настроен ли реестр.
func Enabled(r Registrar) bool {
	if r == nil {
		return false
	}
	_, disabled := r.(Disabled)
	return !disabled
}

// ScanNewestFirst ищет contentAddress среди последних limit регистраций,
// начиная с самой новой. limit <= 0 — без ограничения.
func ScanNewestFirst(ctx context.Context, r Registrar, contentAddress string, limit int) (bool, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return false, err
	}

	scanned := 0
	for i := count; i > 0; i-- {
		if limit > 0 && scanned >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		reg, err := r.Find(ctx, i-1)
		if err != nil {
			return false, err
		}
		if reg.Hash == contentAddress {
			return true, nil
		}
		scanned++
	}
	return false, nil
}
