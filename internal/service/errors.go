// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

var (
	// ErrInvalidInput — некорректные входные данные (пустой файл, неверный адрес).
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrOwnershipConflict — текущий владелец не совпадает с from.
	ErrOwnershipConflict = errors.New("конфликт владения")
	// ErrStorageUnavailable — хранилище записей недоступно.
	ErrStorageUnavailable = errors.New("хранилище записей недоступно")
	// ErrBlobUnavailable — содержимое записи не сохранено в blob-хранилище.
	ErrBlobUnavailable = errors.New("содержимое недоступно для скачивания")
	// ErrBlobStoreUnavailable — blob-хранилище не отвечает.
	ErrBlobStoreUnavailable = errors.New("blob-хранилище недоступно")
)

// storeError переводит ошибку репозитория в ошибку сервисного слоя.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrOwnershipConflict):
		return fmt.Errorf("%s: %w", op, ErrOwnershipConflict)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
}
