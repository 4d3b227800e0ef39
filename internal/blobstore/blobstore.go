// Пакет blobstore — хранилище содержимого загруженных файлов.
// Backend'ы: IPFS (Kubo HTTP API), локальная content-addressable
// директория со сжатием zstd и отключённое хранилище.
package blobstore

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrDisabled — blob-хранилище не настроено.
	ErrDisabled = errors.New("blob-хранилище отключено")
	// ErrNotFound — содержимое по локатору отсутствует.
	ErrNotFound = errors.New("содержимое не найдено")
	// ErrInvalidLocator — локатор не принадлежит данному backend'у.
	ErrInvalidLocator = errors.New("некорректный локатор")
)

// Store — content-addressable хранилище байтов.
type Store interface {
	// Put сохраняет содержимое и возвращает локатор.
	Put(ctx context.Context, r io.Reader) (string, error)
	// Get открывает содержимое по локатору. Вызывающий обязан закрыть reader.
	Get(ctx context.Context, locator string) (io.ReadCloser, error)
	// Name — имя backend'а для логов и метрик.
	Name() string
}

// Disabled — заглушка при CR_BLOB_BACKEND=none.
type Disabled struct{}

// Put всегда возвращает ErrDisabled.
func (Disabled) Put(context.Context, io.Reader) (string, error) {
	return "", ErrDisabled
}

// Get всегда возвращает ErrDisabled.
func (Disabled) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, ErrDisabled
}

func (Disabled) Name() string { return "none" }

// Enabled сообщает, настроено ли хранилище.
func Enabled(s Store) bool {
	if s == nil {
		return false
	}
	_, disabled := s.(Disabled)
	return !disabled
}
