// fsstore.go — локальное content-addressable хранилище.
// Путь файла: {dir}/{hash[0:2]}/{hash[2:4]}/{hash}[.zst], локатор "fs:{hash}".
// Запись: temp файл → SHA-256 на лету → fsync → atomic rename.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	fsLocatorPrefix = "fs:"
	zstdSuffix      = ".zst"
)

// FSStore — blob-хранилище в локальной директории.
type FSStore struct {
	dir      string
	compress bool
}

// Compile-time проверка интерфейса.
var _ Store = (*FSStore)(nil)

// NewFSStore создаёт хранилище. Директория создаётся при отсутствии.
func NewFSStore(dir string, compress bool) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию blob-хранилища %s: %w", dir, err)
	}
	return &FSStore{dir: dir, compress: compress}, nil
}

func (s *FSStore) Name() string { return "fs" }

// CheckReady проверяет, что корневая директория существует.
func (s *FSStore) CheckReady() (status string, message string) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return "fail", fmt.Sprintf("директория blob-хранилища недоступна: %v", err)
	}
	if !info.IsDir() {
		return "fail", s.dir + " не является директорией"
	}
	return "ok", "директория " + s.dir
}

// Dir возвращает корневую директорию хранилища.
func (s *FSStore) Dir() string { return s.dir }

// Put записывает содержимое. Повторная запись тех же байтов
// не создаёт второй копии.
func (s *FSStore) Put(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, "put-*.tmp")
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher := sha256.New()
	tee := io.TeeReader(&ctxReader{ctx: ctx, r: r}, hasher)

	if s.compress {
		enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			cleanup()
			return "", fmt.Errorf("ошибка инициализации zstd: %w", err)
		}
		if _, err := io.Copy(enc, tee); err != nil {
			enc.Close()
			cleanup()
			return "", fmt.Errorf("ошибка записи данных: %w", err)
		}
		if err := enc.Close(); err != nil {
			cleanup()
			return "", fmt.Errorf("ошибка завершения zstd-потока: %w", err)
		}
	} else if _, err := io.Copy(tmp, tee); err != nil {
		cleanup()
		return "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	locator := fsLocatorPrefix + hash

	if _, err := s.find(hash); err == nil {
		os.Remove(tmpPath)
		return locator, nil
	}

	fullPath := s.path(hash, s.compress)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка создания директории шарда: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return locator, nil
}

// Get открывает содержимое, распаковывая zstd при необходимости.
func (s *FSStore) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, ok := strings.CutPrefix(locator, fsLocatorPrefix)
	if !ok || !isHexSHA256(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}

	fullPath, err := s.find(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", fullPath, err)
	}
	if !strings.HasSuffix(fullPath, zstdSuffix) {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка инициализации zstd-декодера: %w", err)
	}
	return &zstdReadCloser{dec: dec, file: f}, nil
}

// find ищет файл в сжатом и несжатом вариантах.
func (s *FSStore) find(hash string) (string, error) {
	for _, compressed := range []bool{true, false} {
		p := s.path(hash, compressed)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("ошибка проверки файла %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, hash)
}

func (s *FSStore) path(hash string, compressed bool) string {
	name := hash
	if compressed {
		name += zstdSuffix
	}
	return filepath.Join(s.dir, hash[0:2], hash[2:4], name)
}

func isHexSHA256(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// zstdReadCloser закрывает декодер и файл.
type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}

// ctxReader прерывает копирование при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
