package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/ledger"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
)

var errBoom = errors.New("boom")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestRepo открывает bbolt-репозиторий во временном каталоге.
func newTestRepo(t *testing.T) *repository.BoltContentRepository {
	t.Helper()
	repo, err := repository.OpenBoltContentRepository(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("ошибка открытия bbolt: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// --- Mock Blob Store ---

type mockBlobStore struct {
	putFn func(ctx context.Context, r io.Reader) (string, error)
	getFn func(ctx context.Context, locator string) (io.ReadCloser, error)
	puts  atomic.Int32
}

func (m *mockBlobStore) Put(ctx context.Context, r io.Reader) (string, error) {
	m.puts.Add(1)
	if m.putFn != nil {
		return m.putFn(ctx, r)
	}
	return "QmMock", nil
}

func (m *mockBlobStore) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	if m.getFn != nil {
		return m.getFn(ctx, locator)
	}
	return nil, errBoom
}

func (m *mockBlobStore) Name() string { return "mock" }

// --- Mock Registrar ---

type mockRegistrar struct {
	registerFn func(ctx context.Context, address string, metadata []byte) (string, error)
	countFn    func(ctx context.Context) (uint64, error)
	findFn     func(ctx context.Context, index uint64) (*ledger.Registration, error)
	registers  atomic.Int32
}

func (m *mockRegistrar) Register(ctx context.Context, address string, metadata []byte) (string, error) {
	m.registers.Add(1)
	if m.registerFn != nil {
		return m.registerFn(ctx, address, metadata)
	}
	return "0xreceipt", nil
}

func (m *mockRegistrar) ListRegistrations(ctx context.Context) ([]ledger.Registration, error) {
	return nil, errBoom
}

func (m *mockRegistrar) Find(ctx context.Context, index uint64) (*ledger.Registration, error) {
	if m.findFn != nil {
		return m.findFn(ctx, index)
	}
	return nil, errBoom
}

func (m *mockRegistrar) Count(ctx context.Context) (uint64, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

// registryOf возвращает mockRegistrar, содержащий указанные адреса.
func registryOf(addresses ...string) *mockRegistrar {
	return &mockRegistrar{
		countFn: func(context.Context) (uint64, error) { return uint64(len(addresses)), nil },
		findFn: func(_ context.Context, i uint64) (*ledger.Registration, error) {
			return &ledger.Registration{Index: i, Hash: addresses[i]}, nil
		},
	}
}

// --- Репозиторий с инъекцией ошибок ---

type faultyRepo struct {
	repository.ContentRepository
	findErr   error
	createErr error
	appendErr error
}

func (f *faultyRepo) FindByAddress(ctx context.Context, address string) (*model.ContentRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.ContentRepository.FindByAddress(ctx, address)
}

func (f *faultyRepo) CreateIfAbsent(ctx context.Context, rec *model.ContentRecord) (*model.ContentRecord, bool, error) {
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	return f.ContentRepository.CreateIfAbsent(ctx, rec)
}

func (f *faultyRepo) AppendVerification(ctx context.Context, address string, e model.VerificationEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.ContentRepository.AppendVerification(ctx, address, e)
}

func (f *faultyRepo) AppendDownload(ctx context.Context, address string, e model.DownloadEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.ContentRepository.AppendDownload(ctx, address, e)
}
