package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

// newBoltRepo открывает bbolt во временном каталоге теста.
func newBoltRepo(t *testing.T) *BoltContentRepository {
	t.Helper()
	repo, err := OpenBoltContentRepository(filepath.Join(t.TempDir(), "data", "registry.db"))
	if err != nil {
		t.Fatalf("OpenBoltContentRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBoltContentRepository(t *testing.T) {
	runContentRepositoryContract(t, func(t *testing.T) ContentRepository {
		return newBoltRepo(t)
	})
}

// TestBoltReopen проверяет сохранность данных после переоткрытия файла.
func TestBoltReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	repo, err := OpenBoltContentRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	rec, _, err := repo.CreateIfAbsent(ctx, newTestRecord("persist", time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.RecordTransfer(ctx, rec.ContentAddress, model.TransferEntry{
		From: model.UnattributedOwner, To: "alice",
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenBoltContentRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.FindByAddress(ctx, rec.ContentAddress)
	if err != nil {
		t.Fatalf("FindByAddress после переоткрытия: %v", err)
	}
	if got.CurrentOwner != "alice" || len(got.TransferHistory) != 1 {
		t.Errorf("данные потеряны после переоткрытия: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, ожидается %v", got.CreatedAt, rec.CreatedAt)
	}
	if n, _ := reopened.CountEvents(ctx, ""); n != 2 {
		t.Errorf("CountEvents = %d, ожидается 2", n)
	}
}

// TestBoltListEventsUnknownAddress — пустой список без ошибки.
func TestBoltListEventsUnknownAddress(t *testing.T) {
	repo := newBoltRepo(t)
	events, err := repo.ListEvents(context.Background(), testAddress("nothing"))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("ожидался пустой список, получено %d", len(events))
	}
}

// TestBoltCanceledContext — отменённый контекст не выполняет операцию.
func TestBoltCanceledContext(t *testing.T) {
	repo := newBoltRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := repo.CreateIfAbsent(ctx, newTestRecord("x", time.Now())); err == nil {
		t.Error("ожидалась ошибка при отменённом контексте")
	}
	if n, _ := repo.CountContent(context.Background()); n != 0 {
		t.Errorf("CountContent = %d, ожидается 0", n)
	}
}

// TestBoltCheckReady проверяет readiness-проверку открытой и закрытой базы.
func TestBoltCheckReady(t *testing.T) {
	repo, err := OpenBoltContentRepository(filepath.Join(t.TempDir(), "ready.db"))
	if err != nil {
		t.Fatalf("OpenBoltContentRepository() ошибка: %v", err)
	}

	if repo.Name() != "bbolt" {
		t.Errorf("ожидалось имя bbolt, получено %q", repo.Name())
	}
	if status, msg := repo.CheckReady(); status != "ok" {
		t.Errorf("ожидался статус ok, получен %q (%s)", status, msg)
	}

	_ = repo.Close()
	if status, _ := repo.CheckReady(); status != "fail" {
		t.Errorf("ожидался статус fail после Close, получен %q", status)
	}
}
