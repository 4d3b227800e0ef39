package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

// testAddress возвращает детерминированный content address для строки.
func testAddress(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// newTestRecord создаёт запись для вставки.
func newTestRecord(s string, createdAt time.Time) *model.ContentRecord {
	return &model.ContentRecord{
		ContentAddress: testAddress(s),
		OriginalName:   s + ".txt",
		MimeType:       "text/plain",
		SizeBytes:      int64(len(s)),
		Category:       model.CategoryDocument,
		CurrentOwner:   model.UnattributedOwner,
		RegisteredBy:   model.AnonymousIdentity,
		CreatedAt:      createdAt,
	}
}

// runContentRepositoryContract — общий набор проверок для всех backend'ов.
func runContentRepositoryContract(t *testing.T, newRepo func(t *testing.T) ContentRepository) {
	t.Run("CreateIfAbsent_Idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := newTestRecord("hello-world", time.Now().UTC())

		first, created, err := repo.CreateIfAbsent(ctx, rec)
		if err != nil {
			t.Fatalf("CreateIfAbsent: %v", err)
		}
		if !created {
			t.Fatal("ожидался created=true при первой регистрации")
		}

		second, created, err := repo.CreateIfAbsent(ctx, newTestRecord("hello-world", time.Now().UTC()))
		if err != nil {
			t.Fatalf("повторный CreateIfAbsent: %v", err)
		}
		if created {
			t.Error("ожидался created=false при повторной регистрации")
		}
		if first.ContentAddress != second.ContentAddress {
			t.Errorf("адреса различаются: %s != %s", first.ContentAddress, second.ContentAddress)
		}

		n, err := repo.CountContent(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("CountContent = %d, ожидается 1", n)
		}
		mints, _ := repo.CountEvents(ctx, model.EventMint)
		if mints != 1 {
			t.Errorf("CountEvents(mint) = %d, ожидается 1", mints)
		}
	})

	t.Run("CreateIfAbsent_Concurrent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const workers = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			creators int
			errs     []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, created, err := repo.CreateIfAbsent(ctx, newTestRecord("race", time.Now().UTC()))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if created {
					creators++
				}
			}()
		}
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("ошибки конкурентной регистрации: %v", errs)
		}
		if creators != 1 {
			t.Errorf("created=true получили %d вызовов, ожидается 1", creators)
		}
		if n, _ := repo.CountContent(ctx); n != 1 {
			t.Errorf("CountContent = %d, ожидается 1", n)
		}
	})

	t.Run("FindByAddress_NotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByAddress(context.Background(), testAddress("missing"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}
	})

	t.Run("RecordTransfer", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec, _, err := repo.CreateIfAbsent(ctx, newTestRecord("transfer", time.Now().UTC()))
		if err != nil {
			t.Fatal(err)
		}

		receipt := "0xabc"
		updated, err := repo.RecordTransfer(ctx, rec.ContentAddress, model.TransferEntry{
			From: model.UnattributedOwner, To: "alice", LedgerReceipt: &receipt,
		})
		if err != nil {
			t.Fatalf("RecordTransfer: %v", err)
		}
		if updated.CurrentOwner != "alice" {
			t.Errorf("CurrentOwner = %q, ожидается alice", updated.CurrentOwner)
		}
		if len(updated.PreviousOwners) != 1 || updated.PreviousOwners[0] != model.UnattributedOwner {
			t.Errorf("PreviousOwners = %v", updated.PreviousOwners)
		}
		if len(updated.TransferHistory) != 1 {
			t.Fatalf("TransferHistory = %d записей, ожидается 1", len(updated.TransferHistory))
		}
		if th := updated.TransferHistory[0]; th.From != model.UnattributedOwner || th.To != "alice" ||
			th.LedgerReceipt == nil || *th.LedgerReceipt != receipt {
			t.Errorf("неожиданная запись передачи: %+v", th)
		}

		// Устаревший from — конфликт без изменений
		_, err = repo.RecordTransfer(ctx, rec.ContentAddress, model.TransferEntry{
			From: model.UnattributedOwner, To: "mallory",
		})
		if !errors.Is(err, ErrOwnershipConflict) {
			t.Fatalf("ожидалась ErrOwnershipConflict, получена %v", err)
		}
		after, err := repo.FindByAddress(ctx, rec.ContentAddress)
		if err != nil {
			t.Fatal(err)
		}
		if after.CurrentOwner != "alice" || len(after.PreviousOwners) != 1 || len(after.TransferHistory) != 1 {
			t.Errorf("конфликтующая передача изменила запись: %+v", after)
		}

		_, err = repo.RecordTransfer(ctx, testAddress("nope"), model.TransferEntry{From: "a", To: "b"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}
	})

	t.Run("RecordTransfer_ConcurrentCAS", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec, _, err := repo.CreateIfAbsent(ctx, newTestRecord("cas", time.Now().UTC()))
		if err != nil {
			t.Fatal(err)
		}

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.RecordTransfer(ctx, rec.ContentAddress, model.TransferEntry{
					From: model.UnattributedOwner, To: fmt.Sprintf("owner-%d", i),
				})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				} else if !errors.Is(err, ErrOwnershipConflict) {
					t.Errorf("неожиданная ошибка: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if successes != 1 {
			t.Errorf("успешных передач %d, ожидается 1", successes)
		}
		after, _ := repo.FindByAddress(ctx, rec.ContentAddress)
		if len(after.TransferHistory) != 1 || len(after.PreviousOwners) != 1 {
			t.Errorf("history=%d previousOwners=%d, ожидается 1 и 1",
				len(after.TransferHistory), len(after.PreviousOwners))
		}
	})

	t.Run("AppendEvents", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec, _, err := repo.CreateIfAbsent(ctx, newTestRecord("events", time.Now().UTC()))
		if err != nil {
			t.Fatal(err)
		}

		ip := "10.0.0.1"
		if err := repo.AppendVerification(ctx, rec.ContentAddress, model.VerificationEntry{
			VerifiedBy: "bob", Outcome: model.VerificationOutcomeVerified, RequesterContext: &ip,
		}); err != nil {
			t.Fatalf("AppendVerification: %v", err)
		}
		if err := repo.AppendDownload(ctx, rec.ContentAddress, model.DownloadEntry{DownloadedBy: "carol"}); err != nil {
			t.Fatalf("AppendDownload: %v", err)
		}

		got, err := repo.FindByAddress(ctx, rec.ContentAddress)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.VerificationHistory) != 1 || got.VerificationHistory[0].VerifiedBy != "bob" ||
			got.VerificationHistory[0].RequesterContext == nil || *got.VerificationHistory[0].RequesterContext != ip {
			t.Errorf("VerificationHistory = %+v", got.VerificationHistory)
		}
		if len(got.DownloadHistory) != 1 || got.DownloadHistory[0].DownloadedBy != "carol" {
			t.Errorf("DownloadHistory = %+v", got.DownloadHistory)
		}

		events, err := repo.ListEvents(ctx, rec.ContentAddress)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 3 || events[0].Kind != model.EventMint {
			t.Errorf("ожидалось 3 события начиная с mint, получено %d", len(events))
		}
		for i := 1; i < len(events); i++ {
			if events[i].Seq <= events[i-1].Seq {
				t.Errorf("события не упорядочены по seq: %d после %d", events[i].Seq, events[i-1].Seq)
			}
		}

		for kind, want := range map[model.EventKind]int{
			model.EventVerify: 1, model.EventDownload: 1, model.EventTransfer: 0, "": 3,
		} {
			n, err := repo.CountEvents(ctx, kind)
			if err != nil {
				t.Fatal(err)
			}
			if n != want {
				t.Errorf("CountEvents(%q) = %d, ожидается %d", kind, n, want)
			}
		}

		err = repo.AppendVerification(ctx, testAddress("unknown"), model.VerificationEntry{VerifiedBy: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}
		err = repo.AppendDownload(ctx, testAddress("unknown"), model.DownloadEntry{DownloadedBy: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}
	})

	t.Run("AttachAndLedgerBacklog", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		a, _, _ := repo.CreateIfAbsent(ctx, newTestRecord("a", base))
		b, _, _ := repo.CreateIfAbsent(ctx, newTestRecord("b", base.Add(time.Minute)))

		if err := repo.AttachBlobLocator(ctx, a.ContentAddress, "QmA"); err != nil {
			t.Fatal(err)
		}
		if err := repo.AttachLedgerReceipt(ctx, a.ContentAddress, "0xa"); err != nil {
			t.Fatal(err)
		}
		if err := repo.AttachLedgerReceipt(ctx, testAddress("zzz"), "0x0"); !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}

		got, _ := repo.FindByAddress(ctx, a.ContentAddress)
		if got.BlobLocator == nil || *got.BlobLocator != "QmA" {
			t.Errorf("BlobLocator = %v", got.BlobLocator)
		}
		if got.LedgerReceipt == nil || *got.LedgerReceipt != "0xa" {
			t.Errorf("LedgerReceipt = %v", got.LedgerReceipt)
		}

		backlog, err := repo.ListWithoutLedgerReceipt(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(backlog) != 1 || backlog[0].ContentAddress != b.ContentAddress {
			t.Errorf("ожидалась только запись b в backlog, получено %d", len(backlog))
		}
	})

	t.Run("ListAll_Pagination", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			if _, _, err := repo.CreateIfAbsent(ctx, newTestRecord(fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatal(err)
			}
		}

		page, total, err := repo.ListAll(ctx, 2, 1)
		if err != nil {
			t.Fatal(err)
		}
		if total != 5 {
			t.Errorf("total = %d, ожидается 5", total)
		}
		if len(page) != 2 {
			t.Fatalf("len(page) = %d, ожидается 2", len(page))
		}
		if page[0].ContentAddress != testAddress("item-3") || page[1].ContentAddress != testAddress("item-2") {
			t.Errorf("неожиданный порядок: %s, %s", page[0].OriginalName, page[1].OriginalName)
		}
	})

	t.Run("RecentEvents", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec, _, _ := repo.CreateIfAbsent(ctx, newTestRecord("recent", time.Now().UTC().Add(-time.Minute)))
		for i := 0; i < 4; i++ {
			if err := repo.AppendVerification(ctx, rec.ContentAddress, model.VerificationEntry{
				VerifiedBy: fmt.Sprintf("v%d", i),
				Timestamp:  time.Now().UTC().Add(time.Duration(i) * time.Second),
				Outcome:    model.VerificationOutcomeVerified,
			}); err != nil {
				t.Fatal(err)
			}
		}

		events, err := repo.RecentEvents(ctx, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 3 {
			t.Fatalf("len = %d, ожидается 3", len(events))
		}
		if events[0].Actor != "v3" {
			t.Errorf("первым ожидалось последнее событие v3, получено %q", events[0].Actor)
		}
		for i := 1; i < len(events); i++ {
			if events[i].Timestamp.After(events[i-1].Timestamp) {
				t.Error("события не отсортированы по убыванию времени")
			}
		}
	})
}
