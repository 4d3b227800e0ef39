// bolt.go — реализация ContentRepository на встраиваемой базе bbolt.
// Используется для однопроцессных инсталляций без PostgreSQL.
//
// Бакеты:
//   - records: content_address → CBOR(boltRecord)
//   - records_by_created: created_at(8 байт BE) + content_address → пусто
//   - events: seq(8 байт BE) → CBOR(boltEvent)
//   - events_by_address: content_address + seq(8 байт BE) → пусто
//   - counters: имя счётчика → uint64(8 байт BE)
//
// bbolt допускает одну пишущую транзакцию, поэтому CreateIfAbsent и RecordTransfer
// сериализованы без дополнительных блокировок.
package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

var (
	bucketRecords          = []byte("records")
	bucketRecordsByCreated = []byte("records_by_created")
	bucketEvents           = []byte("events")
	bucketEventsByAddress  = []byte("events_by_address")
	bucketCounters         = []byte("counters")

	counterContent = []byte("content")
	counterEvents  = []byte("events")
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("repository: инициализация CBOR-кодировщика: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("repository: инициализация CBOR-декодировщика: " + err.Error())
	}
}

// boltRecord — формат хранения записи. Время — UnixNano для точности.
type boltRecord struct {
	ContentAddress string   `cbor:"a"`
	OriginalName   string   `cbor:"n"`
	MimeType       string   `cbor:"m"`
	SizeBytes      int64    `cbor:"s"`
	Title          string   `cbor:"t"`
	Description    string   `cbor:"d"`
	Category       string   `cbor:"c"`
	BlobLocator    *string  `cbor:"bl,omitempty"`
	LedgerReceipt  *string  `cbor:"lr,omitempty"`
	CurrentOwner   string   `cbor:"o"`
	PreviousOwners []string `cbor:"po"`
	RegisteredBy   string   `cbor:"rb"`
	CreatedAt      int64    `cbor:"ca"`
	UpdatedAt      int64    `cbor:"ua"`
}

// boltEvent — формат хранения события.
type boltEvent struct {
	EventID          string  `cbor:"id"`
	Seq              uint64  `cbor:"q"`
	Kind             string  `cbor:"k"`
	ContentAddress   string  `cbor:"a"`
	Timestamp        int64   `cbor:"ts"`
	Actor            string  `cbor:"ac,omitempty"`
	From             string  `cbor:"f,omitempty"`
	To               string  `cbor:"to,omitempty"`
	Outcome          string  `cbor:"oc,omitempty"`
	LedgerReceipt    *string `cbor:"lr,omitempty"`
	RequesterContext *string `cbor:"rc,omitempty"`
}

// BoltContentRepository — Content Store в файле bbolt.
type BoltContentRepository struct {
	db *bbolt.DB
}

// Compile-time проверка интерфейса.
var _ ContentRepository = (*BoltContentRepository)(nil)

// OpenBoltContentRepository открывает или создаёт базу по пути dbPath.
// Родительский каталог создаётся при отсутствии.
func OpenBoltContentRepository(dbPath string) (*BoltContentRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога bbolt: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия bbolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketRecords, bucketRecordsByCreated, bucketEvents, bucketEventsByAddress, bucketCounters,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("создание бакета %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка инициализации бакетов bbolt: %w", err)
	}

	return &BoltContentRepository{db: db}, nil
}

// Close закрывает базу.
func (r *BoltContentRepository) Close() error {
	return r.db.Close()
}

// Path возвращает путь к файлу базы.
func (r *BoltContentRepository) Path() string {
	return r.db.Path()
}

// Name — имя зависимости в ответе readiness.
func (r *BoltContentRepository) Name() string {
	return "bbolt"
}

// CheckReady проверяет, что база открыта и читается.
func (r *BoltContentRepository) CheckReady() (status string, message string) {
	err := r.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRecords) == nil {
			return fmt.Errorf("бакет %q отсутствует", bucketRecords)
		}
		return nil
	})
	if err != nil {
		return "fail", fmt.Sprintf("bbolt недоступен: %v", err)
	}
	return "ok", "база открыта: " + r.db.Path()
}

// FindByAddress возвращает запись с историями или ErrNotFound.
func (r *BoltContentRepository) FindByAddress(ctx context.Context, address string) (*model.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *model.ContentRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = boltFindWithHistory(tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateIfAbsent создаёт запись и событие mint в одной пишущей транзакции.
func (r *BoltContentRepository) CreateIfAbsent(ctx context.Context, rec *model.ContentRecord) (*model.ContentRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		result  *model.ContentRecord
		created bool
	)
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRecords).Get([]byte(rec.ContentAddress)) != nil {
			existing, err := boltFindWithHistory(tx, rec.ContentAddress)
			if err != nil {
				return err
			}
			result = existing
			return nil
		}

		now := time.Now().UTC()
		newRec := rec.Clone()
		if newRec.CreatedAt.IsZero() {
			newRec.CreatedAt = now
		}
		newRec.UpdatedAt = newRec.CreatedAt
		if newRec.CurrentOwner == "" {
			newRec.CurrentOwner = model.UnattributedOwner
		}
		if newRec.PreviousOwners == nil {
			newRec.PreviousOwners = []string{}
		}
		newRec.TransferHistory, newRec.VerificationHistory, newRec.DownloadHistory = nil, nil, nil

		if err := boltPutRecord(tx, newRec); err != nil {
			return err
		}
		if err := tx.Bucket(bucketRecordsByCreated).Put(createdKey(newRec), nil); err != nil {
			return fmt.Errorf("ошибка записи индекса created_at: %w", err)
		}
		if err := incrCounter(tx, counterContent); err != nil {
			return err
		}
		if err := boltAppendEvent(tx, &model.HistoryEvent{
			Kind:           model.EventMint,
			ContentAddress: newRec.ContentAddress,
			Timestamp:      newRec.CreatedAt,
			Actor:          newRec.RegisteredBy,
			To:             newRec.CurrentOwner,
		}); err != nil {
			return err
		}

		result = newRec
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// AttachBlobLocator сохраняет локатор blob-хранилища.
func (r *BoltContentRepository) AttachBlobLocator(ctx context.Context, address, locator string) error {
	return r.update(ctx, address, func(rec *model.ContentRecord) {
		rec.BlobLocator = &locator
	})
}

// AttachLedgerReceipt сохраняет квитанцию внешнего реестра.
func (r *BoltContentRepository) AttachLedgerReceipt(ctx context.Context, address, receipt string) error {
	return r.update(ctx, address, func(rec *model.ContentRecord) {
		rec.LedgerReceipt = &receipt
	})
}

// update применяет fn к записи в пишущей транзакции.
func (r *BoltContentRepository) update(ctx context.Context, address string, fn func(rec *model.ContentRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := boltGetRecord(tx, address)
		if err != nil {
			return err
		}
		fn(rec)
		rec.UpdatedAt = time.Now().UTC()
		return boltPutRecord(tx, rec)
	})
}

// AppendVerification добавляет событие верификации.
func (r *BoltContentRepository) AppendVerification(ctx context.Context, address string, entry model.VerificationEntry) error {
	return r.appendEvent(ctx, &model.HistoryEvent{
		Kind:             model.EventVerify,
		ContentAddress:   address,
		Timestamp:        entry.Timestamp,
		Actor:            entry.VerifiedBy,
		Outcome:          entry.Outcome,
		RequesterContext: entry.RequesterContext,
	})
}

// AppendDownload добавляет событие скачивания.
func (r *BoltContentRepository) AppendDownload(ctx context.Context, address string, entry model.DownloadEntry) error {
	return r.appendEvent(ctx, &model.HistoryEvent{
		Kind:             model.EventDownload,
		ContentAddress:   address,
		Timestamp:        entry.Timestamp,
		Actor:            entry.DownloadedBy,
		RequesterContext: entry.RequesterContext,
	})
}

func (r *BoltContentRepository) appendEvent(ctx context.Context, e *model.HistoryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := boltGetRecord(tx, e.ContentAddress)
		if err != nil {
			return err
		}
		rec.UpdatedAt = e.Timestamp
		if err := boltPutRecord(tx, rec); err != nil {
			return err
		}
		return boltAppendEvent(tx, e)
	})
}

// RecordTransfer — CAS владельца и событие transfer в одной транзакции.
func (r *BoltContentRepository) RecordTransfer(ctx context.Context, address string, entry model.TransferEntry) (*model.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var result *model.ContentRecord
	err := r.db.Update(func(tx *bbolt.Tx) error {
		rec, err := boltGetRecord(tx, address)
		if err != nil {
			return err
		}
		if rec.CurrentOwner != entry.From {
			return ErrOwnershipConflict
		}

		rec.PreviousOwners = append(rec.PreviousOwners, rec.CurrentOwner)
		rec.CurrentOwner = entry.To
		rec.UpdatedAt = entry.Timestamp
		if err := boltPutRecord(tx, rec); err != nil {
			return err
		}
		if err := boltAppendEvent(tx, &model.HistoryEvent{
			Kind:           model.EventTransfer,
			ContentAddress: address,
			Timestamp:      entry.Timestamp,
			From:           entry.From,
			To:             entry.To,
			LedgerReceipt:  entry.LedgerReceipt,
		}); err != nil {
			return err
		}

		result, err = boltFindWithHistory(tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAll возвращает страницу записей, новые первыми.
func (r *BoltContentRepository) ListAll(ctx context.Context, limit, offset int) ([]*model.ContentRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var (
		result []*model.ContentRecord
		total  int
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		total = int(readCounter(tx, counterContent))

		c := tx.Bucket(bucketRecordsByCreated).Cursor()
		skipped := 0
		for k, _ := c.Last(); k != nil && len(result) < limit; k, _ = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			rec, err := boltGetRecord(tx, string(k[8:]))
			if err != nil {
				return err
			}
			result = append(result, rec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ListWithoutLedgerReceipt возвращает самые старые записи без квитанции реестра.
func (r *BoltContentRepository) ListWithoutLedgerReceipt(ctx context.Context, limit int) ([]*model.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*model.ContentRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecordsByCreated).Cursor()
		for k, _ := c.First(); k != nil && len(result) < limit; k, _ = c.Next() {
			rec, err := boltGetRecord(tx, string(k[8:]))
			if err != nil {
				return err
			}
			if rec.LedgerReceipt == nil {
				result = append(result, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListEvents возвращает события записи в порядке добавления.
func (r *BoltContentRepository) ListEvents(ctx context.Context, address string) ([]*model.HistoryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []*model.HistoryEvent
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		events, err = boltListEvents(tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// RecentEvents возвращает последние limit событий по всем записям.
func (r *BoltContentRepository) RecentEvents(ctx context.Context, limit int) ([]*model.HistoryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []*model.HistoryEvent
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			e, err := decodeEvent(v)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

// CountContent возвращает количество записей.
func (r *BoltContentRepository) CountContent(ctx context.Context) (int, error) {
	return r.count(ctx, counterContent)
}

// CountEvents возвращает количество событий вида kind (пустой kind — все).
func (r *BoltContentRepository) CountEvents(ctx context.Context, kind model.EventKind) (int, error) {
	if kind == "" {
		return r.count(ctx, counterEvents)
	}
	return r.count(ctx, eventCounterKey(kind))
}

func (r *BoltContentRepository) count(ctx context.Context, key []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n uint64
	err := r.db.View(func(tx *bbolt.Tx) error {
		n = readCounter(tx, key)
		return nil
	})
	return int(n), err
}

// --- Вспомогательные функции ---

func boltGetRecord(tx *bbolt.Tx, address string) (*model.ContentRecord, error) {
	data := tx.Bucket(bucketRecords).Get([]byte(address))
	if data == nil {
		return nil, ErrNotFound
	}
	var br boltRecord
	if err := cborDec.Unmarshal(data, &br); err != nil {
		return nil, fmt.Errorf("ошибка декодирования записи %s: %w", address, err)
	}
	return &model.ContentRecord{
		ContentAddress: br.ContentAddress,
		OriginalName:   br.OriginalName,
		MimeType:       br.MimeType,
		SizeBytes:      br.SizeBytes,
		Title:          br.Title,
		Description:    br.Description,
		Category:       br.Category,
		BlobLocator:    br.BlobLocator,
		LedgerReceipt:  br.LedgerReceipt,
		CurrentOwner:   br.CurrentOwner,
		PreviousOwners: append([]string{}, br.PreviousOwners...),
		RegisteredBy:   br.RegisteredBy,
		CreatedAt:      time.Unix(0, br.CreatedAt).UTC(),
		UpdatedAt:      time.Unix(0, br.UpdatedAt).UTC(),
	}, nil
}

func boltPutRecord(tx *bbolt.Tx, rec *model.ContentRecord) error {
	data, err := cborEnc.Marshal(boltRecord{
		ContentAddress: rec.ContentAddress,
		OriginalName:   rec.OriginalName,
		MimeType:       rec.MimeType,
		SizeBytes:      rec.SizeBytes,
		Title:          rec.Title,
		Description:    rec.Description,
		Category:       rec.Category,
		BlobLocator:    rec.BlobLocator,
		LedgerReceipt:  rec.LedgerReceipt,
		CurrentOwner:   rec.CurrentOwner,
		PreviousOwners: rec.PreviousOwners,
		RegisteredBy:   rec.RegisteredBy,
		CreatedAt:      rec.CreatedAt.UnixNano(),
		UpdatedAt:      rec.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("ошибка кодирования записи: %w", err)
	}
	if err := tx.Bucket(bucketRecords).Put([]byte(rec.ContentAddress), data); err != nil {
		return fmt.Errorf("ошибка сохранения записи: %w", err)
	}
	return nil
}

func boltFindWithHistory(tx *bbolt.Tx, address string) (*model.ContentRecord, error) {
	rec, err := boltGetRecord(tx, address)
	if err != nil {
		return nil, err
	}
	events, err := boltListEvents(tx, address)
	if err != nil {
		return nil, err
	}
	rec.ApplyHistory(events)
	return rec, nil
}

// boltAppendEvent присваивает событию seq из NextSequence и пишет индексы и счётчики.
func boltAppendEvent(tx *bbolt.Tx, e *model.HistoryEvent) error {
	eb := tx.Bucket(bucketEvents)
	seq, err := eb.NextSequence()
	if err != nil {
		return fmt.Errorf("ошибка получения seq события: %w", err)
	}
	e.Seq = seq
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	data, err := cborEnc.Marshal(boltEvent{
		EventID:          e.EventID,
		Seq:              e.Seq,
		Kind:             string(e.Kind),
		ContentAddress:   e.ContentAddress,
		Timestamp:        e.Timestamp.UnixNano(),
		Actor:            e.Actor,
		From:             e.From,
		To:               e.To,
		Outcome:          e.Outcome,
		LedgerReceipt:    e.LedgerReceipt,
		RequesterContext: e.RequesterContext,
	})
	if err != nil {
		return fmt.Errorf("ошибка кодирования события: %w", err)
	}

	if err := eb.Put(uint64Key(seq), data); err != nil {
		return fmt.Errorf("ошибка сохранения события: %w", err)
	}
	if err := tx.Bucket(bucketEventsByAddress).Put(addressEventKey(e.ContentAddress, seq), nil); err != nil {
		return fmt.Errorf("ошибка записи индекса событий: %w", err)
	}
	if err := incrCounter(tx, counterEvents); err != nil {
		return err
	}
	return incrCounter(tx, eventCounterKey(e.Kind))
}

func boltListEvents(tx *bbolt.Tx, address string) ([]*model.HistoryEvent, error) {
	prefix := []byte(address)
	eb := tx.Bucket(bucketEvents)
	c := tx.Bucket(bucketEventsByAddress).Cursor()

	var events []*model.HistoryEvent
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if len(k) != len(prefix)+8 {
			continue
		}
		data := eb.Get(k[len(prefix):])
		if data == nil {
			return nil, fmt.Errorf("событие %x отсутствует в журнале", k[len(prefix):])
		}
		e, err := decodeEvent(data)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func decodeEvent(data []byte) (*model.HistoryEvent, error) {
	var be boltEvent
	if err := cborDec.Unmarshal(data, &be); err != nil {
		return nil, fmt.Errorf("ошибка декодирования события: %w", err)
	}
	return &model.HistoryEvent{
		EventID:          be.EventID,
		Seq:              be.Seq,
		Kind:             model.EventKind(be.Kind),
		ContentAddress:   be.ContentAddress,
		Timestamp:        time.Unix(0, be.Timestamp).UTC(),
		Actor:            be.Actor,
		From:             be.From,
		To:               be.To,
		Outcome:          be.Outcome,
		LedgerReceipt:    be.LedgerReceipt,
		RequesterContext: be.RequesterContext,
	}, nil
}

// createdKey — ключ индекса created_at: время (BE) + адрес.
func createdKey(rec *model.ContentRecord) []byte {
	k := make([]byte, 8, 8+len(rec.ContentAddress))
	binary.BigEndian.PutUint64(k, uint64(rec.CreatedAt.UnixNano()))
	return append(k, rec.ContentAddress...)
}

func addressEventKey(address string, seq uint64) []byte {
	k := make([]byte, 0, len(address)+8)
	k = append(k, address...)
	return append(k, uint64Key(seq)...)
}

func uint64Key(v uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, v)
	return k
}

func eventCounterKey(kind model.EventKind) []byte {
	return []byte("events:" + string(kind))
}

func readCounter(tx *bbolt.Tx, key []byte) uint64 {
	v := tx.Bucket(bucketCounters).Get(key)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func incrCounter(tx *bbolt.Tx, key []byte) error {
	n := readCounter(tx, key) + 1
	if err := tx.Bucket(bucketCounters).Put(key, uint64Key(n)); err != nil {
		return fmt.Errorf("ошибка обновления счётчика %s: %w", key, err)
	}
	return nil
}
