// Пакет repository — Content Store: хранение записей о содержимом
// и журнала событий истории.
// Два backend'а: PostgreSQL (чистый SQL через pgx, без ORM) и bbolt (встраиваемый файл).
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrOwnershipConflict — from не совпадает с текущим владельцем.
	ErrOwnershipConflict = errors.New("конфликт владения: from не совпадает с текущим владельцем")
)

// ContentRepository — интерфейс Content Store.
// Все мутации одной записи атомарны; записи не удаляются.
type ContentRepository interface {
	// FindByAddress возвращает запись с историями или ErrNotFound.
	FindByAddress(ctx context.Context, address string) (*model.ContentRecord, error)
	// CreateIfAbsent создаёт запись и событие mint в одной транзакции.
	// Если запись уже существует — возвращает её и created=false.
	CreateIfAbsent(ctx context.Context, rec *model.ContentRecord) (record *model.ContentRecord, created bool, err error)
	// AttachBlobLocator сохраняет локатор blob-хранилища.
	AttachBlobLocator(ctx context.Context, address, locator string) error
	// AttachLedgerReceipt сохраняет квитанцию внешнего реестра.
	AttachLedgerReceipt(ctx context.Context, address, receipt string) error
	// AppendVerification добавляет событие верификации.
	AppendVerification(ctx context.Context, address string, entry model.VerificationEntry) error
	// AppendDownload добавляет событие скачивания.
	AppendDownload(ctx context.Context, address string, entry model.DownloadEntry) error
	// RecordTransfer выполняет compare-and-swap владельца (from == currentOwner),
	// добавляет старого владельца в previousOwners и событие transfer.
	// При несовпадении — ErrOwnershipConflict без изменений.
	RecordTransfer(ctx context.Context, address string, entry model.TransferEntry) (*model.ContentRecord, error)
	// ListAll возвращает страницу записей (createdAt desc) без историй и общее количество.
	ListAll(ctx context.Context, limit, offset int) ([]*model.ContentRecord, int, error)
	// ListWithoutLedgerReceipt возвращает самые старые записи без квитанции реестра.
	ListWithoutLedgerReceipt(ctx context.Context, limit int) ([]*model.ContentRecord, error)
	// ListEvents возвращает события записи в порядке добавления.
	ListEvents(ctx context.Context, address string) ([]*model.HistoryEvent, error)
	// RecentEvents возвращает последние limit событий по всем записям (новые первыми).
	RecentEvents(ctx context.Context, limit int) ([]*model.HistoryEvent, error)
	// CountContent возвращает количество записей.
	CountContent(ctx context.Context) (int, error)
	// CountEvents возвращает количество событий вида kind; пустой kind — все события.
	CountEvents(ctx context.Context, kind model.EventKind) (int, error)
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner — источник транзакций (*pgxpool.Pool).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool TxBeginner
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается, при успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isForeignKeyViolation проверяет нарушение внешнего ключа (событие без записи).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
