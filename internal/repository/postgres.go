// postgres.go — реализация ContentRepository на PostgreSQL.
// Идемпотентность регистрации — первичный ключ content_address + ON CONFLICT DO NOTHING.
// Передача владения — compare-and-swap через UPDATE ... WHERE current_owner = $from.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

// recordColumns — список столбцов content_records для SELECT/RETURNING.
const recordColumns = `content_address, original_name, mime_type, size_bytes, title, description,
	category, blob_locator, ledger_receipt, current_owner, previous_owners, registered_by,
	created_at, updated_at`

// eventColumns — список столбцов content_events.
const eventColumns = `seq, event_id::text, content_address, kind, occurred_at, actor,
	from_owner, to_owner, outcome, ledger_receipt, requester_context`

// pgContentRepo — реализация ContentRepository через pgx.
type pgContentRepo struct {
	db DBTX
	tx *TxRunner
}

// NewPostgresContentRepository создаёт Content Store на PostgreSQL.
func NewPostgresContentRepository(pool *pgxpool.Pool) ContentRepository {
	return &pgContentRepo{db: pool, tx: NewTxRunner(pool)}
}

// FindByAddress возвращает запись с историями или ErrNotFound.
func (r *pgContentRepo) FindByAddress(ctx context.Context, address string) (*model.ContentRecord, error) {
	return findWithHistory(ctx, r.db, address)
}

// CreateIfAbsent вставляет запись; при конфликте по ключу перечитывает существующую.
// INSERT ... ON CONFLICT ожидает завершения конкурирующей транзакции,
// поэтому проигравший видит запись победителя.
func (r *pgContentRepo) CreateIfAbsent(ctx context.Context, rec *model.ContentRecord) (*model.ContentRecord, bool, error) {
	var (
		result  *model.ContentRecord
		created bool
	)

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.CurrentOwner == "" {
		rec.CurrentOwner = model.UnattributedOwner
	}
	if rec.PreviousOwners == nil {
		rec.PreviousOwners = []string{}
	}

	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			INSERT INTO content_records (
				content_address, original_name, mime_type, size_bytes, title, description,
				category, blob_locator, ledger_receipt, current_owner, previous_owners,
				registered_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
			ON CONFLICT (content_address) DO NOTHING
			RETURNING %s`, recordColumns)

		inserted, err := scanRecord(tx.QueryRow(ctx, query,
			rec.ContentAddress, rec.OriginalName, rec.MimeType, rec.SizeBytes, rec.Title, rec.Description,
			rec.Category, rec.BlobLocator, rec.LedgerReceipt, rec.CurrentOwner, rec.PreviousOwners,
			rec.RegisteredBy, rec.CreatedAt,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			existing, findErr := findWithHistory(ctx, tx, rec.ContentAddress)
			if findErr != nil {
				return findErr
			}
			result = existing
			return nil
		}
		if err != nil {
			return fmt.Errorf("ошибка создания записи: %w", err)
		}

		mint := &model.HistoryEvent{
			Kind:           model.EventMint,
			ContentAddress: inserted.ContentAddress,
			Timestamp:      inserted.CreatedAt,
			Actor:          inserted.RegisteredBy,
			To:             inserted.CurrentOwner,
		}
		if err := insertEvent(ctx, tx, mint); err != nil {
			return err
		}

		result = inserted
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// AttachBlobLocator сохраняет локатор blob-хранилища.
func (r *pgContentRepo) AttachBlobLocator(ctx context.Context, address, locator string) error {
	return r.attach(ctx, "blob_locator", address, locator)
}

// AttachLedgerReceipt сохраняет квитанцию внешнего реестра.
func (r *pgContentRepo) AttachLedgerReceipt(ctx context.Context, address, receipt string) error {
	return r.attach(ctx, "ledger_receipt", address, receipt)
}

// attach обновляет одно из опциональных полей. column — только из whitelist выше.
func (r *pgContentRepo) attach(ctx context.Context, column, address, value string) error {
	query := fmt.Sprintf(`
		UPDATE content_records
		SET %s = $2, updated_at = $3
		WHERE content_address = $1`, column)

	tag, err := r.db.Exec(ctx, query, address, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка обновления %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendVerification добавляет событие верификации.
func (r *pgContentRepo) AppendVerification(ctx context.Context, address string, entry model.VerificationEntry) error {
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
func (r *pgContentRepo) AppendDownload(ctx context.Context, address string, entry model.DownloadEntry) error {
	return r.appendEvent(ctx, &model.HistoryEvent{
		Kind:             model.EventDownload,
		ContentAddress:   address,
		Timestamp:        entry.Timestamp,
		Actor:            entry.DownloadedBy,
		RequesterContext: entry.RequesterContext,
	})
}

// appendEvent блокирует строку записи (UPDATE updated_at) и добавляет событие.
// Блокировка строки сериализует добавления в пределах одной записи.
func (r *pgContentRepo) appendEvent(ctx context.Context, e *model.HistoryEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE content_records SET updated_at = $2 WHERE content_address = $1`,
			e.ContentAddress, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("ошибка блокировки записи: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertEvent(ctx, tx, e)
	})
}

// RecordTransfer — CAS владельца и событие transfer в одной транзакции.
func (r *pgContentRepo) RecordTransfer(ctx context.Context, address string, entry model.TransferEntry) (*model.ContentRecord, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var result *model.ContentRecord
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		// В SET current_owner справа — значение до обновления.
		query := fmt.Sprintf(`
			UPDATE content_records
			SET current_owner = $3,
			    previous_owners = array_append(previous_owners, current_owner),
			    updated_at = $4
			WHERE content_address = $1 AND current_owner = $2
			RETURNING %s`, recordColumns)

		_, err := scanRecord(tx.QueryRow(ctx, query, address, entry.From, entry.To, entry.Timestamp))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM content_records WHERE content_address = $1)`, address,
			).Scan(&exists); err != nil {
				return fmt.Errorf("ошибка проверки существования записи: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrOwnershipConflict
		}
		if err != nil {
			return fmt.Errorf("ошибка передачи владения: %w", err)
		}

		if err := insertEvent(ctx, tx, &model.HistoryEvent{
			Kind:           model.EventTransfer,
			ContentAddress: address,
			Timestamp:      entry.Timestamp,
			From:           entry.From,
			To:             entry.To,
			LedgerReceipt:  entry.LedgerReceipt,
		}); err != nil {
			return err
		}

		result, err = findWithHistory(ctx, tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAll возвращает страницу записей, новые первыми.
func (r *pgContentRepo) ListAll(ctx context.Context, limit, offset int) ([]*model.ContentRecord, int, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_records
		ORDER BY created_at DESC, content_address
		LIMIT $1 OFFSET $2`, recordColumns)

	records, err := queryRecords(ctx, r.db, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.CountContent(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListWithoutLedgerReceipt возвращает самые старые записи без квитанции реестра.
func (r *pgContentRepo) ListWithoutLedgerReceipt(ctx context.Context, limit int) ([]*model.ContentRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_records
		WHERE ledger_receipt IS NULL
		ORDER BY created_at ASC
		LIMIT $1`, recordColumns)

	return queryRecords(ctx, r.db, query, limit)
}

// ListEvents возвращает события записи в порядке добавления.
func (r *pgContentRepo) ListEvents(ctx context.Context, address string) ([]*model.HistoryEvent, error) {
	return listEvents(ctx, r.db, address)
}

// RecentEvents возвращает последние события по всем записям.
func (r *pgContentRepo) RecentEvents(ctx context.Context, limit int) ([]*model.HistoryEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_events
		ORDER BY occurred_at DESC, seq DESC
		LIMIT $1`, eventColumns)

	return queryEvents(ctx, r.db, query, limit)
}

// CountContent возвращает количество записей.
func (r *pgContentRepo) CountContent(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_records`).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return total, nil
}

// CountEvents возвращает количество событий вида kind (пустой kind — все).
func (r *pgContentRepo) CountEvents(ctx context.Context, kind model.EventKind) (int, error) {
	var (
		total int
		err   error
	)
	if kind == "" {
		err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_events`).Scan(&total)
	} else {
		err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_events WHERE kind = $1`, string(kind)).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта событий: %w", err)
	}
	return total, nil
}

// --- Вспомогательные функции ---

// findWithHistory читает запись и раскладывает её события по историям.
func findWithHistory(ctx context.Context, db DBTX, address string) (*model.ContentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_records WHERE content_address = $1`, recordColumns)

	rec, err := scanRecord(db.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}

	events, err := listEvents(ctx, db, address)
	if err != nil {
		return nil, err
	}
	rec.ApplyHistory(events)
	return rec, nil
}

// listEvents возвращает события одной записи по возрастанию seq.
func listEvents(ctx context.Context, db DBTX, address string) ([]*model.HistoryEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_events
		WHERE content_address = $1
		ORDER BY seq ASC`, eventColumns)

	return queryEvents(ctx, db, query, address)
}

// insertEvent добавляет событие и заполняет EventID и Seq.
func insertEvent(ctx context.Context, db DBTX, e *model.HistoryEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	query := `
		INSERT INTO content_events (
			event_id, content_address, kind, occurred_at, actor,
			from_owner, to_owner, outcome, ledger_receipt, requester_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq`

	var seq int64
	err := db.QueryRow(ctx, query,
		e.EventID, e.ContentAddress, string(e.Kind), e.Timestamp, e.Actor,
		e.From, e.To, e.Outcome, e.LedgerReceipt, e.RequesterContext,
	).Scan(&seq)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка добавления события %s: %w", e.Kind, err)
	}
	e.Seq = uint64(seq)
	return nil
}

// scanRecord сканирует одну строку content_records.
func scanRecord(row pgx.Row) (*model.ContentRecord, error) {
	rec := &model.ContentRecord{}
	err := row.Scan(
		&rec.ContentAddress, &rec.OriginalName, &rec.MimeType, &rec.SizeBytes, &rec.Title, &rec.Description,
		&rec.Category, &rec.BlobLocator, &rec.LedgerReceipt, &rec.CurrentOwner, &rec.PreviousOwners,
		&rec.RegisteredBy, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// queryRecords выполняет SELECT по content_records.
func queryRecords(ctx context.Context, db DBTX, query string, args ...any) ([]*model.ContentRecord, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей: %w", err)
	}
	defer rows.Close()

	var result []*model.ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// queryEvents выполняет SELECT по content_events.
func queryEvents(ctx context.Context, db DBTX, query string, args ...any) ([]*model.HistoryEvent, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки событий: %w", err)
	}
	defer rows.Close()

	var result []*model.HistoryEvent
	for rows.Next() {
		e := &model.HistoryEvent{}
		var (
			kind string
			seq  int64
		)
		if err := rows.Scan(
			&seq, &e.EventID, &e.ContentAddress, &kind, &e.Timestamp, &e.Actor,
			&e.From, &e.To, &e.Outcome, &e.LedgerReceipt, &e.RequesterContext,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.Seq = uint64(seq)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации событий: %w", err)
	}
	return result, nil
}
