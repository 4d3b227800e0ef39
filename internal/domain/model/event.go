// event.go — события истории (mint, transfer, verify, download).
// Подсписки истории ContentRecord являются проекциями журнала событий.
package model

import "time"

// EventKind — тип события истории.
type EventKind string

const (
	EventMint     EventKind = "mint"
	EventTransfer EventKind = "transfer"
	EventVerify   EventKind = "verify"
	EventDownload EventKind = "download"
)

// Valid проверяет, что тип события известен.
func (k EventKind) Valid() bool {
	switch k {
	case EventMint, EventTransfer, EventVerify, EventDownload:
		return true
	}
	return false
}

// HistoryEvent — событие журнала. Набор заполненных полей зависит от Kind:
//   - mint: Actor (кто зарегистрировал), To (начальный владелец)
//   - transfer: From, To, LedgerReceipt
//   - verify: Actor, Outcome, RequesterContext
//   - download: Actor, RequesterContext
type HistoryEvent struct {
	EventID        string
	Seq            uint64
	Kind           EventKind
	ContentAddress string
	Timestamp      time.Time

	Actor            string
	From             string
	To               string
	Outcome          string
	LedgerReceipt    *string
	RequesterContext *string
}

// Transfer возвращает проекцию события как TransferEntry.
func (e *HistoryEvent) Transfer() TransferEntry {
	return TransferEntry{
		From:          e.From,
		To:            e.To,
		Timestamp:     e.Timestamp,
		LedgerReceipt: e.LedgerReceipt,
	}
}

// Verification возвращает проекцию события как VerificationEntry.
func (e *HistoryEvent) Verification() VerificationEntry {
	return VerificationEntry{
		VerifiedBy:       e.Actor,
		Timestamp:        e.Timestamp,
		Outcome:          e.Outcome,
		RequesterContext: e.RequesterContext,
	}
}

// Download возвращает проекцию события как DownloadEntry.
func (e *HistoryEvent) Download() DownloadEntry {
	return DownloadEntry{
		DownloadedBy:     e.Actor,
		Timestamp:        e.Timestamp,
		RequesterContext: e.RequesterContext,
	}
}

// ApplyHistory раскладывает события записи по подспискам истории.
// events должны быть упорядочены по возрастанию Seq.
func (r *ContentRecord) ApplyHistory(events []*HistoryEvent) {
	r.TransferHistory = nil
	r.VerificationHistory = nil
	r.DownloadHistory = nil
	for _, e := range events {
		switch e.Kind {
		case EventTransfer:
			r.TransferHistory = append(r.TransferHistory, e.Transfer())
		case EventVerify:
			r.VerificationHistory = append(r.VerificationHistory, e.Verification())
		case EventDownload:
			r.DownloadHistory = append(r.DownloadHistory, e.Download())
		}
	}
}
