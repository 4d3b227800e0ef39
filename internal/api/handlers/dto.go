// dto.go — API-представления доменных моделей и их конвертация.
package handlers

import (
	"time"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/content-registry/internal/service"
)

type transferEntryResponse struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Timestamp     time.Time `json:"timestamp"`
	LedgerReceipt *string   `json:"ledgerReceipt,omitempty"`
}

type verificationEntryResponse struct {
	VerifiedBy       string    `json:"verifiedBy"`
	Timestamp        time.Time `json:"timestamp"`
	Outcome          string    `json:"outcome"`
	RequesterContext *string   `json:"requesterContext,omitempty"`
}

type downloadEntryResponse struct {
	DownloadedBy     string    `json:"downloadedBy"`
	Timestamp        time.Time `json:"timestamp"`
	RequesterContext *string   `json:"requesterContext,omitempty"`
}

// recordResponse — запись без историй (элемент списка).
type recordResponse struct {
	ContentAddress string    `json:"contentAddress"`
	OriginalName   string    `json:"originalName"`
	MimeType       string    `json:"mimeType"`
	SizeBytes      int64     `json:"sizeBytes"`
	Title          string    `json:"title,omitempty"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category"`
	BlobLocator    *string   `json:"blobLocator,omitempty"`
	LedgerReceipt  *string   `json:"ledgerReceipt,omitempty"`
	CurrentOwner   string    `json:"currentOwner"`
	PreviousOwners []string  `json:"previousOwners"`
	RegisteredBy   string    `json:"registeredBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// recordDetailResponse — запись с историями.
type recordDetailResponse struct {
	recordResponse
	TransferHistory     []transferEntryResponse     `json:"transferHistory"`
	VerificationHistory []verificationEntryResponse `json:"verificationHistory"`
	DownloadHistory     []downloadEntryResponse     `json:"downloadHistory"`
}

type paginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type recordPageResponse struct {
	Items      []recordResponse   `json:"items"`
	Pagination paginationResponse `json:"pagination"`
}

type registrationResponse struct {
	Record           recordDetailResponse `json:"record"`
	Created          bool                 `json:"created"`
	Duplicate        bool                 `json:"duplicate"`
	BlobStored       bool                 `json:"blobStored"`
	LedgerRegistered bool                 `json:"ledgerRegistered"`
}

// verificationResponse — ledgerCrossCheck сериализуется как null, если проверка не выполнялась.
type verificationResponse struct {
	Verified         bool                  `json:"verified"`
	ContentAddress   string                `json:"contentAddress"`
	Record           *recordDetailResponse `json:"record,omitempty"`
	LedgerCrossCheck *bool                 `json:"ledgerCrossCheck"`
	LedgerNote       string                `json:"ledgerNote"`
}

type transferRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Proof string `json:"proof,omitempty"`
}

type historyEventResponse struct {
	EventID          string    `json:"eventId"`
	Kind             string    `json:"kind"`
	ContentAddress   string    `json:"contentAddress"`
	Timestamp        time.Time `json:"timestamp"`
	Actor            string    `json:"actor,omitempty"`
	From             string    `json:"from,omitempty"`
	To               string    `json:"to,omitempty"`
	Outcome          string    `json:"outcome,omitempty"`
	LedgerReceipt    *string   `json:"ledgerReceipt,omitempty"`
	RequesterContext *string   `json:"requesterContext,omitempty"`
}

type recordSummaryResponse struct {
	ContentAddress string    `json:"contentAddress"`
	OriginalName   string    `json:"originalName"`
	MimeType       string    `json:"mimeType"`
	SizeBytes      int64     `json:"sizeBytes"`
	CurrentOwner   string    `json:"currentOwner"`
	CreatedAt      time.Time `json:"createdAt"`
}

type recordHistoryResponse struct {
	Record              recordSummaryResponse       `json:"record"`
	TransferHistory     []transferEntryResponse     `json:"transferHistory"`
	VerificationHistory []verificationEntryResponse `json:"verificationHistory"`
	DownloadHistory     []downloadEntryResponse     `json:"downloadHistory"`
	MergedTimeline      []historyEventResponse      `json:"mergedTimeline"`
}

type activityResponse struct {
	Items []historyEventResponse `json:"items"`
}

type statsResponse struct {
	TotalContent       int `json:"totalContent"`
	TotalVerifications int `json:"totalVerifications"`
	TotalTransfers     int `json:"totalTransfers"`
	TotalDownloads     int `json:"totalDownloads"`
	TotalActivities    int `json:"totalActivities"`
}

// --- Конвертация ---

func toRecordResponse(rec *model.ContentRecord) recordResponse {
	previous := rec.PreviousOwners
	if previous == nil {
		previous = []string{}
	}
	return recordResponse{
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
		PreviousOwners: previous,
		RegisteredBy:   rec.RegisteredBy,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
	}
}

func toRecordDetailResponse(rec *model.ContentRecord) recordDetailResponse {
	return recordDetailResponse{
		recordResponse:      toRecordResponse(rec),
		TransferHistory:     toTransferEntries(rec.TransferHistory),
		VerificationHistory: toVerificationEntries(rec.VerificationHistory),
		DownloadHistory:     toDownloadEntries(rec.DownloadHistory),
	}
}

func toTransferEntries(entries []model.TransferEntry) []transferEntryResponse {
	out := make([]transferEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, transferEntryResponse{
			From:          e.From,
			To:            e.To,
			Timestamp:     e.Timestamp.UTC(),
			LedgerReceipt: e.LedgerReceipt,
		})
	}
	return out
}

func toVerificationEntries(entries []model.VerificationEntry) []verificationEntryResponse {
	out := make([]verificationEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, verificationEntryResponse{
			VerifiedBy:       e.VerifiedBy,
			Timestamp:        e.Timestamp.UTC(),
			Outcome:          e.Outcome,
			RequesterContext: e.RequesterContext,
		})
	}
	return out
}

func toDownloadEntries(entries []model.DownloadEntry) []downloadEntryResponse {
	out := make([]downloadEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, downloadEntryResponse{
			DownloadedBy:     e.DownloadedBy,
			Timestamp:        e.Timestamp.UTC(),
			RequesterContext: e.RequesterContext,
		})
	}
	return out
}

func toHistoryEvents(events []*model.HistoryEvent) []historyEventResponse {
	out := make([]historyEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, historyEventResponse{
			EventID:          e.EventID,
			Kind:             string(e.Kind),
			ContentAddress:   e.ContentAddress,
			Timestamp:        e.Timestamp.UTC(),
			Actor:            e.Actor,
			From:             e.From,
			To:               e.To,
			Outcome:          e.Outcome,
			LedgerReceipt:    e.LedgerReceipt,
			RequesterContext: e.RequesterContext,
		})
	}
	return out
}

func toRecordPageResponse(page *service.RecordPage) recordPageResponse {
	items := make([]recordResponse, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, toRecordResponse(rec))
	}
	return recordPageResponse{
		Items: items,
		Pagination: paginationResponse{
			Page:  page.Pagination.Page,
			Limit: page.Pagination.Limit,
			Total: page.Pagination.Total,
			Pages: page.Pagination.Pages,
		},
	}
}

func toRecordHistoryResponse(h *service.RecordHistory) recordHistoryResponse {
	return recordHistoryResponse{
		Record: recordSummaryResponse{
			ContentAddress: h.Record.ContentAddress,
			OriginalName:   h.Record.OriginalName,
			MimeType:       h.Record.MimeType,
			SizeBytes:      h.Record.SizeBytes,
			CurrentOwner:   h.Record.CurrentOwner,
			CreatedAt:      h.Record.CreatedAt.UTC(),
		},
		TransferHistory:     toTransferEntries(h.TransferHistory),
		VerificationHistory: toVerificationEntries(h.VerificationHistory),
		DownloadHistory:     toDownloadEntries(h.DownloadHistory),
		MergedTimeline:      toHistoryEvents(h.MergedTimeline),
	}
}
