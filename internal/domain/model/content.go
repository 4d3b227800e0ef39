// Пакет model — доменные модели Content Registry.
// ContentRecord — запись о зарегистрированном содержимом (одна на content address).
package model

import (
	"strings"
	"time"
)

// UnattributedOwner — владелец записи по умолчанию до первой передачи.
const UnattributedOwner = "unattributed"

// AnonymousIdentity — идентичность запросившего без аутентификации.
const AnonymousIdentity = "anonymous"

// VerificationOutcomeVerified — результат успешной верификации.
const VerificationOutcomeVerified = "verified"

// Категории содержимого, вычисляемые из MIME-типа.
const (
	CategoryImage    = "image"
	CategoryVideo    = "video"
	CategoryAudio    = "audio"
	CategoryDocument = "document"
	CategoryOther    = "other"
)

// ContentRecord — запись о содержимом, адресуемом SHA-256.
type ContentRecord struct {
	// ContentAddress — hex SHA-256, первичный ключ
	ContentAddress string
	OriginalName   string
	MimeType       string
	SizeBytes      int64
	Title          string
	Description    string
	Category       string
	// BlobLocator — CID в IPFS или локатор локального хранилища; nil если не сохранено
	BlobLocator *string
	// LedgerReceipt — хэш транзакции в Ethereum; nil если не зарегистрировано
	LedgerReceipt  *string
	CurrentOwner   string
	PreviousOwners []string
	RegisteredBy   string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Истории заполняются только при чтении одной записи.
	TransferHistory     []TransferEntry
	VerificationHistory []VerificationEntry
	DownloadHistory     []DownloadEntry
}

// TransferEntry — запись о передаче владения.
type TransferEntry struct {
	From          string
	To            string
	Timestamp     time.Time
	LedgerReceipt *string
}

// VerificationEntry — запись о верификации.
type VerificationEntry struct {
	VerifiedBy       string
	Timestamp        time.Time
	Outcome          string
	RequesterContext *string
}

// DownloadEntry — запись о скачивании.
type DownloadEntry struct {
	DownloadedBy     string
	Timestamp        time.Time
	RequesterContext *string
}

// Clone возвращает глубокую копию записи (для кэша).
func (r *ContentRecord) Clone() *ContentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.BlobLocator = cloneString(r.BlobLocator)
	c.LedgerReceipt = cloneString(r.LedgerReceipt)
	c.PreviousOwners = append([]string(nil), r.PreviousOwners...)
	c.TransferHistory = append([]TransferEntry(nil), r.TransferHistory...)
	c.VerificationHistory = append([]VerificationEntry(nil), r.VerificationHistory...)
	c.DownloadHistory = append([]DownloadEntry(nil), r.DownloadHistory...)
	return &c
}

// CategoryFromMimeType определяет категорию содержимого по MIME-типу.
func CategoryFromMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio
	case mt == "application/pdf",
		strings.HasPrefix(mt, "text/"),
		strings.Contains(mt, "msword"),
		strings.Contains(mt, "officedocument"):
		return CategoryDocument
	default:
		return CategoryOther
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
