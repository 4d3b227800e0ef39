package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

// Metadata — JSON, передаваемый в registerMedia вместе с адресом.
type Metadata struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	UploadedAt  string `json:"uploadedAt"`
	BlobLocator string `json:"blobLocator,omitempty"`
}

// MetadataFor формирует метаданные записи.
func MetadataFor(rec *model.ContentRecord) ([]byte, error) {
	m := Metadata{
		Name:        rec.OriginalName,
		Title:       rec.Title,
		Description: rec.Description,
		MimeType:    rec.MimeType,
		Size:        rec.SizeBytes,
		UploadedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.BlobLocator != nil {
		m.BlobLocator = *rec.BlobLocator
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	return data, nil
}
