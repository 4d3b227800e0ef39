// media.go — обработчики /media: загрузка, верификация, чтение, передача владения, скачивание.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/content-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/content-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/content-registry/internal/service"
)

const (
	// multipartOverhead — запас на заголовки multipart и текстовые поля формы.
	multipartOverhead = 1 << 20
	// multipartMemory — объём формы, хранимый в памяти; остальное во временных файлах.
	multipartMemory = 32 << 20
	// maxTransferBody — лимит тела запроса передачи владения.
	maxTransferBody = 64 << 10
)

// errPayloadTooLarge — загружаемый файл превышает лимит.
var errPayloadTooLarge = errors.New("превышен лимит размера загрузки")

// uploadedFile — прочитанный из формы файл.
type uploadedFile struct {
	content  []byte
	filename string
	mimeType string
}

// readUploadedFile разбирает multipart форму и читает поле file целиком.
// Лимит проверяется до хэширования: по размеру тела, заголовку части и фактически прочитанным байтам.
func (h *APIHandler) readUploadedFile(w http.ResponseWriter, r *http.Request) (*uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isMaxBytesError(err) {
			return nil, errPayloadTooLarge
		}
		return nil, fmt.Errorf("%w: ошибка разбора multipart: %v", service.ErrInvalidInput, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: поле 'file' обязательно", service.ErrInvalidInput)
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		return nil, errPayloadTooLarge
	}

	content, err := readLimited(file, h.maxUploadSize)
	if err != nil {
		return nil, err
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &uploadedFile{
		content:  content,
		filename: header.Filename,
		mimeType: mimeType,
	}, nil
}

// readLimited читает не более limit байт; больше — errPayloadTooLarge.
func readLimited(file multipart.File, limit int64) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, errPayloadTooLarge
	}
	return content, nil
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// writeUploadError отображает ошибки чтения формы.
func (h *APIHandler) writeUploadError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер файла превышает лимит %d байт", h.maxUploadSize))
		return
	}
	h.writeServiceError(w, op, err)
}

// cleanupMultipart удаляет временные файлы формы.
func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// UploadMedia — POST /media/upload.
// 201 — создана новая запись, 200 — содержимое уже зарегистрировано.
func (h *APIHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	defer cleanupMultipart(r)

	upload, err := h.readUploadedFile(w, r)
	if err != nil {
		h.writeUploadError(w, "Ошибка чтения загрузки", err)
		return
	}

	result, err := h.svc.Registration.Register(r.Context(), service.RegisterParams{
		Content:      upload.content,
		OriginalName: upload.filename,
		MimeType:     upload.mimeType,
		Title:        strings.TrimSpace(r.FormValue("title")),
		Description:  strings.TrimSpace(r.FormValue("description")),
		Requester:    middleware.SubjectFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, "Ошибка регистрации содержимого", err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, registrationResponse{
		Record:           toRecordDetailResponse(result.Record),
		Created:          result.Created,
		Duplicate:        result.Duplicate,
		BlobStored:       result.BlobStored,
		LedgerRegistered: result.LedgerRegistered,
	})
}

// VerifyMedia — POST /media/verify.
func (h *APIHandler) VerifyMedia(w http.ResponseWriter, r *http.Request) {
	defer cleanupMultipart(r)

	upload, err := h.readUploadedFile(w, r)
	if err != nil {
		h.writeUploadError(w, "Ошибка чтения файла верификации", err)
		return
	}

	result, err := h.svc.Verification.Verify(r.Context(), service.VerifyParams{
		Content:          upload.content,
		Requester:        middleware.SubjectFromContext(r.Context()),
		RequesterContext: requesterContext(r),
	})
	if err != nil {
		h.writeServiceError(w, "Ошибка верификации", err)
		return
	}

	resp := verificationResponse{
		Verified:         result.Verified,
		ContentAddress:   result.ContentAddress,
		LedgerCrossCheck: result.LedgerCrossCheck,
		LedgerNote:       result.LedgerNote,
	}
	if result.Record != nil {
		rec := toRecordDetailResponse(result.Record)
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMedia — GET /media?page&limit.
func (h *APIHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	var page, limit *int
	if err := runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &page); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр page")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр limit")
		return
	}

	result, err := h.svc.Records.List(r.Context(), derefInt(page), derefInt(limit))
	if err != nil {
		h.writeServiceError(w, "Ошибка получения списка записей", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordPageResponse(result))
}

// GetMedia — GET /media/{contentAddress}.
func (h *APIHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Records.Get(r.Context(), contentAddressParam(r))
	if err != nil {
		h.writeServiceError(w, "Ошибка получения записи", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDetailResponse(rec))
}

// TransferMedia — POST /media/{contentAddress}/transfer.
func (h *APIHandler) TransferMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTransferBody)

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	rec, err := h.svc.Ownership.Transfer(r.Context(), contentAddressParam(r), service.TransferParams{
		From:  req.From,
		To:    req.To,
		Proof: req.Proof,
	})
	if err != nil {
		h.writeServiceError(w, "Ошибка передачи владения", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDetailResponse(rec))
}

// DownloadMedia — GET /media/{contentAddress}/download.
// Отдаёт байты из blob-хранилища потоком и фиксирует событие скачивания.
func (h *APIHandler) DownloadMedia(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Download.Download(r.Context(), contentAddressParam(r),
		middleware.SubjectFromContext(r.Context()), requesterContext(r))
	if err != nil {
		h.writeServiceError(w, "Ошибка скачивания", err)
		return
	}
	defer result.Content.Close()

	rec := result.Record
	contentType := rec.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.Header().Set("X-Content-Address", rec.ContentAddress)
	if rec.OriginalName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": rec.OriginalName,
		}))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, result.Content); err != nil {
		h.logger.Warn("Ошибка передачи содержимого клиенту",
			slog.String("content_address", rec.ContentAddress),
			slog.String("error", err.Error()),
		)
	}
}

// contentAddressParam — path-параметр в нижнем регистре.
func contentAddressParam(r *http.Request) string {
	return strings.ToLower(chi.URLParam(r, "contentAddress"))
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
