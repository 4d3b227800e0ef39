package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newIPFSMock эмулирует эндпоинты Kubo API /api/v0/add и /api/v0/cat.
func newIPFSMock(t *testing.T, stored map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v0/add":
			if r.URL.Query().Get("pin") != "true" {
				t.Errorf("ожидался pin=true, получен %q", r.URL.Query().Get("pin"))
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var body string
			for _, files := range r.MultipartForm.File {
				f, _ := files[0].Open()
				b, _ := io.ReadAll(f)
				f.Close()
				body = string(b)
			}
			cid := "QmTestCid" + string(rune('A'+len(stored)))
			stored[cid] = body
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"Name":"`+cid+`","Hash":"`+cid+`","Size":"1"}`)
		case "/api/v0/cat":
			content, ok := stored[r.URL.Query().Get("arg")]
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"Message":"block not found","Code":0,"Type":"error"}`)
				return
			}
			_, _ = io.WriteString(w, content)
		case "/api/v0/version":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"Version":"0.29.0","Commit":"abc"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestIPFSStore_PutGet проверяет добавление и чтение через Kubo API.
func TestIPFSStore_PutGet(t *testing.T) {
	stored := map[string]string{}
	srv := newIPFSMock(t, stored)
	s := NewIPFSStore(srv.URL, 5*time.Second)
	ctx := context.Background()

	cid, err := s.Put(ctx, strings.NewReader("hello ipfs"))
	if err != nil {
		t.Fatalf("ошибка Put: %v", err)
	}
	if !strings.HasPrefix(cid, "QmTestCid") {
		t.Errorf("неожиданный CID %q", cid)
	}
	if stored[cid] != "hello ipfs" {
		t.Errorf("в IPFS записано %q", stored[cid])
	}

	rc, err := s.Get(ctx, cid)
	if err != nil {
		t.Fatalf("ошибка Get: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "hello ipfs" {
		t.Errorf("прочитано %q", got)
	}
}

// TestIPFSStore_Errors проверяет ошибки backend'а.
func TestIPFSStore_Errors(t *testing.T) {
	srv := newIPFSMock(t, map[string]string{})
	s := NewIPFSStore(srv.URL, 5*time.Second)
	ctx := context.Background()

	if _, err := s.Get(ctx, "QmMissing"); err == nil {
		t.Error("ожидалась ошибка для отсутствующего CID")
	}
	if _, err := s.Get(ctx, "fs:"+strings.Repeat("a", 64)); !errors.Is(err, ErrInvalidLocator) {
		t.Errorf("ожидалась ErrInvalidLocator, получена %v", err)
	}

	// Недоступный узел
	down := NewIPFSStore("http://127.0.0.1:1", time.Second)
	if _, err := down.Put(ctx, strings.NewReader("x")); err == nil {
		t.Error("ожидалась ошибка при недоступном IPFS")
	}
}

// TestIPFSStore_CheckReady проверяет readiness через /api/v0/version.
func TestIPFSStore_CheckReady(t *testing.T) {
	srv := newIPFSMock(t, map[string]string{})
	s := NewIPFSStore(srv.URL, 2*time.Second)

	status, msg := s.CheckReady()
	if status != "ok" {
		t.Fatalf("ожидался статус ok, получен %q (%s)", status, msg)
	}
	if !strings.Contains(msg, "0.29.0") {
		t.Errorf("ожидалась версия в сообщении, получено %q", msg)
	}

	srv.Close()
	if status, _ := s.CheckReady(); status != "fail" {
		t.Errorf("ожидался статус fail при недоступном узле, получен %q", status)
	}
}
