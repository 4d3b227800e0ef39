package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const helloAddress = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestRun_PrintHash проверяет вывод в формате sha256sum.
func TestRun_PrintHash(t *testing.T) {
	path := writeFile(t, "hello world")

	var stdout, stderr bytes.Buffer
	if err := run([]string{path}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}
	if want := helloAddress + "  " + path + "\n"; stdout.String() != want {
		t.Errorf("ожидалось %q, получено %q", want, stdout.String())
	}
}

// TestRun_Errors проверяет отсутствие аргументов и несуществующий файл.
func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(nil, &stdout, &stderr); err == nil {
		t.Error("ожидалась ошибка без аргументов")
	}

	stderr.Reset()
	missing := filepath.Join(t.TempDir(), "missing")
	if err := run([]string{missing}, &stdout, &stderr); err == nil {
		t.Error("ожидалась ошибка для несуществующего файла")
	}
	if !strings.Contains(stderr.String(), missing) {
		t.Errorf("ожидалось имя файла в stderr: %q", stderr.String())
	}
}

// TestRun_Verify проверяет отправку файла в /media/verify.
func TestRun_Verify(t *testing.T) {
	var gotFile, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/media/verify" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(f)
		gotFile = buf.String()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verified":true,"contentAddress":"` + helloAddress +
			`","record":{"currentOwner":"alice"},"ledgerCrossCheck":true,"ledgerNote":""}`))
	}))
	defer srv.Close()

	path := writeFile(t, "hello world")
	var stdout, stderr bytes.Buffer
	err := run([]string{"--verify", "--server", srv.URL + "/", "--token", "tkn", path}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}
	if gotFile != "hello world" {
		t.Errorf("сервер получил %q", gotFile)
	}
	if gotAuth != "Bearer tkn" {
		t.Errorf("ожидался заголовок Bearer tkn, получен %q", gotAuth)
	}
	want := helloAddress + "  " + path + "  verified owner=alice ledger=true\n"
	if stdout.String() != want {
		t.Errorf("ожидалось %q, получено %q", want, stdout.String())
	}
}

// TestRun_VerifyServerError проверяет обработку ошибочного ответа сервера.
func TestRun_VerifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":"STORAGE_UNAVAILABLE"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := writeFile(t, "hello world")
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--verify", "--server", srv.URL, path}, &stdout, &stderr); err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if !strings.Contains(stderr.String(), "503") {
		t.Errorf("ожидался код 503 в stderr: %q", stderr.String())
	}
}
