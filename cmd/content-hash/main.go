// content-hash — утилита для вычисления content address файлов.
//
// По умолчанию печатает адрес и путь для каждого файла (формат sha256sum).
// С --verify отправляет каждый файл в POST /media/verify Content Registry
// и печатает результат проверки.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/hasher"
)

// options — параметры командной строки.
type options struct {
	verify  bool
	server  string
	token   string
	timeout time.Duration
}

// verifyResult — поля ответа /media/verify, нужные утилите.
type verifyResult struct {
	Verified         bool   `json:"verified"`
	ContentAddress   string `json:"contentAddress"`
	LedgerCrossCheck *bool  `json:"ledgerCrossCheck"`
	LedgerNote       string `json:"ledgerNote"`
	Record           *struct {
		CurrentOwner string `json:"currentOwner"`
	} `json:"record"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ошибка: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("content-hash", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&opts.verify, "verify", false, "проверить файлы через POST /media/verify")
	flagSet.StringVar(&opts.server, "server", "http://localhost:8040", "базовый URL Content Registry")
	flagSet.StringVar(&opts.token, "token", "", "Bearer токен (по умолчанию из CR_TOKEN)")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "таймаут одного запроса")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Использование: content-hash [--verify --server URL] FILE...\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	files := flagSet.Args()
	if len(files) == 0 {
		flagSet.Usage()
		return errors.New("не указаны файлы")
	}
	if opts.token == "" {
		opts.token = os.Getenv("CR_TOKEN")
	}

	client := &http.Client{Timeout: opts.timeout}
	failed := 0
	for _, path := range files {
		var err error
		if opts.verify {
			err = verifyFile(context.Background(), client, opts, path, stdout)
		} else {
			err = printHash(path, stdout)
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("не обработано файлов: %d из %d", failed, len(files))
	}
	return nil
}

// printHash печатает "<address>  <path>".
func printHash(path string, stdout io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	address, _, err := hasher.HashReader(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s  %s\n", address, path)
	return nil
}

// verifyFile отправляет файл в /media/verify и печатает результат.
func verifyFile(ctx context.Context, client *http.Client, opts options, path string, stdout io.Writer) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := strings.TrimRight(opts.server, "/") + "/media/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса к %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("сервер вернул %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result verifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("ошибка разбора ответа: %w", err)
	}

	status := "unknown"
	if result.Verified {
		status = "verified"
		if result.Record != nil {
			status += " owner=" + result.Record.CurrentOwner
		}
	}
	if result.LedgerCrossCheck != nil {
		status += fmt.Sprintf(" ledger=%t", *result.LedgerCrossCheck)
	}
	fmt.Fprintf(stdout, "%s  %s  %s\n", result.ContentAddress, path, status)
	return nil
}
