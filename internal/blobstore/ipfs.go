// ipfs.go — blob-хранилище на IPFS через HTTP API Kubo.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSStore — хранилище в IPFS. Локатор — CID.
type IPFSStore struct {
	sh *shell.Shell
}

// Compile-time проверка интерфейса.
var _ Store = (*IPFSStore)(nil)

// NewIPFSStore создаёт клиент Kubo API (например, http://localhost:5001).
// timeout ограничивает каждый HTTP-запрос к IPFS.
func NewIPFSStore(apiURL string, timeout time.Duration) *IPFSStore {
	sh := shell.NewShell(strings.TrimSuffix(apiURL, "/"))
	sh.SetTimeout(timeout)
	return &IPFSStore{sh: sh}
}

func (s *IPFSStore) Name() string { return "ipfs" }

// Put добавляет содержимое с закреплением (pin) и возвращает CID.
func (s *IPFSStore) Put(ctx context.Context, r io.Reader) (string, error) {
	type result struct {
		cid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		cid, err := s.sh.Add(r, shell.Pin(true))
		done <- result{cid: cid, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("ошибка добавления в IPFS: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("ошибка добавления в IPFS: %w", res.err)
		}
		return res.cid, nil
	}
}

// Get открывает содержимое по CID.
func (s *IPFSStore) Get(ctx context.Context, locator string) (io.ReadCloser, error) {
	if locator == "" || strings.HasPrefix(locator, fsLocatorPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := s.sh.Cat(locator)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из IPFS %s: %w", locator, err)
	}
	return rc, nil
}

// CheckReady запрашивает версию узла Kubo.
func (s *IPFSStore) CheckReady() (status string, message string) {
	version, _, err := s.sh.Version()
	if err != nil {
		return "fail", fmt.Sprintf("IPFS недоступен: %v", err)
	}
	return "ok", "Kubo " + version
}
