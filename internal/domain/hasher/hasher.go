// Пакет hasher — вычисление content address (hex SHA-256).
// Адрес зависит только от байтов: имя файла и MIME-тип не учитываются.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// AddressLength — длина content address в hex-символах.
const AddressLength = sha256.Size * 2

// ErrEmptyContent — пустое содержимое не регистрируется и не верифицируется.
var ErrEmptyContent = errors.New("пустое содержимое")

// Hash возвращает content address для data.
func Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashReader вычисляет content address потоково.
// Возвращает адрес и количество прочитанных байт.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("ошибка чтения содержимого: %w", err)
	}
	if n == 0 {
		return "", 0, ErrEmptyContent
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// IsValidAddress проверяет формат content address: 64 символа [0-9a-f].
func IsValidAddress(address string) bool {
	if len(address) != AddressLength {
		return false
	}
	for i := 0; i < len(address); i++ {
		c := address[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
