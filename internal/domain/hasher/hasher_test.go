package hasher

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

// TestHash_KnownVector проверяет адрес для "hello-world".
func TestHash_KnownVector(t *testing.T) {
	got, err := Hash([]byte("hello-world"))
	if err != nil {
		t.Fatalf("Hash() вернул ошибку: %v", err)
	}
	want := "afa27b44d43b02a9fea41d13cedc2e4016cfcf87c5dbf990e593669aa8ce286d"
	if got != want {
		t.Errorf("Hash(hello-world) = %s, ожидается %s", got, want)
	}
}

// TestHash_Deterministic проверяет детерминированность на случайных данных.
func TestHash_Deterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		data := make([]byte, 1+i*37)
		if _, err := rand.Read(data); err != nil {
			t.Fatal(err)
		}

		a, err := Hash(data)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := Hash(append([]byte(nil), data...))
		if a != b {
			t.Fatalf("повторный вызов дал другой адрес: %s != %s", a, b)
		}
		if !IsValidAddress(a) {
			t.Fatalf("адрес %q не проходит IsValidAddress", a)
		}

		streamed, n, err := HashReader(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if streamed != a || n != int64(len(data)) {
			t.Errorf("HashReader = (%s, %d), ожидается (%s, %d)", streamed, n, a, len(data))
		}
	}
}

func TestHash_DifferentContent(t *testing.T) {
	a, _ := Hash([]byte("hello-world"))
	b, _ := Hash([]byte("hello-world!"))
	if a == b {
		t.Error("разное содержимое дало одинаковый адрес")
	}
}

func TestHash_Empty(t *testing.T) {
	if _, err := Hash(nil); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("ожидалась ErrEmptyContent, получена %v", err)
	}
	if _, _, err := HashReader(strings.NewReader("")); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("ожидалась ErrEmptyContent, получена %v", err)
	}
}

func TestIsValidAddress(t *testing.T) {
	valid := strings.Repeat("a1", 32)
	tests := []struct {
		in   string
		want bool
	}{
		{valid, true},
		{strings.ToUpper(valid), false},
		{valid[:63], false},
		{valid + "0", false},
		{strings.Repeat("g", 64), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidAddress(tt.in); got != tt.want {
			t.Errorf("IsValidAddress(%q) = %v, ожидается %v", tt.in, got, tt.want)
		}
	}
}
