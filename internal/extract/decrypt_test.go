package extract

import (
	"bytes"
	"testing"
)

func TestAtob(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SGVsbG8=", "Hello"},
		{"V29ybGQ=", "World"},
		{"", ""},
		{"YQ==", "a"},
		{"YWI=", "ab"},
		{"YWJj", "abc"},
		{"YW\nJj", "abc"},
		{"!!!!", ""},
	}

	for _, tt := range tests {
		got := atob(tt.input)
		if got != tt.want {
			t.Errorf("atob(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReverseString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "olleh"},
		{"", ""},
		{"a", "a"},
		{"ab", "ba"},
	}

	for _, tt := range tests {
		got := reverseString(tt.input)
		if got != tt.want {
			t.Errorf("reverseString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSeedShuffle2IsDeterministicPermutation(t *testing.T) {
	chars := printable()

	first := seedShuffle2(chars, "testkey123")
	second := seedShuffle2(chars, "testkey123")
	if !bytes.Equal(first, second) {
		t.Fatal("seedShuffle2 not deterministic")
	}

	if bytes.Equal(first, seedShuffle2(chars, "differentkey")) {
		t.Error("seedShuffle2 produced identical results for different keys")
	}

	seen := make(map[byte]bool, len(first))
	for _, c := range first {
		seen[c] = true
	}
	if len(seen) != printableCount {
		t.Errorf("shuffle lost characters: %d distinct, want %d", len(seen), printableCount)
	}
	if !bytes.Equal(chars, printable()) {
		t.Error("seedShuffle2 mutated its input")
	}
}

func TestColumnarCipher2(t *testing.T) {
	// Key "ba": column 1 ('a') is filled first, then column 0 ('b').
	got := string(columnarCipher2([]byte("abcd"), "ba"))
	if got != "cadb" {
		t.Errorf("columnarCipher2 = %q, want %q", got, "cadb")
	}

	padded := columnarCipher2([]byte("Hello, World! This is a test."), "secret")
	if len(padded)%len("secret") != 0 {
		t.Errorf("result length %d is not a multiple of the key length", len(padded))
	}

	if string(columnarCipher2([]byte("xyz"), "")) != "xyz" {
		t.Error("empty key should leave input unchanged")
	}
}

func TestKeygen2(t *testing.T) {
	first := keygen2("megakey123", "clientkey456")
	if first != keygen2("megakey123", "clientkey456") {
		t.Error("keygen2 not deterministic")
	}
	if first == "" {
		t.Fatal("keygen2 returned empty string")
	}

	for i, c := range first {
		if c < 32 || c > 126 {
			t.Errorf("keygen2 produced non-printable char at index %d: %d", i, c)
		}
	}

	if keygen2("", "") != "" {
		t.Error("keygen2 with empty keys should return empty")
	}
}

func TestDecryptSrc2EmptyInput(t *testing.T) {
	if got := decryptSrc2("", "key", "megakey"); got != "" {
		t.Errorf("decryptSrc2 with empty input should return empty, got %q", got)
	}
}
