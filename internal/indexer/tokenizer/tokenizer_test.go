package tokenizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"hyphen and underscore", "foo-bar baz_qux", []string{"bar", "baz_qux", "foo"}},
		{"empty", "", []string{}},
		{"only separators", " \t\n--!!", []string{}},
		{"duplicates collapse", "apple apple Apple", []string{"Apple", "apple"}},
		{"leading and trailing separators", "...hello, world!\n", []string{"hello", "world"}},
		{"digits are word characters", "v2 2024-10-19", []string{"10", "19", "2024", "v2"}},
		{"unicode letters", "naïve café Straße", []string{"Straße", "café", "naïve"}},
		{"combining mark stays in token", "cafe\u0301 ok", []string{"cafe\u0301", "ok"}},
		{"path separators split", "src/main.go", []string{"go", "main", "src"}},
		{"letter numbers", "chapter \u216b", []string{"chapter", "\u216b"}},
		{"joiners stay in token", "a\u200db c", []string{"a\u200db", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sorted(Tokenize(tt.text)))
		})
	}
}

func TestTokenizeKeepsCase(t *testing.T) {
	tokens := Tokenize("Apple")
	_, ok := tokens["Apple"]
	assert.True(t, ok, "token text must not be lower-cased")
	_, ok = tokens["apple"]
	assert.False(t, ok)
}

func TestIsWordRune(t *testing.T) {
	for _, r := range "aZ09_é\u216b\u200c\u200d" {
		assert.True(t, IsWordRune(r), "%q", r)
	}
	for _, r := range " -./%\t" {
		assert.False(t, IsWordRune(r), "%q", r)
	}
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"long": strings.Repeat(`func (s *Store) Add(token, docPath string) error {
		path, err := s.KeyPath(token)
		if err != nil { return err } // posting_store append
	}
	`, 50),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	base := "distributed search analytics platform indexing "
	for _, size := range []int{10, 100, 1000, 10000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}
