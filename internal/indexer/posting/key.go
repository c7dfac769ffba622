package posting

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

const hexDigits = "0123456789ABCDEF"

// FoldKey case-folds a token into its storage key. Two spellings that differ
// only in case share one posting file.
func FoldKey(token string) string {
	return strings.ToLower(token)
}

// EscapeKey turns a folded key into a file name. Word runes are kept as they
// are; every other byte, '%' included, becomes %XX. The mapping is
// injective, so UnescapeKey recovers the key exactly.
func EscapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); {
		r, size := utf8.DecodeRuneInString(key[i:])
		if r != utf8.RuneError && tokenizer.IsWordRune(r) {
			b.WriteString(key[i : i+size])
			i += size
			continue
		}
		for j := 0; j < size; j++ {
			c := key[i+j]
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
		i += size
	}
	return b.String()
}

// UnescapeKey reverses EscapeKey.
func UnescapeKey(name string) (string, error) {
	if !strings.Contains(name, "%") {
		return name, nil
	}
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		if name[i] != '%' {
			b.WriteByte(name[i])
			continue
		}
		if i+2 >= len(name) {
			return "", fmt.Errorf("%w: truncated escape in %q", apperrors.ErrInvalidKey, name)
		}
		v, err := strconv.ParseUint(name[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("%w: bad escape in %q", apperrors.ErrInvalidKey, name)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}
