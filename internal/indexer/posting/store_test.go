package posting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func TestOpenCreatesRootIdempotently(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	_, err := Open(root)
	require.NoError(t, err)
	_, err = Open(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetMissingKeyIsEmpty(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	got, err := s.Get("nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetOnMissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "never-built"))
	got, err := s.Get("apple")
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := s.Keys()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddThenGet(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Add("apple", "/src/a.txt"))
	require.NoError(t, s.Add("apple", "/src/b.txt"))
	require.NoError(t, s.Add("banana", "/src/a.txt"))

	got, err := s.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, set("/src/a.txt", "/src/b.txt"), got)

	n, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKeyIsCaseFolded(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, s.Add("Apple", "/src/upper.txt"))
	require.NoError(t, s.Add("apple", "/src/lower.txt"))

	got, err := s.Get("APPLE")
	require.NoError(t, err)
	assert.Equal(t, set("/src/upper.txt", "/src/lower.txt"), got)

	_, err = os.Stat(filepath.Join(root, "apple"))
	assert.NoError(t, err, "posting file is named by the folded token")
}

func TestDuplicateLinesCollapseOnRead(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add("apple", "/src/a.txt"))
	}
	raw, err := os.ReadFile(filepath.Join(root, "apple"))
	require.NoError(t, err)
	assert.Equal(t, "/src/a.txt\n/src/a.txt\n/src/a.txt\n", string(raw), "postings are append-only")

	got, err := s.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, set("/src/a.txt"), got)
}

func TestAddRejectsNewlineInPath(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	err = s.Add("apple", "/src/evil\n/etc/passwd")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPostingWrite, apperrors.KindOf(err))
	assert.False(t, apperrors.IsFatal(err))
}

func TestAddFailureIsRecoverable(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	// A directory where the posting file should be makes the open fail.
	require.NoError(t, os.Mkdir(filepath.Join(root, "apple"), 0o755))

	err = s.Add("apple", "/src/a.txt")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPostingWrite, apperrors.KindOf(err))
	assert.False(t, apperrors.IsFatal(err))

	require.NoError(t, s.Add("banana", "/src/a.txt"), "other keys keep working")
}

func TestOverlongKeyIsWriteWarningAndEmptyRead(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	token := strings.Repeat("a", 300)

	err = s.Add(token, "/src/a.txt")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPostingWrite, apperrors.KindOf(err))
	assert.False(t, apperrors.IsFatal(err))

	got, err := s.Get(token)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetReadErrorIsFatal(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(root, "apple"), 0o755))

	_, err = s.Get("apple")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPostingRead, apperrors.KindOf(err))
	assert.True(t, apperrors.IsFatal(err))
}

func TestKeysCountsOnlyRegularFiles(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, s.Add("apple", "/a"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0o755))

	n, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnsafeTokensStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	for _, token := range []string{"../escape", "a/b", ".", "..", "100%", "CON"} {
		path, err := s.KeyPath(token)
		require.NoError(t, err)
		assert.Equal(t, root, filepath.Dir(path), "token %q", token)
		require.NoError(t, s.Add(token, "/doc"))
	}

	tokens, err := s.Tokens()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"../escape", "a/b", ".", "..", "100%", "con"}, tokens)
}

func TestEmptyKeyIsRejected(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.KeyPath("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
}

func TestConcurrentAppendsToSameKey(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	const writers, perWriter = 10, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, s.Add("common", fmt.Sprintf("/src/w%d/doc%d.txt", w, i)))
			}
		}(w)
	}
	wg.Wait()

	raw, err := os.ReadFile(filepath.Join(root, "common"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	assert.Len(t, lines, writers*perWriter, "every append is a complete line")

	got, err := s.Get("common")
	require.NoError(t, err)
	assert.Len(t, got, writers*perWriter)
}

func TestEscapeKeyRoundTrip(t *testing.T) {
	tests := []struct {
		key     string
		escaped string
	}{
		{"apple", "apple"},
		{"baz_qux", "baz_qux"},
		{"straße", "straße"},
		{"a/b", "a%2Fb"},
		{"..", "%2E%2E"},
		{"100%", "100%25"},
		{"", ""},
		{"\xff", "%FF"},
	}
	for _, tt := range tests {
		t.Run(tt.escaped, func(t *testing.T) {
			assert.Equal(t, tt.escaped, EscapeKey(tt.key))
			back, err := UnescapeKey(tt.escaped)
			require.NoError(t, err)
			assert.Equal(t, tt.key, back)
		})
	}
}

func TestUnescapeKeyRejectsMalformed(t *testing.T) {
	for _, name := range []string{"abc%", "abc%4", "abc%zz"} {
		_, err := UnescapeKey(name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidKey, name)
	}
}

func BenchmarkAdd(b *testing.B) {
	s, err := Open(b.TempDir())
	require.NoError(b, err)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Add(fmt.Sprintf("term%d", i%100), "/bench/doc.txt"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGet(b *testing.B) {
	s, err := Open(b.TempDir())
	require.NoError(b, err)
	for i := 0; i < 1000; i++ {
		require.NoError(b, s.Add("search", fmt.Sprintf("/bench/doc-%d.txt", i)))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Get("search"); err != nil {
			b.Fatal(err)
		}
	}
}
