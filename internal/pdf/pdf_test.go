package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMerge_Empty(t *testing.T) {
	_, err := Merge(nil)
	require.Error(t, err)
}

func TestMerge_Single(t *testing.T) {
	doc := []byte("%PDF-1.4 single")
	out, err := Merge([][]byte{doc})
	require.NoError(t, err)
	require.Equal(t, doc, out)
}

func TestStampText_ASCIIOnly(t *testing.T) {
	text := stampText(784512)
	require.Contains(t, text, "784512")
	for _, r := range text {
		require.Less(t, r, rune(128), "штамп рисуется базовым Helvetica")
	}
}

func TestSaveDoc(t *testing.T) {
	dir := t.TempDir()
	name, err := SaveDoc(dir, "pek", "info", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(name, "pek_info_"))
	require.True(t, strings.HasSuffix(name, ".pdf"))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))
}

func TestWithRetry_SucceedsOnThird(t *testing.T) {
	calls := 0
	doc, err := WithRetry(5, time.Millisecond, func() ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("документ не готов")
		}
		return []byte("%PDF-1.4"), nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.NotEmpty(t, doc)
}

func TestWithRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := WithRetry(2, time.Millisecond, func() ([]byte, error) {
		calls++
		return nil, errors.New("документ не готов")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}
