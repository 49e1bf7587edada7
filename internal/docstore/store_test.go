package docstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	require.Equal(t, "report_final_.txt", SanitizeFilename("report final!.txt"))
	require.Equal(t, "upload", SanitizeFilename(""))
	require.Equal(t, "upload", SanitizeFilename("...."))
	require.Equal(t, "evil.txt", SanitizeFilename(`..\..\evil.txt`))
}

func TestSaveAndExtract(t *testing.T) {
	store := New(t.TempDir(), 1<<20)

	stored, clean, err := store.SaveBidFile(7, "proposal.txt", strings.NewReader("we have experience"))
	require.NoError(t, err)
	require.Equal(t, "proposal.txt", clean)
	require.Contains(t, stored, filepath.Join("bids", "7"))

	require.Equal(t, "we have experience", ExtractText(stored))
}

func TestSaveRejectsOversize(t *testing.T) {
	store := New(t.TempDir(), 10)

	stored, _, err := store.SaveRFQFile(1, "big.txt", strings.NewReader(strings.Repeat("x", 11)))
	require.Error(t, err)
	require.Empty(t, stored)
}

func TestSaveUniquifiesSameName(t *testing.T) {
	store := New(t.TempDir(), 1<<20)

	a, _, err := store.SaveRFQFile(1, "spec.txt", strings.NewReader("one"))
	require.NoError(t, err)
	b, _, err := store.SaveRFQFile(1, "spec.txt", strings.NewReader("two"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, "one", ExtractText(a))
	require.Equal(t, "two", ExtractText(b))
}

func TestExtractTextSkipsBinaryFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 ..."), 0o644))
	require.Equal(t, "", ExtractText(path))

	require.Equal(t, "", ExtractText(filepath.Join(dir, "missing.txt")))
}

func TestTextFromBytes(t *testing.T) {
	require.Equal(t, "hello", TextFromBytes("notes.md", []byte("hello")))
	require.Equal(t, "", TextFromBytes("image.png", []byte{0x89, 0x50}))

	big := make([]byte, extractCap+100)
	for i := range big {
		big[i] = 'a'
	}
	require.Len(t, TextFromBytes("big.txt", big), extractCap)
}
