// Package docstore keeps uploaded documents under a per-entity directory
// keyed by RFQ or bid identifier, with sanitized filenames.
package docstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// extractCap bounds how much text a single document contributes.
const extractCap = 20000

// Store writes and reads uploaded documents below a root directory.
type Store struct {
	root    string
	maxSize int64
}

// New creates a document store rooted at dir.
func New(dir string, maxSize int64) *Store {
	return &Store{root: dir, maxSize: maxSize}
}

// SaveRFQFile stores a document for an RFQ and returns its path on disk and
// the sanitized display name.
func (s *Store) SaveRFQFile(rfqID int, filename string, r io.Reader) (string, string, error) {
	return s.save(filepath.Join("rfqs", fmt.Sprint(rfqID)), filename, r)
}

// SaveBidFile stores a document for a bid.
func (s *Store) SaveBidFile(bidID int, filename string, r io.Reader) (string, string, error) {
	return s.save(filepath.Join("bids", fmt.Sprint(bidID)), filename, r)
}

func (s *Store) save(subdir, filename string, r io.Reader) (string, string, error) {
	clean := SanitizeFilename(filename)
	dir := filepath.Join(s.root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", eris.Wrap(err, "docstore: create dir")
	}

	// uuid prefix keeps same-named uploads from clobbering each other
	stored := filepath.Join(dir, uuid.NewString()+"_"+clean)
	f, err := os.Create(stored)
	if err != nil {
		return "", "", eris.Wrap(err, "docstore: create file")
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		os.Remove(stored)
		return "", "", eris.Wrap(err, "docstore: write file")
	}
	if n > s.maxSize {
		os.Remove(stored)
		return "", "", eris.Errorf("docstore: file exceeds %d bytes", s.maxSize)
	}
	return stored, clean, nil
}

// SanitizeFilename strips any path component and characters outside a safe
// set. Empty results become "upload".
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "upload"
	}
	return out
}

// TextFromBytes returns the text content of an in-memory upload, under the
// same format rules and cap as ExtractText.
func TextFromBytes(filename string, data []byte) string {
	if !textExtensions[strings.ToLower(filepath.Ext(filename))] {
		return ""
	}
	if len(data) > extractCap {
		data = data[:extractCap]
	}
	return string(data)
}

// textExtensions are the formats read directly for evaluation input.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true, ".log": true,
}

// ExtractText returns the document's text content, best-effort. Unreadable
// or binary formats yield "" — extraction never fails the caller.
func ExtractText(path string) string {
	if !textExtensions[strings.ToLower(filepath.Ext(path))] {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, extractCap))
	if err != nil {
		return ""
	}
	return string(raw)
}
