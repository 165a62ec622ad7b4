// Package loader discovers local files and extracts their text.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned for files whose content cannot be read as text.
var ErrUnsupported = errors.New("unsupported file")

var plainExtensions = map[string]struct{}{
	".txt":  {},
	".text": {},
	".md":   {},
}

// File is a loaded file.
type File struct {
	Path string
	Name string
	Text string
}

// Loader reads text out of files.
type Loader struct{}

func New() *Loader { return &Loader{} }

// Expand resolves glob patterns to a sorted, de-duplicated list of regular files.
// A pattern without matches is kept verbatim so that Load reports it.
func (l *Loader) Expand(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// Load extracts the text of one file. PDFs go through the pdf reader, known
// text extensions are read as-is, anything else must be valid UTF-8.
func (l *Loader) Load(path string) (File, error) {
	f := File{Path: path, Name: filepath.Base(path)}
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".pdf" {
		text, err := readPDF(path)
		if err != nil {
			return f, err
		}
		f.Text = text
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if _, ok := plainExtensions[ext]; !ok && !utf8.Valid(data) {
		return f, fmt.Errorf("%w: %s is not valid UTF-8", ErrUnsupported, path)
	}
	f.Text = string(data)
	return f, nil
}

func readPDF(path string) (string, error) {
	// only content the pdf reader cannot parse is unsupported; a missing or
	// unreadable file is an ordinary error
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	file, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf %s: %w", ErrUnsupported, path, err)
	}
	defer file.Close()

	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text %s: %w", ErrUnsupported, path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf buffer %s: %w", path, err)
	}
	return buf.String(), nil
}
