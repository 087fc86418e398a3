// Package corpus reads and writes the menu corpus file: a UTF-8 JSON array
// of product records, indented by two spaces, with non-ASCII text written
// as-is.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"menuscrape/internal/records"
)

// PersistError reports a failed Save. The corpus in memory is unaffected and
// the previous file, if any, is left in place.
type PersistError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Encode writes c to w as an indented JSON array followed by a newline.
// A nil corpus is written as [].
func Encode(w io.Writer, c records.Corpus) error {
	if c == nil {
		c = records.Corpus{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}
	return nil
}

// Decode reads a corpus JSON array from r. Missing fields decode to "".
func Decode(r io.Reader) (records.Corpus, error) {
	var c records.Corpus
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	if c == nil {
		c = records.Corpus{}
	}
	return c, nil
}

// Load reads the corpus file at path.
func Load(path string) (records.Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path atomically: the data goes to a temp file in the same
// directory, which is then renamed over path. Any failure is a *PersistError.
func Save(path string, c records.Corpus) error {
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		return &PersistError{Path: path, Op: "encode", Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".corpus-*")
	if err != nil {
		return &PersistError{Path: path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()

	_, writeErr := io.Copy(tmp, &buf)
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return &PersistError{Path: path, Op: "write", Err: writeErr}
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return &PersistError{Path: path, Op: "close", Err: closeErr}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return &PersistError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &PersistError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// Exists reports whether a corpus file is present at path.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
