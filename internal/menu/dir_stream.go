package menu

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"menuscrape/internal/extracthtml"
	"menuscrape/internal/records"
)

// StreamFromDir extracts every saved page in dir and streams the records to
// w as a single JSON array.
//
// Files are read in filename order. A page holding item fragments yields one
// record per fragment, any other page is treated as a product page.
// Unreadable or unparseable files, and pages without a name, are skipped.
func (e *Extractor) StreamFromDir(w io.Writer, dir string, enc *json.Encoder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	emit := func(rec records.ProductRecord) error {
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return nil
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}

		full := filepath.Join(dir, ent.Name())
		b, err := os.ReadFile(full)
		if err != nil {
			e.logger.Debug("skipping unreadable file", "file", full, "error", err)
			continue
		}

		doc, err := extracthtml.ParseHTML(string(b))
		if err != nil {
			continue
		}

		if e.mode != ModeLinks {
			if frags, idx := extracthtml.FirstMatching(doc.Selection, e.profile.ItemContainers); idx >= 0 {
				recs, _ := e.extractFragments(frags, e.logger.With("file", ent.Name()))
				for _, rec := range recs {
					if err := emit(rec); err != nil {
						return err
					}
				}
				continue
			}
		}

		rec, err := e.extractRecord(doc.Selection)
		if err != nil {
			e.logger.Debug("skipping page", "file", full, "error", err)
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}
