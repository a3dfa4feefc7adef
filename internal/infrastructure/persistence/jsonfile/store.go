// Package jsonfile implements the key/user store on top of a single JSON file.
// The dataset is a handful of invitation keys and beta testers, so a flat file
// with atomic replace beats a database here: trivial backup, human-readable,
// survives restarts. All mutations rewrite the whole file via a temp file and
// os.Rename, so a crash mid-write never leaves a half-written store behind.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// The on-disk layout is fixed: two top-level maps, keys addressed by token and
// users addressed by stringified Telegram ID. Existing data files predate this
// implementation, so field names and the stringified-ID convention must not
// change.
// ══════════════════════════════════════════════════════════════════════════════

// document is the full on-disk state.
type document struct {
	Keys  map[string]keyRecord  `json:"keys"`
	Users map[string]userRecord `json:"users"`
}

// keyRecord is the stored form of one access key.
type keyRecord struct {
	CreatedAt           string  `json:"created_at"`
	ActivatedBy         *int64  `json:"activated_by"`
	ActivatedByUsername *string `json:"activated_by_username"`
	ActivatedAt         *string `json:"activated_at"`
}

// userRecord is the stored form of one authorized user.
type userRecord struct {
	UserID      int64   `json:"user_id"`
	Username    *string `json:"username"`
	KeyUsed     string  `json:"key_used"`
	ActivatedAt string  `json:"activated_at"`
}

// newDocument returns an empty store document.
func newDocument() document {
	return document{
		Keys:  make(map[string]keyRecord),
		Users: make(map[string]userRecord),
	}
}

// clone makes a deep copy. Mutations are applied to a copy and committed to
// memory only after the copy reached disk, so a failed write leaves the last
// persisted snapshot intact.
func (d document) clone() document {
	out := document{
		Keys:  make(map[string]keyRecord, len(d.Keys)),
		Users: make(map[string]userRecord, len(d.Users)),
	}
	for k, v := range d.Keys {
		out.Keys[k] = v
	}
	for k, v := range d.Users {
		out.Users[k] = v
	}
	return out
}

// normalize backfills nil maps after unmarshalling a partial file.
func (d *document) normalize() {
	if d.Keys == nil {
		d.Keys = make(map[string]keyRecord)
	}
	if d.Users == nil {
		d.Users = make(map[string]userRecord)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMESTAMPS
// Timestamps are stored as ISO-8601 strings. Files written by earlier versions
// of the bot carry naive local timestamps without a zone suffix, so reading is
// tolerant; writing always produces RFC 3339 UTC.
// ══════════════════════════════════════════════════════════════════════════════

var timestampReadLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a stored timestamp; zero time on unparseable input.
func parseTime(s string) time.Time {
	for _, layout := range timestampReadLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ══════════════════════════════════════════════════════════════════════════════
// FILE IO
// ══════════════════════════════════════════════════════════════════════════════

// loadDocument reads the store file. A missing file is a valid empty store.
func loadDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocument(), nil
		}
		return document{}, fmt.Errorf("read store file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse store file: %w", err)
	}

	doc.normalize()
	return doc, nil
}

// saveDocument atomically replaces the store file with the given document.
// The temp file lives in the same directory so the final rename stays on one
// filesystem and remains atomic.
func saveDocument(path string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace store file: %w", err)
	}

	return nil
}
