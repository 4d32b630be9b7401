// Package index persists the slug-to-record-identifier mapping across
// runs, with a tamper-evident signature.
//
// The index is the only durable state the synchronizer keeps. It is
// read once at run start and written once at run end, via a temp file
// and atomic rename so readers never observe a partial write. A stored
// signature that fails verification discards the whole document: the
// synchronizer then rebuilds mappings from live matching rather than
// trusting unverified state.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Version written to new documents.
const Version = 1

// Entry maps one slug to its remote record.
type Entry struct {
	// Issue is the remote record identifier.
	Issue int `json:"issue"`

	// Fingerprint is the item's content fingerprint at the last
	// successful sync, empty if unknown.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Document is the persisted index.
type Document struct {
	Version     int              `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	Repo        string           `json:"repo,omitempty"`
	Entries     map[string]Entry `json:"entries"`
	Signature   string           `json:"signature,omitempty"`
}

// legacyDocument is the retired flat form, still accepted on read.
type legacyDocument struct {
	Mapping map[string]int `json:"mapping"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Version: Version, Entries: make(map[string]Entry)}
}

// Get returns the entry for slug.
func (d *Document) Get(slug string) (Entry, bool) {
	e, ok := d.Entries[slug]
	return e, ok
}

// Set records an entry for slug.
func (d *Document) Set(slug string, e Entry) {
	if d.Entries == nil {
		d.Entries = make(map[string]Entry)
	}
	d.Entries[slug] = e
}

// Prune drops entries whose slug is not in keep, bounding the index by
// the current specification size.
func (d *Document) Prune(keep map[string]struct{}) {
	for slug := range d.Entries {
		if _, ok := keep[slug]; !ok {
			delete(d.Entries, slug)
		}
	}
}

// signature computes the deterministic digest over canonicalized
// entries: slugs in sorted order, fields joined with an unprintable
// delimiter.
func signature(entries map[string]Entry) string {
	slugs := make([]string, 0, len(entries))
	for slug := range entries {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	var sb strings.Builder
	for _, slug := range slugs {
		e := entries[slug]
		fmt.Fprintf(&sb, "%s\x1f%d\x1f%s\n", slug, e.Issue, e.Fingerprint)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Store reads and writes the index document.
type Store struct {
	// Path is the canonical index location.
	Path string

	// Mirror, when non-empty, receives a best-effort copy of every
	// persisted document for tooling that reads elsewhere.
	Mirror string

	logger *log.Logger
}

// NewStore returns a Store for path. mirror may be empty. A nil logger
// defaults to stderr.
func NewStore(path, mirror string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[index] ", log.LstdFlags)
	}
	return &Store{Path: path, Mirror: mirror, logger: logger}
}

// Load reads the index. A missing file yields an empty document. A
// stored signature that does not match the recomputed signature over
// the loaded entries discards the whole document: tampered state is
// never partially trusted. The legacy flat mapping form is accepted
// and upgraded in memory.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Printf("WARNING: index at %s is not valid JSON, starting empty: %v", s.Path, err)
		return NewDocument(), nil
	}

	if len(doc.Entries) == 0 {
		// Maybe the legacy flat form.
		var legacy legacyDocument
		if err := json.Unmarshal(data, &legacy); err == nil && len(legacy.Mapping) > 0 {
			up := NewDocument()
			for slug, id := range legacy.Mapping {
				up.Entries[slug] = Entry{Issue: id}
			}
			s.logger.Printf("upgraded legacy index with %d entries", len(up.Entries))
			return up, nil
		}
	}

	if doc.Signature != "" && doc.Signature != signature(doc.Entries) {
		s.logger.Printf("WARNING: index signature mismatch at %s, discarding %d entries", s.Path, len(doc.Entries))
		return NewDocument(), nil
	}

	if doc.Entries == nil {
		doc.Entries = make(map[string]Entry)
	}
	return &doc, nil
}

// Persist re-signs the document and writes it atomically: temp file in
// the same directory, then rename. The mirror copy is best-effort and
// never fails the persist.
func (s *Store) Persist(doc *Document) error {
	doc.Version = Version
	doc.GeneratedAt = time.Now().UTC()
	doc.Signature = signature(doc.Entries)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	data = append(data, '\n')

	if err := writeAtomic(s.Path, data); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	if s.Mirror != "" {
		if err := writeAtomic(s.Mirror, data); err != nil {
			s.logger.Printf("WARNING: failed to write index mirror %s: %v", s.Mirror, err)
		}
	}
	return nil
}

// Verify recomputes the signature over the stored file's entries and
// reports whether it matches. A missing signature is a failure: only a
// signed document verifies.
func (s *Store) Verify() (bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return false, fmt.Errorf("failed to read index: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to decode index: %w", err)
	}
	return doc.Signature != "" && doc.Signature == signature(doc.Entries), nil
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
