// Package baseline persists the issues of a run so the next run can report
// what was added and what was resolved since.
package baseline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/715d/callaudit/pkg/issue"
)

// ErrNoBaseline is returned by Load when the project has no saved run.
var ErrNoBaseline = errors.New("no baseline saved for project")

// Key schema:
//
//	baseline:{projectHash}:meta                → JSON(Meta)
//	baseline:{projectHash}:issue:{fingerprint} → JSON(issue.Record)
const (
	keyPrefix         = "baseline:"
	keySuffixMeta     = ":meta"
	keyInfixIssue     = ":issue:"
	defaultDirName    = ".callaudit"
	projectHashLength = 16
)

// Meta describes a saved run.
type Meta struct {
	RunID       string `json:"run_id"`
	ProjectRoot string `json:"project_root"`
	SavedAt     int64  `json:"saved_at_milli"`
	Issues      int    `json:"issues"`
	// Authoritative is false when the saved report came from a cancelled
	// or failed run.
	Authoritative bool `json:"authoritative"`
}

// Store keeps one baseline per project root.
type Store struct {
	db *badger.DB
}

// DefaultDir returns the baseline directory of a project.
func DefaultDir(root string) string {
	return filepath.Join(root, defaultDirName, "baseline")
}

// Open opens or creates the store at dir. An empty dir keeps the store in
// memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening baseline store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an open database. The caller keeps ownership of db.
func NewStore(db *badger.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("badger db must not be nil")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ProjectHash returns the key prefix used for root.
func ProjectHash(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:projectHashLength]
}

// Save replaces the baseline of root with the issues of report. Call trees
// are not stored.
func (s *Store) Save(ctx context.Context, root string, report *issue.Report) (*Meta, error) {
	if report == nil {
		return nil, errors.New("report must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ProjectHash(root)
	issues := report.All()
	meta := &Meta{
		RunID:         report.RunID(),
		ProjectRoot:   root,
		SavedAt:       time.Now().UnixMilli(),
		Issues:        len(issues),
		Authoritative: report.Authoritative(),
	}

	if err := s.db.DropPrefix([]byte(keyPrefix + hash + ":")); err != nil {
		return nil, fmt.Errorf("clearing previous baseline: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, i := range issues {
		rec := i.Record()
		rec.CallTree = nil
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshaling issue %s: %w", rec.Fingerprint, err)
		}
		if err := wb.Set(issueKey(hash, rec.Fingerprint), data); err != nil {
			return nil, fmt.Errorf("storing issue %s: %w", rec.Fingerprint, err)
		}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := wb.Set([]byte(keyPrefix+hash+keySuffixMeta), metaJSON); err != nil {
		return nil, fmt.Errorf("storing metadata: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("writing baseline to badger: %w", err)
	}

	slog.Debug("baseline saved", "project_root", root, "issues", meta.Issues, "run_id", meta.RunID)
	return meta, nil
}

// Load returns the saved records of root keyed by fingerprint.
func (s *Store) Load(ctx context.Context, root string) (map[string]issue.Record, *Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	hash := ProjectHash(root)
	records := make(map[string]issue.Record)
	var meta Meta

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + hash + keySuffixMeta))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoBaseline
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("decoding metadata: %w", err)
		}

		prefix := []byte(keyPrefix + hash + keyInfixIssue)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.Valid(); it.Next() {
			item := it.Item()
			var rec issue.Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				slog.Warn("skipping corrupt baseline record", "key", string(item.Key()), "error", err)
				continue
			}
			records[rec.Fingerprint] = rec
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoBaseline) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("reading baseline: %w", err)
	}
	return records, &meta, nil
}

func issueKey(hash, fingerprint string) []byte {
	return []byte(keyPrefix + hash + keyInfixIssue + fingerprint)
}

// Diff compares a report with a baseline.
type Diff struct {
	Added     []*issue.Issue
	Unchanged []*issue.Issue
	// Resolved are baseline records with no matching issue, sorted by
	// location.
	Resolved []issue.Record
}

// Compare splits the issues of report into added and unchanged by
// fingerprint. Categories the report did not analyze, or did not finish, are
// left out of Resolved, so a partial run does not resolve issues it never
// looked at.
func Compare(baseline map[string]issue.Record, report *issue.Report) Diff {
	var d Diff
	seen := make(map[string]bool)
	for _, i := range report.All() {
		fp := i.Fingerprint()
		seen[fp] = true
		if _, ok := baseline[fp]; ok {
			d.Unchanged = append(d.Unchanged, i)
		} else {
			d.Added = append(d.Added, i)
		}
	}

	for fp, rec := range baseline {
		if seen[fp] || !report.HasCategory(rec.Category) || !report.Complete(rec.Category) {
			continue
		}
		d.Resolved = append(d.Resolved, rec)
	}
	slices.SortFunc(d.Resolved, func(a, b issue.Record) int {
		if c := strings.Compare(a.Location.String(), b.Location.String()); c != 0 {
			return c
		}
		return strings.Compare(a.Fingerprint, b.Fingerprint)
	})
	return d
}
