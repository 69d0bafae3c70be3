// Package store persists review records as one JSON file per review,
// partitioned on disk by an encoded project path with a global fallback
// namespace for legacy un-partitioned records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/roasbeef/planloop/internal/review"
)

// projectsDir is the subdirectory of the data root that holds the
// per-project partitions. Legacy global records live directly in the
// data root.
const projectsDir = "projects"

// EncodeProjectPath turns a project path into a filesystem-safe
// directory key: the leading slash is stripped and every `/` and `:` is
// replaced by `_`. The encoding is one-way; the original path is kept
// inside the record itself.
func EncodeProjectPath(projectPath string) string {
	trimmed := strings.TrimPrefix(projectPath, "/")
	replacer := strings.NewReplacer("/", "_", ":", "_")
	return replacer.Replace(trimmed)
}

// FileStore is the file-backed implementation of review.Store. Writes
// are atomic (temp file plus rename) and serialized per target
// directory.
type FileStore struct {
	dataRoot string
	log      *slog.Logger

	// dirLocks serializes writes into one partition directory.
	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex
}

// Compile-time check that FileStore satisfies the engine's contract.
var _ review.Store = (*FileStore)(nil)

// NewFileStore creates a file store rooted at dataRoot, creating the
// directory when missing.
func NewFileStore(dataRoot string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, &review.StoreError{Op: "init", Err: err}
	}

	return &FileStore{
		dataRoot: dataRoot,
		log:      log.With("subsys", "store"),
		dirLocks: make(map[string]*sync.Mutex),
	}, nil
}

// dirFor returns the partition directory of one project path. The empty
// path maps to the legacy global namespace, the data root itself.
func (s *FileStore) dirFor(projectPath string) string {
	if projectPath == "" {
		return s.dataRoot
	}
	return filepath.Join(
		s.dataRoot, projectsDir, EncodeProjectPath(projectPath),
	)
}

func (s *FileStore) lockFor(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.dirLocks[dir]
	if !ok {
		l = &sync.Mutex{}
		s.dirLocks[dir] = l
	}
	return l
}

// Save atomically persists the review into its project partition. The
// record is written to a temp file in the same directory and renamed
// into place, so readers never observe a torn write.
func (s *FileStore) Save(_ context.Context, r *review.Review) error {
	dir := s.dirFor(r.ProjectPath)

	lock := s.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &review.StoreError{Op: "save", Err: err}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return &review.StoreError{Op: "save", Err: err}
	}

	target := filepath.Join(dir, r.ID+".json")

	tmp, err := os.CreateTemp(dir, r.ID+".*.tmp")
	if err != nil {
		return &review.StoreError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = os.Rename(tmpName, target)
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return &review.StoreError{Op: "save", Err: writeErr}
	}

	s.log.Debug("review saved",
		"review_id", r.ID,
		"status", r.Status,
		"path", target)

	return nil
}

// Load fetches a review by ID. Search order: the explicit project
// partition when given, then the global namespace, then a scan of all
// project partitions. A miss surfaces as review.ErrReviewNotFound.
func (s *FileStore) Load(_ context.Context, id,
	projectPath string,
) (*review.Review, error) {

	if projectPath != "" {
		r, err := s.readRecord(filepath.Join(
			s.dirFor(projectPath), id+".json",
		))
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, review.ErrReviewNotFound) {
			return nil, err
		}
	}

	r, err := s.readRecord(filepath.Join(s.dataRoot, id+".json"))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, review.ErrReviewNotFound) {
		return nil, err
	}

	// Fall back to scanning every project partition.
	partitions, err := s.partitionDirs()
	if err != nil {
		return nil, err
	}
	for _, dir := range partitions {
		r, err := s.readRecord(filepath.Join(dir, id+".json"))
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, review.ErrReviewNotFound) {
			return nil, err
		}
	}

	return nil, review.ErrReviewNotFound
}

// ListPending enumerates the non-terminal reviews of one project
// partition, most recently modified first.
func (s *FileStore) ListPending(ctx context.Context,
	projectPath string,
) ([]*review.Review, error) {

	records, err := s.listDir(s.dirFor(projectPath))
	if err != nil {
		return nil, err
	}

	pending := make([]*review.Review, 0, len(records))
	for _, rec := range records {
		if !rec.review.Status.IsTerminal() {
			pending = append(pending, rec.review)
		}
	}
	return pending, nil
}

// Latest returns the most recently modified review of one project
// partition regardless of status.
func (s *FileStore) Latest(ctx context.Context,
	projectPath string,
) (*review.Review, error) {

	records, err := s.listDir(s.dirFor(projectPath))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, review.ErrReviewNotFound
	}
	return records[0].review, nil
}

// record pairs a loaded review with its file modification time for
// sorting.
type record struct {
	review  *review.Review
	modTime int64
}

// listDir loads every record in one directory sorted by modification
// time descending. Unreadable or malformed files are skipped with a
// warning so one corrupt record cannot poison a listing.
func (s *FileStore) listDir(dir string) ([]record, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &review.StoreError{Op: "list", Err: err}
	}

	var records []record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		r, err := s.readRecord(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.log.Warn("skipping unreadable record",
				"path", filepath.Join(dir, entry.Name()),
				"err", err)
			continue
		}

		records = append(records, record{
			review:  r,
			modTime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].modTime > records[j].modTime
	})

	return records, nil
}

// readRecord loads and decodes one review file. Unknown extra fields in
// the JSON are tolerated for forward compatibility.
func (s *FileStore) readRecord(path string) (*review.Review, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, review.ErrReviewNotFound
	}
	if err != nil {
		return nil, &review.StoreError{Op: "load", Err: err}
	}

	var r review.Review
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &review.StoreError{
			Op:  "load",
			Err: fmt.Errorf("decode %s: %w", filepath.Base(path), err),
		}
	}
	return &r, nil
}

// partitionDirs lists the project partition directories under the data
// root.
func (s *FileStore) partitionDirs() ([]string, error) {
	base := filepath.Join(s.dataRoot, projectsDir)

	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &review.StoreError{Op: "scan", Err: err}
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(base, entry.Name()))
		}
	}
	return dirs, nil
}
