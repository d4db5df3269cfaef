package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/fulmenhq/bundlepress/pkg/safeio"
)

// Store persists one progress document per (env, cache name) pair. A Store is
// the single writer for its document within a process; running two processes
// against the same pair is unsupported.
type Store struct {
	dir  string
	name string
	env  string

	mu  sync.Mutex
	doc *Document
}

// NewStore returns a store for the document at <dir>/<env>-<name>.
func NewStore(dir, name, env string) *Store {
	return &Store{dir: dir, name: name, env: env}
}

// Path is the backing file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.env+"-"+s.name)
}

type envelope struct {
	Document
	Items map[string]json.RawMessage `json:"items"`
}

// Load reads the document from disk. A missing file yields (nil, nil). A file
// that cannot be decoded as a whole is an error; single item entries that fail
// to decode are dropped with a warning and treated as absent.
func (s *Store) Load() (*Document, error) {
	data, err := safeio.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress document %s: %w", s.Path(), err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("progress document %s is corrupt: %w", s.Path(), err)
	}
	if env.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("progress document %s has schema version %d, newer than supported %d",
			s.Path(), env.SchemaVersion, SchemaVersion)
	}

	doc := env.Document
	doc.SchemaVersion = SchemaVersion
	doc.Items = make(map[string]Record, len(env.Items))
	for key, raw := range env.Items {
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			logger.Warn("dropping unreadable progress entry",
				logger.String("index", key), logger.String("path", s.Path()), logger.Err(err))
			continue
		}
		doc.Items[key] = r
	}
	if doc.Env == "" {
		doc.Env = s.env
	}
	if doc.CacheName == "" {
		doc.CacheName = s.name
	}
	return &doc, nil
}

// Open loads the document, or starts a new one when none exists, and makes it
// the working copy used by Update and View.
func (s *Store) Open() (*Document, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = NewDocument(s.env, s.name)
		logger.Debug("starting new progress document", logger.String("path", s.Path()), logger.String("run_id", doc.RunID))
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return doc, nil
}

// Save atomically replaces the backing file with doc.
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(doc)
}

func (s *Store) save(doc *Document) error {
	if doc == nil {
		return errors.New("cannot save nil progress document")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress document: %w", err)
	}
	if err := safeio.WriteFileAtomic(s.Path(), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to save progress document: %w", err)
	}
	return nil
}

// Update applies fn to the working document and saves it, holding the store
// lock for both steps. Open must have been called.
func (s *Store) Update(fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return errors.New("progress store is not open")
	}
	fn(s.doc)
	return s.save(s.doc)
}

// View runs fn against the working document under the store lock.
func (s *Store) View(fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return errors.New("progress store is not open")
	}
	fn(s.doc)
	return nil
}
