package validation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/puygroup/pila-console/internal/pila"
)

// Batch is one submitted set of planilla files together with its merged
// results. File contents stay in memory so the export endpoints can
// re-send the exact bytes the operator validated.
type Batch struct {
	ID        string
	CreatedAt time.Time
	Files     []pila.File
	Records   map[string]pila.ValidationRecord

	// v2 flow extras.
	ExtractIDs     []int64
	MissingUsers   []pila.MissingUser
	TotalAcreditar float64
	TotalRezagos   float64
}

// NewBatch assigns an ID and timestamp to a submitted batch.
func NewBatch(files []pila.File, now time.Time) *Batch {
	return &Batch{ID: uuid.NewString(), CreatedAt: now, Files: files}
}

// FilterPlanillas drops anything that is not a .txt planilla file, the way
// the upload widget does.
func FilterPlanillas(files []pila.File) []pila.File {
	out := files[:0]
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f.Name), ".txt") {
			out = append(out, f)
		}
	}
	return out
}

// Store keeps the current batch per session. A new submission replaces the
// previous batch wholesale; results are never persisted beyond memory.
type Store struct {
	mu      sync.Mutex
	batches map[string]*Batch
}

// NewStore returns an empty batch store.
func NewStore() *Store {
	return &Store{batches: make(map[string]*Batch)}
}

// Replace installs the batch as the session's current one, discarding any
// previous batch and its results.
func (s *Store) Replace(sessionID string, batch *Batch) {
	s.mu.Lock()
	s.batches[sessionID] = batch
	s.mu.Unlock()
}

// Get returns the session's current batch, or nil.
func (s *Store) Get(sessionID string) *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[sessionID]
}

// Record returns one record of the session's current batch by filename.
func (s *Store) Record(sessionID, filename string) (pila.ValidationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.batches[sessionID]
	if batch == nil {
		return pila.ValidationRecord{}, false
	}
	rec, ok := batch.Records[filename]
	return rec, ok
}

// Drop forgets the session's batch.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	delete(s.batches, sessionID)
	s.mu.Unlock()
}
