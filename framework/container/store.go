package container

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// DuplicatePolicy controls what Add does when a (type, name) slot is taken.
type DuplicatePolicy int

const (
	// DuplicateWarn replaces the previous record and logs a warning
	// (last writer wins).
	DuplicateWarn DuplicatePolicy = iota
	// DuplicateFail rejects the second registration with a
	// *DuplicateDependencyError.
	DuplicateFail
)

// ParseDuplicatePolicy maps "warn" / "fail" to a policy. Anything else is
// DuplicateWarn.
func ParseDuplicatePolicy(s string) DuplicatePolicy {
	if s == "fail" {
		return DuplicateFail
	}
	return DuplicateWarn
}

// bucket holds every record declared under one type key.
type bucket struct {
	unnamed *DepRecord
	named   map[string]*DepRecord
	order   []*DepRecord
}

func (b *bucket) slot(name string) *DepRecord {
	if name == "" {
		return b.unnamed
	}
	return b.named[name]
}

func (b *bucket) put(rec *DepRecord) {
	if rec.Name == "" {
		b.unnamed = rec
	} else {
		b.named[rec.Name] = rec
	}
	b.order = append(b.order, rec)
}

func (b *bucket) remove(rec *DepRecord) bool {
	for i, r := range b.order {
		if r == rec {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			if rec.Name == "" {
				if b.unnamed == rec {
					b.unnamed = nil
				}
			} else if b.named[rec.Name] == rec {
				delete(b.named, rec.Name)
			}
			return true
		}
	}
	return false
}

type bucketKey struct {
	key     string
	forward bool
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Name identifies the owning scope in log lines.
	Name       string
	Duplicates DuplicatePolicy
	Logger     *zap.Logger
}

// Store holds resolved instances indexed by declared type and, within a
// type, by optional name. All mutations and reads go through one mutex.
type Store struct {
	mu      sync.Mutex
	typed   map[string]*bucket
	forward map[string]*bucket
	keys    []bucketKey
	changed chan struct{}

	name       string
	duplicates DuplicatePolicy
	logger     *zap.Logger
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	l := cfg.Logger
	if l == nil {
		l = Logger()
	}
	return &Store{
		typed:      make(map[string]*bucket),
		forward:    make(map[string]*bucket),
		changed:    make(chan struct{}),
		name:       cfg.Name,
		duplicates: cfg.Duplicates,
		logger:     l,
	}
}

// ── Writes ────────────────────────────────────────────────────────────────────

// Add registers rec. A second record for the same (type, name) replaces the
// first under DuplicateWarn and is rejected under DuplicateFail. Adding the
// very same record twice is a no-op.
func (s *Store) Add(rec *DepRecord) error {
	_, err := s.add(rec, false)
	return err
}

// addShared adds a record owned by another scope. It never replaces a record
// already in the slot and reports whether rec was stored.
func (s *Store) addShared(rec *DepRecord) bool {
	ok, _ := s.add(rec, true)
	return ok
}

func (s *Store) add(rec *DepRecord, keepExisting bool) (bool, error) {
	s.mu.Lock()
	b := s.bucketFor(rec)
	prev := b.slot(rec.Name)
	if prev == rec {
		s.mu.Unlock()
		return false, nil
	}
	if prev != nil {
		if keepExisting {
			s.mu.Unlock()
			s.logger.Debug("shared dependency shadowed by local registration",
				zap.String("scope", s.name),
				zap.Stringer("kept", prev),
				zap.Stringer("skipped", rec))
			return false, nil
		}
		if s.duplicates == DuplicateFail {
			s.mu.Unlock()
			return false, &DuplicateDependencyError{
				Key: rec.Key(), Name: rec.Name, Existing: prev.Symbol, Incoming: rec.Symbol,
			}
		}
		b.remove(prev)
	}
	b.put(rec)
	s.signalLocked()
	s.mu.Unlock()

	if prev != nil {
		s.logger.Warn("dependency replaced, last registration wins",
			zap.String("scope", s.name),
			zap.String("type", rec.Key()),
			zap.String("name", rec.Name),
			zap.Stringer("previous", prev.Symbol),
			zap.Stringer("current", rec.Symbol))
	}
	return true, nil
}

// Remove deletes rec from the store and reports whether it was present.
func (s *Store) Remove(rec *DepRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.typed
	if rec.Forward() {
		idx = s.forward
	}
	b, ok := idx[rec.Key()]
	if !ok {
		return false
	}
	return b.remove(rec)
}

// Clear drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typed = make(map[string]*bucket)
	s.forward = make(map[string]*bucket)
	s.keys = nil
	s.signalLocked()
}

func (s *Store) bucketFor(rec *DepRecord) *bucket {
	idx := s.typed
	if rec.Forward() {
		idx = s.forward
	}
	key := rec.Key()
	b, ok := idx[key]
	if !ok {
		b = &bucket{named: make(map[string]*DepRecord)}
		idx[key] = b
		s.keys = append(s.keys, bucketKey{key: key, forward: rec.Forward()})
	}
	return b
}

// signalLocked wakes everyone waiting on Changed. Caller holds s.mu.
func (s *Store) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Changed returns a channel closed on the next write to the store.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// Get returns the instance registered under t (and name, when not empty).
// found is false when nothing matches; err is an *AmbiguousDependencyError
// when several records match an unnamed lookup.
func (s *Store) Get(t reflect.Type, name string) (value any, found bool, err error) {
	q := TypeQuery(t)
	if name != "" {
		q = NameQuery(t, name)
	}
	return s.value(q)
}

// GetByTypeName resolves forward references: records whose declared type
// name (or full type key) equals typeName.
func (s *Store) GetByTypeName(typeName string) (value any, found bool, err error) {
	return s.value(TypeNameQuery(typeName))
}

func (s *Store) value(q Query) (any, bool, error) {
	rec, err := s.Lookup(q)
	if err != nil || rec == nil {
		return nil, false, err
	}
	return rec.Value, true, nil
}

// Lookup returns the single record matching q, nil when none does.
func (s *Store) Lookup(q Query) (*DepRecord, error) {
	cands := s.candidates(q)
	switch len(cands) {
	case 0:
		return nil, nil
	case 1:
		return cands[0], nil
	}
	syms := make([]Symbol, len(cands))
	for i, c := range cands {
		syms[i] = c.Symbol
	}
	return nil, &AmbiguousDependencyError{Query: q, Candidates: syms}
}

func (s *Store) candidates(q Query) []*DepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*DepRecord
	switch q.Kind {
	case LookupType:
		if b, ok := s.typed[KeyOf(q.Type)]; ok {
			out = append(out, b.order...)
		}
		if b, ok := s.forward[ShortName(q.Type)]; ok {
			out = append(out, b.order...)
		}
		if len(out) == 0 && q.Type != nil && q.Type.Kind() == reflect.Interface {
			out = s.implementersLocked(q.Type, "", false)
		}
	case LookupName:
		if b, ok := s.typed[KeyOf(q.Type)]; ok {
			if r := b.named[q.Name]; r != nil {
				out = append(out, r)
			}
		}
		if b, ok := s.forward[ShortName(q.Type)]; ok {
			if r := b.named[q.Name]; r != nil {
				out = append(out, r)
			}
		}
		if len(out) == 0 && q.Type != nil && q.Type.Kind() == reflect.Interface {
			out = s.implementersLocked(q.Type, q.Name, true)
		}
	case LookupTypeName:
		if b, ok := s.forward[q.TypeName]; ok {
			out = append(out, b.order...)
		}
		for _, k := range s.keys {
			if k.forward {
				continue
			}
			for _, r := range s.typed[k.key].order {
				if r.TypeName == q.TypeName || k.key == q.TypeName {
					out = append(out, r)
				}
			}
		}
	}
	return out
}

func (s *Store) implementersLocked(iface reflect.Type, name string, named bool) []*DepRecord {
	var out []*DepRecord
	for _, k := range s.keys {
		if k.forward {
			continue
		}
		for _, r := range s.typed[k.key].order {
			if named && r.Name != name {
				continue
			}
			if r.Type.Implements(iface) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Records returns a snapshot of every record in registration order of their
// type buckets.
func (s *Store) Records() []*DepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DepRecord
	for _, k := range s.keys {
		if k.forward {
			out = append(out, s.forward[k.key].order...)
		} else {
			out = append(out, s.typed[k.key].order...)
		}
	}
	return out
}

// Len is the number of records in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.typed {
		n += len(b.order)
	}
	for _, b := range s.forward {
		n += len(b.order)
	}
	return n
}
