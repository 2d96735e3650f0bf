package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryStore keeps documents as JSON in process memory. It backs tests and
// the "memory" driver.
type MemoryStore struct {
	mu       sync.RWMutex
	colls    map[string]map[string]map[string]any
	watchers map[string]map[int]chan struct{}
	nextID   int
	// indexes, when set, lists the fields each collection can sort on;
	// sorting on any other field fails with ErrIndexUnavailable.
	indexes map[string]map[string]bool
	log     zerolog.Logger
}

type MemoryOption func(*MemoryStore)

// WithIndexes declares sortable fields for coll and turns on index checks.
func WithIndexes(coll string, fields ...string) MemoryOption {
	return func(s *MemoryStore) {
		if s.indexes == nil {
			s.indexes = map[string]map[string]bool{}
		}
		if s.indexes[coll] == nil {
			s.indexes[coll] = map[string]bool{}
		}
		for _, f := range fields {
			s.indexes[coll][f] = true
		}
	}
}

func WithMemoryLogger(l zerolog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.log = l }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		colls:    map[string]map[string]map[string]any{},
		watchers: map[string]map[int]chan struct{}{},
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type jsonDoc struct {
	id  string
	raw []byte
}

func (d jsonDoc) ID() string { return d.id }

func (d jsonDoc) Decode(v any) error { return json.Unmarshal(d.raw, v) }

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toDoc(id string, m map[string]any) (Document, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return jsonDoc{id: id, raw: b}, nil
}

func getPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	obj := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := obj[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			obj[part] = next
		}
		obj = next
	}
	obj[parts[len(parts)-1]] = v
}

func (s *MemoryStore) Create(ctx context.Context, coll, id string, doc any) error {
	v, err := normalize(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("encode %s/%s: document must be an object", coll, id)
	}
	m["id"] = id

	s.mu.Lock()
	c := s.colls[coll]
	if c == nil {
		c = map[string]map[string]any{}
		s.colls[coll] = c
	}
	if _, exists := c[id]; exists {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	c[id] = m
	s.mu.Unlock()

	s.notify(coll)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, coll, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.colls[coll][id]
	if !ok {
		return nil, ErrNotFound
	}
	return toDoc(id, m)
}

func (s *MemoryStore) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	return s.update(coll, id, fields, nil)
}

func (s *MemoryStore) UpdateIf(ctx context.Context, coll, id, field string, want any, fields map[string]any) error {
	nw, err := normalize(want)
	if err != nil {
		return fmt.Errorf("encode %s/%s.%s: %w", coll, id, field, err)
	}
	return s.update(coll, id, fields, func(m map[string]any) bool {
		cur, _ := getPath(m, field)
		c, ok := compareValues(cur, nw)
		return ok && c == 0
	})
}

// update applies fields when guard (if any) accepts the current document.
func (s *MemoryStore) update(coll, id string, fields map[string]any, guard func(map[string]any) bool) error {
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("encode %s/%s.%s: %w", coll, id, k, err)
		}
		normalized[k] = nv
	}

	s.mu.Lock()
	m, ok := s.colls[coll][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if guard != nil && !guard(m) {
		s.mu.Unlock()
		return ErrConditionFailed
	}
	for k, v := range normalized {
		setPath(m, k, v)
	}
	s.mu.Unlock()

	s.notify(coll)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, coll, id, field string, delta int64) error {
	return s.increment(coll, id, field, delta, nil)
}

func (s *MemoryStore) IncrementIfAtLeast(ctx context.Context, coll, id, field string, delta, min int64) error {
	floor := float64(min)
	return s.increment(coll, id, field, delta, &floor)
}

func (s *MemoryStore) increment(coll, id, field string, delta int64, min *float64) error {
	s.mu.Lock()
	m, ok := s.colls[coll][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	cur, _ := getPath(m, field)
	n, _ := cur.(float64)
	if min != nil && n < *min {
		s.mu.Unlock()
		return ErrConditionFailed
	}
	setPath(m, field, n+float64(delta))
	s.mu.Unlock()

	s.notify(coll)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, coll, id string) error {
	s.mu.Lock()
	if _, ok := s.colls[coll][id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.colls[coll], id)
	s.mu.Unlock()

	s.notify(coll)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, coll string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.Sort != nil && s.indexes != nil && !s.indexes[coll][q.Sort.Field] {
		return nil, fmt.Errorf("%w: %s by %s", ErrIndexUnavailable, coll, q.Sort.Field)
	}

	wants := make([]any, len(q.Filters))
	for i, f := range q.Filters {
		w, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		wants[i] = w
	}

	type hit struct {
		id string
		m  map[string]any
	}
	s.mu.RLock()
	var hits []hit
	for id, m := range s.colls[coll] {
		match := true
		for i, f := range q.Filters {
			v, present := getPath(m, f.Field)
			if !matchFilter(v, present, f, wants[i]) {
				match = false
				break
			}
		}
		if match {
			hits = append(hits, hit{id: id, m: m})
		}
	}

	if q.Sort != nil {
		field, desc := q.Sort.Field, q.Sort.Desc
		sort.SliceStable(hits, func(i, j int) bool {
			a, _ := getPath(hits[i].m, field)
			b, _ := getPath(hits[j].m, field)
			c, ok := compareValues(a, b)
			if !ok || c == 0 {
				return hits[i].id < hits[j].id
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
		if q.Limit > 0 && len(hits) > q.Limit {
			hits = hits[:q.Limit]
		}
	}

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		d, err := toDoc(h.id, h.m)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		out = append(out, d)
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, coll string, q Query, fn func([]Document)) (*Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.nextID++
	wid := s.nextID
	if s.watchers[coll] == nil {
		s.watchers[coll] = map[int]chan struct{}{}
	}
	s.watchers[coll][wid] = ch
	s.mu.Unlock()

	stop := func() {
		s.mu.Lock()
		delete(s.watchers[coll], wid)
		s.mu.Unlock()
	}
	query := func(ctx context.Context) ([]Document, error) { return s.Find(ctx, coll, q) }
	return startFeed(ctx, s.log, coll, ch, stop, query, fn), nil
}

// Watchers reports how many live subscriptions coll has.
func (s *MemoryStore) Watchers(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers[coll])
}

func (s *MemoryStore) notify(coll string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers[coll] {
		signal(ch)
	}
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }
