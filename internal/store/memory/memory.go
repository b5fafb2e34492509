package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store"

	"github.com/google/uuid"
)

// FaultFunc is consulted before every operation; a non-nil error aborts it.
// op is one of get, set, add, update, arrayUnion, arrayRemove, delete, query.
type FaultFunc func(op, collection, id string) error

// Store is an in-process store.Store. It follows the same query semantics as
// the Firestore backend and counts every call so tests can assert on them.
type Store struct {
	mu    sync.Mutex
	data  map[string]map[string]store.Record
	calls map[string]int
	fault FaultFunc
	newID func() string
}

func New() *Store {
	return &Store{
		data:  make(map[string]map[string]store.Record),
		calls: make(map[string]int),
		newID: uuid.NewString,
	}
}

func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Calls returns how many times op ran against collection, e.g. Calls("query", "books").
func (s *Store) Calls(op, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+":"+collection]
}

func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.calls)
}

// begin records the call and applies the fault hook. Callers hold s.mu.
func (s *Store) begin(ctx context.Context, op, collection, id string) error {
	s.calls[op+":"+collection]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.fault != nil {
		if err := s.fault(op, collection, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) collection(name string) map[string]store.Record {
	c, ok := s.data[name]
	if !ok {
		c = make(map[string]store.Record)
		s.data[name] = c
	}
	return c
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "get", collection, id); err != nil {
		return nil, err
	}
	rec, ok := s.data[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "set", collection, id); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("memory set %s: empty id", collection)
	}
	s.collection(collection)[id] = cloneRecord(data)
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data store.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "add", collection, ""); err != nil {
		return "", err
	}
	id := s.newID()
	s.collection(collection)[id] = cloneRecord(data)
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "update", collection, id); err != nil {
		return err
	}
	rec, ok := s.data[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range fields {
		rec[k] = cloneValue(v)
	}
	return nil
}

func (s *Store) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "arrayUnion", collection, id); err != nil {
		return err
	}
	rec, ok := s.data[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	cur := toStrings(rec[field])
	for _, v := range values {
		if !slices.Contains(cur, v) {
			cur = append(cur, v)
		}
	}
	rec[field] = cur
	return nil
}

func (s *Store) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "arrayRemove", collection, id); err != nil {
		return err
	}
	rec, ok := s.data[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	rec[field] = slices.DeleteFunc(toStrings(rec[field]), func(v string) bool {
		return slices.Contains(values, v)
	})
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "delete", collection, id); err != nil {
		return err
	}
	delete(s.data[collection], id)
	return nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "query", q.Collection, ""); err != nil {
		return nil, err
	}

	var out []store.Document
	for id, rec := range s.data[q.Collection] {
		if matchesAll(id, rec, q.Filters) {
			out = append(out, store.Document{ID: id, Data: cloneRecord(rec)})
		}
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = rangeField(q.Filters)
	}
	slices.SortFunc(out, func(a, b store.Document) int {
		c := 0
		if orderBy != "" {
			c, _ = compareValues(a.Data[orderBy], b.Data[orderBy])
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if q.Descending {
			c = -c
		}
		return c
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// rangeField returns the field of the first inequality filter; such queries
// are implicitly ordered by it.
func rangeField(filters []store.Filter) string {
	for _, f := range filters {
		if f.Op == store.OpGreaterOrEqual || f.Op == store.OpLessOrEqual {
			return f.Field
		}
	}
	return ""
}

func matchesAll(id string, rec store.Record, filters []store.Filter) bool {
	for _, f := range filters {
		var v any
		if f.Field == store.DocumentID {
			v = id
		} else {
			var ok bool
			if v, ok = rec[f.Field]; !ok {
				return false
			}
		}
		if !matches(v, f) {
			return false
		}
	}
	return true
}

func matches(v any, f store.Filter) bool {
	switch f.Op {
	case store.OpIn:
		s, ok := v.(string)
		return ok && slices.Contains(f.Value.([]string), s)
	case store.OpEqual:
		c, ok := compareValues(v, f.Value)
		return ok && c == 0
	case store.OpGreaterOrEqual:
		c, ok := compareValues(v, f.Value)
		return ok && c >= 0
	case store.OpLessOrEqual:
		c, ok := compareValues(v, f.Value)
		return ok && c <= 0
	}
	return false
}

// compareValues orders two values of the same kind. ok is false when the
// kinds differ, in which case no filter matches.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return cmp.Compare(av, bv), ok
	case time.Time:
		bv, ok := b.(time.Time)
		return av.Compare(bv), ok
	case bool:
		bv, ok := b.(bool)
		if !ok || av == bv {
			return 0, ok
		}
		if !av {
			return -1, true
		}
		return 1, true
	}
	an, aok := number(a)
	bn, bok := number(b)
	if aok && bok {
		return cmp.Compare(an, bn), true
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return slices.Clone(vv)
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func cloneRecord(r store.Record) store.Record {
	out := make(store.Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case []string:
		return slices.Clone(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		return maps.Clone(vv)
	case store.Record:
		return cloneRecord(vv)
	}
	return v
}
