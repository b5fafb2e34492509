package store

import (
	"context"
	"fmt"
)

// Record is a schemaless document body keyed by field name.
type Record map[string]any

type Document struct {
	ID   string
	Data Record
}

type Op string

const (
	OpEqual          Op = "=="
	OpGreaterOrEqual Op = ">="
	OpLessOrEqual    Op = "<="
	OpIn             Op = "in"
)

// DocumentID addresses the document id in a Filter instead of a field.
const DocumentID = "__name__"

// MaxInValues is the most values a single OpIn filter may carry.
const MaxInValues = 10

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

func From(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderByDesc(field string) Query {
	q.OrderBy = field
	q.Descending = true
	return q
}

func (q Query) OrderByAsc(field string) Query {
	q.OrderBy = field
	q.Descending = false
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query: collection required")
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpGreaterOrEqual, OpLessOrEqual:
		case OpIn:
			vals, ok := f.Value.([]string)
			if !ok {
				return fmt.Errorf("query: %s in: want []string, got %T", f.Field, f.Value)
			}
			if len(vals) == 0 || len(vals) > MaxInValues {
				return fmt.Errorf("query: %s in: %d values (want 1..%d)", f.Field, len(vals), MaxInValues)
			}
		default:
			return fmt.Errorf("query: unsupported operator %q", f.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit")
	}
	return nil
}

// Store is the document-store contract shared by every backend. Missing
// documents are reported as domain.ErrNotFound. ArrayUnion and ArrayRemove
// are set operations on a string array field and are idempotent.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, data Record) error
	// Add creates a document under a generated id.
	Add(ctx context.Context, collection string, data Record) (string, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Record) error
	ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error
	ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Chunk splits ids into consecutive groups of at most size.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxInValues
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end:end])
	}
	return out
}
