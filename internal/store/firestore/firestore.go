package firestore

import (
	"context"
	"errors"
	"fmt"

	"greatreads/internal/domain"
	"greatreads/internal/store"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store is the Cloud Firestore implementation of store.Store. It is the
// production backend and the one the mobile clients share.
type Store struct {
	client *firestore.Client
}

func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return store.Record(snap.Data()), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data store.Record) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, map[string]any(data)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data store.Record) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]any(data))
	if err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields store.Record) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return s.update(ctx, collection, id, updates)
}

func (s *Store) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	return s.update(ctx, collection, id, []firestore.Update{
		{Path: field, Value: firestore.ArrayUnion(toAny(values)...)},
	})
}

func (s *Store) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	return s.update(ctx, collection, id, []firestore.Update{
		{Path: field, Value: firestore.ArrayRemove(toAny(values)...)},
	})
}

func (s *Store) update(ctx context.Context, collection, id string, updates []firestore.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	coll := s.client.Collection(q.Collection)
	fq := coll.Query
	for _, f := range q.Filters {
		if f.Field == store.DocumentID {
			fq = fq.Where(firestore.DocumentID, string(f.Op), docRefs(coll, f))
			continue
		}
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	out := make([]store.Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, store.Document{ID: snap.Ref.ID, Data: store.Record(snap.Data())})
	}
	return out, nil
}

// docRefs converts id filter values into document references, which is what
// the backend compares __name__ against.
func docRefs(coll *firestore.CollectionRef, f store.Filter) any {
	switch v := f.Value.(type) {
	case string:
		return coll.Doc(v)
	case []string:
		refs := make([]*firestore.DocumentRef, len(v))
		for i, id := range v {
			refs[i] = coll.Doc(id)
		}
		return refs
	}
	return f.Value
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func isNotFound(err error) bool {
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	return status.Code(err) == codes.NotFound
}
