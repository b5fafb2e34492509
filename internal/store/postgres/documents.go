package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// timeLayout is fixed width so that stored timestamps sort bytewise.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DocumentsStore keeps every collection in one jsonb table. It is the
// self-hosted alternative to Firestore.
type DocumentsStore struct {
	pool *pgxpool.Pool
}

func NewDocumentsStore(pool *pgxpool.Pool) *DocumentsStore {
	return &DocumentsStore{pool: pool}
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
		CREATE TABLE IF NOT EXISTS documents (
			collection text NOT NULL,
			id text NOT NULL,
			data jsonb NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS documents_user_created_idx
			ON documents (collection, (data->>'userId'), ((data->>'createdAt') COLLATE "C") DESC);
		CREATE INDEX IF NOT EXISTS documents_username_idx
			ON documents (collection, ((data->>'username') COLLATE "C"));
	`
	if _, err := pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (s *DocumentsStore) Get(ctx context.Context, collection, id string) (store.Record, error) {
	const q = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	var raw []byte
	if err := s.pool.QueryRow(ctx, q, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeRecord(raw)
}

func (s *DocumentsStore) Set(ctx context.Context, collection, id string, data store.Record) error {
	const q = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data
	`
	body, err := encodeRecord(data)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, q, collection, id, body); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentsStore) Add(ctx context.Context, collection string, data store.Record) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentsStore) Update(ctx context.Context, collection, id string, fields store.Record) error {
	const q = `UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND id = $2`
	body, err := encodeRecord(fields)
	if err != nil {
		return err
	}
	return s.exec(ctx, "update", collection, id, q, body)
}

func (s *DocumentsStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	const q = `
		UPDATE documents
		SET data = jsonb_set(
			data,
			ARRAY[$3::text],
			COALESCE(data->$3, '[]'::jsonb) || COALESCE(
				(SELECT jsonb_agg(u.v) FROM unnest($4::text[]) AS u(v)
				 WHERE NOT COALESCE(data->$3, '[]'::jsonb) ? u.v),
				'[]'::jsonb))
		WHERE collection = $1 AND id = $2
	`
	return s.exec(ctx, "array union", collection, id, q, field, uniqueValues(values))
}

func (s *DocumentsStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	const q = `
		UPDATE documents
		SET data = jsonb_set(
			data,
			ARRAY[$3::text],
			COALESCE(
				(SELECT jsonb_agg(e.v) FROM jsonb_array_elements(COALESCE(data->$3, '[]'::jsonb)) AS e(v)
				 WHERE NOT (e.v #>> '{}') = ANY($4::text[])),
				'[]'::jsonb))
		WHERE collection = $1 AND id = $2
	`
	return s.exec(ctx, "array remove", collection, id, q, field, uniqueValues(values))
}

func (s *DocumentsStore) Delete(ctx context.Context, collection, id string) error {
	const q = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	if _, err := s.pool.Exec(ctx, q, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentsStore) exec(ctx context.Context, op, collection, id, q string, args ...any) error {
	ct, err := s.pool.Exec(ctx, q, append([]any{collection, id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, collection, id, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *DocumentsStore) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Document{ID: id, Data: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return out, nil
}

func buildQuery(q store.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	args := []any{q.Collection}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var b strings.Builder
	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		b.WriteString(" AND ")
		if f.Op == store.OpIn {
			fmt.Fprintf(&b, "%s = ANY(%s::text[])", textExpr(f.Field), arg(f.Value))
			continue
		}
		if n, ok := numeric(f.Value); ok {
			fmt.Fprintf(&b, "%s::numeric %s %s", textExpr(f.Field), sqlOp(f.Op), arg(n))
			continue
		}
		v, err := scalar(f.Value)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b, "%s COLLATE \"C\" %s %s", textExpr(f.Field), sqlOp(f.Op), arg(v))
	}

	orderBy, desc := q.OrderBy, q.Descending
	if orderBy == "" {
		for _, f := range q.Filters {
			if f.Op == store.OpGreaterOrEqual || f.Op == store.OpLessOrEqual {
				orderBy = f.Field
				break
			}
		}
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if orderBy != "" && orderBy != store.DocumentID {
		fmt.Fprintf(&b, " ORDER BY %s COLLATE \"C\" %s, id COLLATE \"C\" %s", textExpr(orderBy), dir, dir)
	} else {
		fmt.Fprintf(&b, " ORDER BY id COLLATE \"C\" %s", dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args, nil
}

// textExpr is the text value of a field. Field names come from code, never
// from requests, but are quoted anyway.
func textExpr(field string) string {
	if field == store.DocumentID {
		return "id"
	}
	return "(data->>'" + strings.ReplaceAll(field, "'", "''") + "')"
}

func sqlOp(op store.Op) string {
	if op == store.OpEqual {
		return "="
	}
	return string(op)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func scalar(v any) (string, error) {
	switch vv := v.(type) {
	case string:
		return vv, nil
	case time.Time:
		return vv.UTC().Format(timeLayout), nil
	case bool:
		if vv {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("unsupported filter value %T", v)
}

func encodeRecord(r store.Record) (string, error) {
	b, err := json.Marshal(encodeValue(map[string]any(r)))
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(b), nil
}

func encodeValue(v any) any {
	switch vv := v.(type) {
	case time.Time:
		return vv.UTC().Format(timeLayout)
	case *time.Time:
		if vv == nil {
			return nil
		}
		return vv.UTC().Format(timeLayout)
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[k] = encodeValue(item)
		}
		return out
	case store.Record:
		return encodeValue(map[string]any(vv))
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = encodeValue(item)
		}
		return out
	}
	return v
}

func decodeRecord(raw []byte) (store.Record, error) {
	rec := store.Record{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func uniqueValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
