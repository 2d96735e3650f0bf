package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	changeChannel   = "docstore_changes"
	pgUniqueViolate = "23505"
	pgQueryTimeout  = 5 * time.Second
)

// PostgresStore keeps every collection in one JSONB table. Sorting never
// fails for lack of an index, so it never returns ErrIndexUnavailable.
type PostgresStore struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// ConnectPostgres opens a pool, runs the embedded migrations and returns the
// store.
func ConnectPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := Migrate(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool, log), nil
}

func NewPostgresStore(db *pgxpool.Pool, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) Create(ctx context.Context, coll, id string, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	v, err := normalize(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("encode %s/%s: document must be an object", coll, id)
	}
	m["id"] = id
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (collection, id, doc, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
	`, coll, id, string(b))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolate {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, coll, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT doc FROM documents WHERE collection = $1 AND id = $2`, coll, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	return jsonDoc{id: id, raw: raw}, nil
}

func pathOf(field string) []string { return strings.Split(field, ".") }

// setExpr nests one jsonb_set per field over doc, appending parameters to
// args. Keys are sorted so the statement text is stable.
func setExpr(coll, id string, fields map[string]any, args []any) (string, []any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	expr := "doc"
	for _, k := range keys {
		b, err := json.Marshal(fields[k])
		if err != nil {
			return "", nil, fmt.Errorf("encode %s/%s.%s: %w", coll, id, k, err)
		}
		args = append(args, pathOf(k), string(b))
		expr = fmt.Sprintf("jsonb_set(%s, $%d::text[], $%d::jsonb, true)", expr, len(args)-1, len(args))
	}
	return expr, args, nil
}

func (s *PostgresStore) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	expr, args, err := setExpr(coll, id, fields, []any{coll, id})
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE documents SET doc = "+expr+", updated_at = NOW() WHERE collection = $1 AND id = $2",
		args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateIf(ctx context.Context, coll, id, field string, want any, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	wb, err := json.Marshal(want)
	if err != nil {
		return fmt.Errorf("encode %s/%s.%s: %w", coll, id, field, err)
	}
	expr, args, err := setExpr(coll, id, fields, []any{coll, id, pathOf(field), string(wb)})
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE documents SET doc = "+expr+", updated_at = NOW() WHERE collection = $1 AND id = $2 AND doc #> $3::text[] = $4::jsonb",
		args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.unmatched(ctx, coll, id)
	}
	return nil
}

// unmatched tells a missing document from one that failed the guard.
func (s *PostgresStore) unmatched(ctx context.Context, coll, id string) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`, coll, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup %s/%s: %w", coll, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *PostgresStore) Increment(ctx context.Context, coll, id, field string, delta int64) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET doc = jsonb_set(doc, $3::text[], to_jsonb(COALESCE((doc #>> $3::text[])::numeric, 0) + $4), true),
		    updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, coll, id, pathOf(field), delta)
	if err != nil {
		return fmt.Errorf("increment %s/%s.%s: %w", coll, id, field, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementIfAtLeast(ctx context.Context, coll, id, field string, delta, min int64) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET doc = jsonb_set(doc, $3::text[], to_jsonb(COALESCE((doc #>> $3::text[])::numeric, 0) + $4), true),
		    updated_at = NOW()
		WHERE collection = $1 AND id = $2
		  AND COALESCE((doc #>> $3::text[])::numeric, 0) >= $5
	`, coll, id, pathOf(field), delta, min)
	if err != nil {
		return fmt.Errorf("increment %s/%s.%s: %w", coll, id, field, err)
	}
	if tag.RowsAffected() == 0 {
		return s.unmatched(ctx, coll, id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, coll, id string) error {
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, coll, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var sqlOps = map[Op]string{
	Eq: "=", Ne: "IS DISTINCT FROM", Lt: "<", Lte: "<=", Gt: ">", Gte: ">=",
}

// sqlFilter renders f as a boolean expression, appending its parameters to
// args. The cast applied to the stored value follows the Go type of f.Value.
func sqlFilter(f Filter, args []any) (string, []any) {
	if f.Field == "id" && f.Op != Contains {
		args = append(args, fmt.Sprint(f.Value))
		return fmt.Sprintf("id %s $%d", sqlOps[f.Op], len(args)), args
	}

	args = append(args, pathOf(f.Field))
	p := len(args)
	if f.Op == Contains {
		args = append(args, fmt.Sprint(f.Value))
		return fmt.Sprintf("doc #> $%d::text[] @> jsonb_build_array($%d::text)", p, len(args)), args
	}

	op := sqlOps[f.Op]
	switch v := f.Value.(type) {
	case time.Time:
		args = append(args, v.UTC())
		return fmt.Sprintf("(doc #>> $%d::text[])::timestamptz %s $%d::timestamptz", p, op, len(args)), args
	case decimal.Decimal:
		args = append(args, v.String())
		return fmt.Sprintf("(doc #>> $%d::text[])::numeric %s $%d::text::numeric", p, op, len(args)), args
	}

	rv := reflect.ValueOf(f.Value)
	switch rv.Kind() {
	case reflect.Bool:
		args = append(args, rv.Bool())
		return fmt.Sprintf("(doc #>> $%d::text[])::boolean %s $%d::boolean", p, op, len(args)), args
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		args = append(args, fmt.Sprint(f.Value))
		return fmt.Sprintf("(doc #>> $%d::text[])::numeric %s $%d::text::numeric", p, op, len(args)), args
	default:
		args = append(args, fmt.Sprint(f.Value))
		return fmt.Sprintf("(doc #>> $%d::text[]) %s $%d::text", p, op, len(args)), args
	}
}

func buildSelect(coll string, q Query) (string, []any) {
	args := []any{coll}
	var sb strings.Builder
	sb.WriteString("SELECT id, doc FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		var cond string
		cond, args = sqlFilter(f, args)
		sb.WriteString(" AND ")
		sb.WriteString(cond)
	}
	if q.Sort != nil {
		args = append(args, pathOf(q.Sort.Field))
		dir := "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY (doc #>> $%d::text[])::timestamptz %s, id", len(args), dir)
		if q.Limit > 0 {
			fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
		}
	}
	return sb.String(), args
}

func (s *PostgresStore) Find(ctx context.Context, coll string, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	sql, args := buildSelect(coll, q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("find %s: %w", coll, err)
		}
		out = append(out, jsonDoc{id: id, raw: raw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, coll string, q Query, fn func([]Document)) (*Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", coll, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("subscribe %s: %w", coll, err)
	}

	lctx, lcancel := context.WithCancel(ctx)
	ch := make(chan struct{}, 1)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		for {
			n, err := conn.Conn().WaitForNotification(lctx)
			if err != nil {
				if lctx.Err() == nil {
					s.log.Warn().Err(err).Str("collection", coll).Msg("listen failed")
				}
				return
			}
			if n.Payload == coll {
				signal(ch)
			}
		}
	}()

	stop := func() {
		lcancel()
		<-listenerDone
		uctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(uctx, "UNLISTEN "+changeChannel)
		}
		conn.Release()
	}
	query := func(ctx context.Context) ([]Document, error) { return s.Find(ctx, coll, q) }
	return startFeed(ctx, s.log, coll, ch, stop, query, fn), nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.db.Close()
	return nil
}
