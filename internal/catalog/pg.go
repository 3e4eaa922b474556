/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "templatecanvas/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultQuery reads the records table created by Migrate.
const DefaultQuery = `SELECT COALESCE(ref, id::text) AS id, data FROM records ORDER BY records.id`

// PGSource reads records with a SQL query. A query returning a single JSON
// (json, jsonb or text) column yields that object per row; one returning an
// "id" column plus one JSON column names the records; any other shape maps
// column names to values.
type PGSource struct {
	db    *sql.DB
	query string
}

// OpenPG connects through the pgx stdlib driver and checks the connection.
func OpenPG(ctx context.Context, dsn, query string) (*PGSource, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	return &PGSource{db: db, query: query}, nil
}

func (p *PGSource) Close() error { return p.db.Close() }

// DB exposes the pool for callers seeding or inspecting records.
func (p *PGSource) DB() *sql.DB { return p.db }

func (p *PGSource) Records(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("records query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec, err := rowRecord(cols, vals, len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func rowRecord(cols []string, vals []any, i int) (Record, error) {
	switch {
	case len(cols) == 1:
		obj, err := jsonObject(vals[0])
		if err != nil {
			return Record{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		return Record{ID: recordID(obj, i), Data: obj}, nil
	case len(cols) == 2 && strings.EqualFold(cols[0], "id"):
		obj, err := jsonObject(vals[1])
		if err == nil {
			return Record{ID: scalar(vals[0]), Data: obj}, nil
		}
	}
	obj := make(map[string]any, len(cols))
	for j, c := range cols {
		obj[c] = normalize(vals[j])
	}
	return Record{ID: recordID(obj, i), Data: obj}, nil
}

// jsonObject decodes a JSON column value. pgx returns json/jsonb as decoded
// Go values and text as string.
func jsonObject(v any) (map[string]any, error) {
	var raw []byte
	switch x := v.(type) {
	case map[string]any:
		// Re-encode so numbers become json.Number like every other source.
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		raw = b
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return nil, fmt.Errorf("column of type %T is not a JSON object", v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json column: %w", err)
	}
	if obj == nil {
		return nil, errors.New("json column is null")
	}
	return obj, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case int64:
		return json.Number(strconv.FormatInt(x, 10))
	case int32:
		return json.Number(strconv.FormatInt(int64(x), 10))
	case float64:
		return json.Number(strconv.FormatFloat(x, 'f', -1, 64))
	}
	return v
}

func scalar(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Put inserts or replaces the record stored under ref in the records table.
func (p *PGSource) Put(ctx context.Context, ref string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	// dialect=PostgreSQL
	_, err = p.db.ExecContext(ctx, `INSERT INTO records(ref, data) VALUES($1, $2::jsonb)
		ON CONFLICT (ref) DO UPDATE SET data = EXCLUDED.data`, ref, string(b))
	if err != nil {
		return fmt.Errorf("insert record %s: %w", ref, err)
	}
	return nil
}

// Migrate applies the embedded migrations creating the records table.
func (p *PGSource) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, p.db)
}

// applyMigrations applies embedded SQL migrations in filename order.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("catalog"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		l.Info("migration applied", slog.String("file", fname))
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// withPassword fills in the password of a URL-style DSN when it has none.
// Key/value DSNs are returned unchanged.
func withPassword(dsn, password string) (string, error) {
	if password == "" || !strings.Contains(dsn, "://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if u.User == nil {
		return dsn, nil
	}
	if _, set := u.User.Password(); set {
		return dsn, nil
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}
