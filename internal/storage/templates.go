/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"templatecanvas/internal/assets"
	"templatecanvas/internal/domain"
)

// ErrTemplateNotFound is returned when no template with the requested id is stored.
var ErrTemplateNotFound = errors.New("template not found")

// language=SQL
// dialect=SQLite
const upsertTemplateSQL = `INSERT INTO templates(id, key, width, height, elements, data, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET key = excluded.key, width = excluded.width, height = excluded.height,
	elements = excluded.elements, data = excluded.data, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const selectTemplateSQL = `SELECT data FROM templates WHERE id = ?`

// language=SQL
// dialect=SQLite
const listTemplatesSQL = `SELECT id, key, width, height, elements, updated_at FROM templates ORDER BY updated_at DESC, id`

// language=SQL
// dialect=SQLite
const deleteTemplateSQL = `DELETE FROM templates WHERE id = ?`

// language=SQL
// dialect=SQLite
const deleteTemplateSnapshotsSQL = `DELETE FROM snapshots WHERE template_id = ?`

// TemplateInfo summarises a stored template without decoding its elements.
type TemplateInfo struct {
	ID        string    `json:"id"`
	Key       string    `json:"key,omitempty"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Elements  int       `json:"elements"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PutTemplate stores tpl under its id. Templates still referencing ephemeral
// blob handles are rejected since they cannot be loaded again later.
func (s *Store) PutTemplate(ctx context.Context, tpl *domain.Template) error {
	if tpl == nil || strings.TrimSpace(tpl.ID) == "" {
		return errors.New("template id is required")
	}
	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	if assets.IsEphemeral(string(data)) {
		return fmt.Errorf("template %s references ephemeral assets; export it as a bundle instead", tpl.ID)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, upsertTemplateSQL, tpl.ID, tpl.Key, tpl.Width, tpl.Height, len(tpl.State), string(data), now); err != nil {
		return fmt.Errorf("store template %s: %w", tpl.ID, err)
	}
	return nil
}

// Template loads and normalizes the stored template with the given id.
func (s *Store) Template(ctx context.Context, id string) (*domain.Template, error) {
	var data string
	err := s.db.QueryRowContext(ctx, selectTemplateSQL, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", id, err)
	}
	return domain.DecodeTemplate(strings.NewReader(data))
}

// Templates lists stored templates, most recently updated first.
func (s *Store) Templates(ctx context.Context) ([]TemplateInfo, error) {
	rows, err := s.db.QueryContext(ctx, listTemplatesSQL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []TemplateInfo
	for rows.Next() {
		var (
			ti  TemplateInfo
			key sql.NullString
			ts  string
		)
		if err := rows.Scan(&ti.ID, &key, &ti.Width, &ti.Height, &ti.Elements, &ts); err != nil {
			return nil, err
		}
		ti.Key = key.String
		ti.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ti)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template and its snapshots.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, deleteTemplateSnapshotsSQL, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete snapshots of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, deleteTemplateSQL, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tx.Commit()
}
