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
	"errors"
	"time"
)

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(template_id, ts, blob) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSnapshotSQL = `SELECT ts, blob FROM snapshots WHERE template_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT ts, blob FROM snapshots WHERE template_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE template_id = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE template_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// Snapshot is one serialized scene saved for a template.
type Snapshot struct {
	TS   time.Time
	Blob []byte
}

// SaveSnapshot persists a serialized scene for templateID with a timestamp.
func (s *Store) SaveSnapshot(ctx context.Context, templateID string, blob []byte, ts time.Time) error {
	if templateID == "" {
		return errors.New("template id is required")
	}
	_, err := s.db.ExecContext(ctx, insertSnapshotSQL, templateID, ts.UTC().Format(time.RFC3339Nano), blob)
	return err
}

// LatestSnapshot returns the newest snapshot for templateID, or a nil blob if none.
func (s *Store) LatestSnapshot(ctx context.Context, templateID string) ([]byte, time.Time, error) {
	var tsStr string
	var blob []byte
	err := s.db.QueryRowContext(ctx, selectLatestSnapshotSQL, templateID).Scan(&tsStr, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return blob, time.Time{}, nil // keep the blob even if the stamp is unreadable
	}
	return blob, ts, nil
}

// Snapshots returns up to limit most recent snapshots for templateID.
func (s *Store) Snapshots(ctx context.Context, templateID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listSnapshotsSQL, templateID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var tsStr string
		var blob []byte
		if err := rows.Scan(&tsStr, &blob); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, Snapshot{TS: ts, Blob: blob})
	}
	return out, rows.Err()
}

// PruneSnapshots keeps at most keepLast snapshots for templateID and deletes older ones.
func (s *Store) PruneSnapshots(ctx context.Context, templateID string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneOldSnapshotsSQL, templateID, templateID, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
