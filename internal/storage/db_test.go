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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"templatecanvas/internal/domain"
)

func sampleTemplate(id string) *domain.Template {
	return &domain.Template{
		ID:         id,
		Key:        id,
		Background: domain.BackgroundColor,
		Source:     "#ffffff",
		Width:      800,
		Height:     600,
		State: []domain.Element{
			{Type: domain.TypeText, Name: "title", Value: "Hello", Details: domain.Details{Top: domain.Float(10), FontSize: domain.Float(40)}},
			{Type: domain.TypeRect, Name: "bar", Details: domain.Details{Width: domain.Float(100), Height: domain.Float(20)}},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "state", "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenMigratesToCurrentSchema(t *testing.T) {
	st := openTestStore(t)
	v, err := st.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema = %d, want %d", v, schemaVersion)
	}
	var n int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_snapshots_template_ts'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("migration index missing: n=%d err=%v", n, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := st.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = st.Close()
	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = st.Close() }()
	got, err := st.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}

func TestStateGetPutDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	got, err := st.Get(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("missing key should be nil,nil: %q %v", got, err)
	}
	if err := st.Put(ctx, "scene", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put(ctx, "scene", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, _ = st.Get(ctx, "scene")
	if string(got) != `{"a":2}` {
		t.Fatalf("Get = %s", got)
	}
	if err := st.Delete(ctx, "scene"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "scene"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if got, _ := st.Get(ctx, "scene"); got != nil {
		t.Fatalf("expected nil after delete, got %s", got)
	}
}

func TestTemplatesCRUD(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if err := st.PutTemplate(ctx, sampleTemplate("t1")); err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	tpl2 := sampleTemplate("t2")
	tpl2.State = tpl2.State[:1]
	if err := st.PutTemplate(ctx, tpl2); err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	got, err := st.Template(ctx, "t1")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if len(got.State) != 2 || got.State[0].Name != "title" || got.Source != "#ffffff" {
		t.Fatalf("unexpected template: %#v", got)
	}
	list, err := st.Templates(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("Templates = %v, %v", list, err)
	}
	for _, ti := range list {
		if ti.ID == "t2" && ti.Elements != 1 {
			t.Fatalf("elements count for t2 = %d", ti.Elements)
		}
	}
	if err := st.DeleteTemplate(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := st.Template(ctx, "t1"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	if err := st.DeleteTemplate(ctx, "t1"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound on second delete, got %v", err)
	}
}

func TestPutTemplateRejectsEphemeralAssets(t *testing.T) {
	st := openTestStore(t)
	tpl := sampleTemplate("t1")
	tpl.State = append(tpl.State, domain.Element{Type: domain.TypeImage, Name: "photo", Value: "blob:templatecanvas/123"})
	if err := st.PutTemplate(context.Background(), tpl); err == nil {
		t.Fatalf("expected error for blob: reference")
	}
}

func TestSnapshotsLatestListPrune(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if blob, _, err := st.LatestSnapshot(ctx, "t1"); err != nil || blob != nil {
		t.Fatalf("expected no snapshot yet: %v %v", blob, err)
	}
	for i := 0; i < 5; i++ {
		if err := st.SaveSnapshot(ctx, "t1", []byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}
	_ = st.SaveSnapshot(ctx, "other", []byte("x"), base)
	blob, ts, err := st.LatestSnapshot(ctx, "t1")
	if err != nil || string(blob) != "e" || !ts.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("LatestSnapshot = %q %v %v", blob, ts, err)
	}
	list, err := st.Snapshots(ctx, "t1", 2)
	if err != nil || len(list) != 2 || string(list[1].Blob) != "d" {
		t.Fatalf("Snapshots = %v %v", list, err)
	}
	n, err := st.PruneSnapshots(ctx, "t1", 2)
	if err != nil || n != 3 {
		t.Fatalf("PruneSnapshots = %d %v", n, err)
	}
	all, _ := st.Snapshots(ctx, "t1", 0)
	if len(all) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(all))
	}
	if other, _ := st.Snapshots(ctx, "other", 0); len(other) != 1 {
		t.Fatalf("prune must not touch other templates")
	}
}

func TestOpenOrRebuildReplacesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database at all, just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, rebuilt, err := OpenOrRebuild(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenOrRebuild: %v", err)
	}
	defer func() { _ = st.Close() }()
	if !rebuilt {
		t.Fatalf("expected rebuild of corrupt file")
	}
	if err := st.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("rebuilt store unusable: %v", err)
	}
	ents, _ := os.ReadDir(filepath.Join(dir, BackupsDirName))
	if len(ents) != 1 {
		t.Fatalf("expected one backup of the corrupt file, got %d", len(ents))
	}
}
