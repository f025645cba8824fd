package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iannil/geofence-engine/pkg/distmodel"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, &Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleItem(id string, lat, lon float64) distmodel.DistFenceItem {
	return distmodel.DistFenceItem{
		ID:   id,
		Name: id,
		Shapes: []distmodel.DistShape{
			{Kind: distmodel.ShapeKindCircle, Center: &distmodel.DistVertex{LatDeg: lat, LonDeg: lon}, RadiusM: 500},
		},
		Priority: 10,
	}
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), &Config{}); err == nil {
		t.Error("expected error for an empty store path")
	}
	if _, err := Open(context.Background(), nil); err == nil {
		t.Error("expected error for a nil config")
	}
}

func TestAddFence_GetFence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item := sampleItem("f1", 39.9, 116.4)

	if err := s.AddFence(ctx, item); err != nil {
		t.Fatalf("AddFence failed: %v", err)
	}

	got, err := s.GetFence(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFence failed: %v", err)
	}
	if got.ID != "f1" || got.Name != "f1" {
		t.Errorf("GetFence = %+v, want id/name f1", got)
	}
}

func TestGetFence_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetFence(context.Background(), "missing"); err != ErrFenceNotFound {
		t.Errorf("GetFence(missing) err = %v, want ErrFenceNotFound", err)
	}
}

func TestUpdateFence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item := sampleItem("f1", 0, 0)
	if err := s.AddFence(ctx, item); err != nil {
		t.Fatalf("AddFence failed: %v", err)
	}

	item.Name = "renamed"
	item.Priority = 99
	if err := s.UpdateFence(ctx, item); err != nil {
		t.Fatalf("UpdateFence failed: %v", err)
	}

	got, err := s.GetFence(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFence failed: %v", err)
	}
	if got.Name != "renamed" || got.Priority != 99 {
		t.Errorf("GetFence after update = %+v, want renamed/99", got)
	}
}

func TestUpdateFence_NotFound(t *testing.T) {
	s := openTestStore(t)
	item := sampleItem("ghost", 0, 0)
	if err := s.UpdateFence(context.Background(), item); err != ErrFenceNotFound {
		t.Errorf("UpdateFence(ghost) err = %v, want ErrFenceNotFound", err)
	}
}

func TestDeleteFence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item := sampleItem("f1", 0, 0)
	s.AddFence(ctx, item)

	if err := s.DeleteFence(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFence failed: %v", err)
	}
	if _, err := s.GetFence(ctx, "f1"); err != ErrFenceNotFound {
		t.Errorf("GetFence after delete err = %v, want ErrFenceNotFound", err)
	}
}

func TestDeleteFence_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteFence(context.Background(), "ghost"); err != ErrFenceNotFound {
		t.Errorf("DeleteFence(ghost) err = %v, want ErrFenceNotFound", err)
	}
}

func TestListFences_OrderedByPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	low := sampleItem("low", 0, 0)
	low.Priority = 1
	high := sampleItem("high", 0, 0)
	high.Priority = 100

	s.AddFence(ctx, low)
	s.AddFence(ctx, high)

	items, err := s.ListFences(ctx)
	if err != nil {
		t.Fatalf("ListFences failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ListFences len = %d, want 2", len(items))
	}
	if items[0].ID != "high" {
		t.Errorf("ListFences[0].ID = %q, want high (higher priority first)", items[0].ID)
	}
}

func TestQueryAtPoint_SpatialPreFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	near := sampleItem("near", 39.9, 116.4)
	far := sampleItem("far", -10, -10)
	s.AddFence(ctx, near)
	s.AddFence(ctx, far)

	items, err := s.QueryAtPoint(ctx, 39.9, 116.4)
	if err != nil {
		t.Fatalf("QueryAtPoint failed: %v", err)
	}
	found := false
	for _, it := range items {
		if it.ID == "far" {
			t.Error("QueryAtPoint returned a fence far from the query point")
		}
		if it.ID == "near" {
			found = true
		}
	}
	if !found {
		t.Error("QueryAtPoint should return the fence near the query point")
	}
}

func TestManifest_SetAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if got, err := s.GetManifest(ctx); err != nil || got != nil {
		t.Fatalf("GetManifest on empty store = %v, %v, want nil, nil", got, err)
	}

	m := &distmodel.Manifest{Version: 3, Timestamp: 1700000000, SnapshotURL: "https://example.com/s.bin", SnapshotSize: 2048}
	if err := s.SetManifest(ctx, m); err != nil {
		t.Fatalf("SetManifest failed: %v", err)
	}

	got, err := s.GetManifest(ctx)
	if err != nil {
		t.Fatalf("GetManifest failed: %v", err)
	}
	if got == nil || got.Version != 3 || got.SnapshotURL != m.SnapshotURL {
		t.Errorf("GetManifest = %+v, want version 3 matching url", got)
	}
}

func TestVersion_SetAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.GetVersion(ctx)
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if v != 0 {
		t.Errorf("GetVersion on empty store = %d, want 0", v)
	}

	if err := s.SetVersion(ctx, 42); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	v, err = s.GetVersion(ctx)
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if v != 42 {
		t.Errorf("GetVersion = %d, want 42", v)
	}
}

func TestSnapshotSizeHuman(t *testing.T) {
	if got := SnapshotSizeHuman(nil); got != "0 B" {
		t.Errorf("SnapshotSizeHuman(nil) = %q, want \"0 B\"", got)
	}
	m := &distmodel.Manifest{SnapshotSize: 4200000}
	if got := SnapshotSizeHuman(m); got == "" {
		t.Error("SnapshotSizeHuman should not be empty for a populated manifest")
	}
}
