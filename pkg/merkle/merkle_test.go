package merkle

import (
	"testing"

	"github.com/iannil/geofence-engine/pkg/distmodel"
)

func testItems() []distmodel.DistFenceItem {
	return []distmodel.DistFenceItem{
		{
			ID:       "test-001",
			Priority: 50,
			Name:     "Test Fence 1",
			Shapes: []distmodel.DistShape{
				{Kind: distmodel.ShapeKindCircle, Center: &distmodel.DistVertex{LatDeg: 39.0, LonDeg: 116.0}, RadiusM: 500},
			},
		},
		{
			ID:       "test-002",
			Priority: 100,
			Name:     "Test Fence 2",
			Shapes: []distmodel.DistShape{
				{Kind: distmodel.ShapeKindCircle, Center: &distmodel.DistVertex{LatDeg: 40.0, LonDeg: 117.0}, RadiusM: 1000},
			},
		},
	}
}

func TestNewTree(t *testing.T) {
	tree, err := NewTree(testItems())
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	if tree == nil {
		t.Fatal("tree is nil")
	}

	rootHash := tree.RootHash()
	var zero Hash
	if rootHash == zero {
		t.Error("root hash should not be zero for a non-empty tree")
	}
}

func TestEmptyTree(t *testing.T) {
	tree, err := NewTree(nil)
	if err != nil {
		t.Fatalf("NewTree with empty fences failed: %v", err)
	}
	if tree == nil {
		t.Fatal("tree is nil")
	}

	rootHash := tree.RootHash()
	var emptyHash Hash
	if rootHash != emptyHash {
		t.Errorf("expected empty root hash, got %x", rootHash)
	}
}

func TestRootHash_Deterministic(t *testing.T) {
	items := testItems()[:1]

	tree1, err := NewTree(items)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	tree2, err := NewTree(items)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	if tree1.RootHash() != tree2.RootHash() {
		t.Errorf("root hashes differ: %x != %x", tree1.RootHash(), tree2.RootHash())
	}
}

func TestRootHash_OrderIndependent(t *testing.T) {
	items := testItems()
	reversed := []distmodel.DistFenceItem{items[1], items[0]}

	tree1, err := NewTree(items)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	tree2, err := NewTree(reversed)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	if tree1.RootHash() != tree2.RootHash() {
		t.Error("root hash should not depend on item order")
	}
}

func TestGetProof(t *testing.T) {
	tree, err := NewTree(testItems()[:1])
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	proof, err := tree.GetProof("test-001")
	if err != nil {
		t.Fatalf("GetProof failed: %v", err)
	}
	if len(proof) != 0 {
		t.Errorf("expected empty proof for single node, got %d elements", len(proof))
	}
}

func TestGetProof_NotFound(t *testing.T) {
	tree, err := NewTree(nil)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	if _, err := tree.GetProof("nonexistent"); err == nil {
		t.Error("expected error for nonexistent fence")
	}
}

func TestComputeRootHash_MatchesTree(t *testing.T) {
	items := testItems()

	tree, err := NewTree(items)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	direct, err := ComputeRootHash(items)
	if err != nil {
		t.Fatalf("ComputeRootHash failed: %v", err)
	}

	if tree.RootHash() != direct {
		t.Errorf("ComputeRootHash = %x, want %x", direct, tree.RootHash())
	}
}

func TestHashFromString_RoundTrip(t *testing.T) {
	items := testItems()[:1]
	tree, err := NewTree(items)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	s := tree.RootHash().String()
	h, err := HashFromString(s)
	if err != nil {
		t.Fatalf("HashFromString failed: %v", err)
	}
	if h != tree.RootHash() {
		t.Errorf("round-tripped hash = %x, want %x", h, tree.RootHash())
	}
}
