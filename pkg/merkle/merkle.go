// Package merkle provides a Merkle tree over a DistFenceSet's items, used
// to compute the manifest's root hash and to support inclusion proofs
// without shipping the whole fence set.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/iannil/geofence-engine/pkg/distmodel"
)

// HashSize is the size of a SHA-256 hash in bytes.
const HashSize = sha256.Size

// Hash is a SHA-256 hash.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashFromString parses a hex-encoded hash.
func HashFromString(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("merkle: invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("merkle: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Node is a node in the Merkle tree.
type Node struct {
	Hash  Hash
	Left  *Node
	Right *Node
	Leaf  bool

	// LeafID is the fence item ID if this is a leaf node.
	LeafID string
}

// Tree is a Merkle tree over a DistFenceSet's items, keyed by item ID.
type Tree struct {
	root   *Node
	leaves map[string]*Node
	mu     sync.RWMutex
}

// NewTree builds a Merkle tree from a fence set's items, sorted by ID for
// a deterministic root hash regardless of input order.
func NewTree(items []distmodel.DistFenceItem) (*Tree, error) {
	t := &Tree{leaves: make(map[string]*Node)}
	if len(items) == 0 {
		return t, nil
	}

	sorted := make([]distmodel.DistFenceItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	leaves := make([]*Node, 0, len(sorted))
	for _, item := range sorted {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("merkle: marshal fence %s: %w", item.ID, err)
		}
		h := sha256.Sum256(data)
		node := &Node{Hash: h, Leaf: true, LeafID: item.ID}
		t.leaves[item.ID] = node
		leaves = append(leaves, node)
	}

	t.root = buildTree(leaves)
	return t, nil
}

func buildTree(nodes []*Node) *Node {
	if len(nodes) == 0 {
		return nil
	}
	for len(nodes) > 1 {
		var level []*Node
		for i := 0; i < len(nodes); i += 2 {
			left := nodes[i]
			var right *Node
			if i+1 < len(nodes) {
				right = nodes[i+1]
			}

			h := sha256.New()
			h.Write(left.Hash[:])
			if right != nil {
				h.Write(right.Hash[:])
			}
			var parentHash Hash
			copy(parentHash[:], h.Sum(nil))

			level = append(level, &Node{Hash: parentHash, Left: left, Right: right})
		}
		nodes = level
	}
	return nodes[0]
}

// RootHash returns the tree's root hash, the zero hash for an empty tree.
func (t *Tree) RootHash() Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return Hash{}
	}
	return t.root.Hash
}

// GetProof returns the sibling hashes from fenceID's leaf up to the root.
func (t *Tree) GetProof(fenceID string) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, ok := t.leaves[fenceID]
	if !ok {
		return nil, fmt.Errorf("merkle: fence not found: %s", fenceID)
	}

	var proof [][]byte
	current := leaf
	for current != t.root {
		parent := findParent(t.root, current)
		if parent == nil {
			break
		}
		var sibling []byte
		if parent.Left == current {
			if parent.Right != nil {
				sibling = parent.Right.Hash[:]
			}
		} else {
			sibling = parent.Left.Hash[:]
		}
		if len(sibling) > 0 {
			proof = append(proof, sibling)
		}
		current = parent
	}
	return proof, nil
}

func findParent(node, child *Node) *Node {
	if node == nil || node.Leaf {
		return nil
	}
	if node.Left == child || node.Right == child {
		return node
	}
	if p := findParent(node.Left, child); p != nil {
		return p
	}
	return findParent(node.Right, child)
}

// VerifyProof recomputes the root hash from fenceData and its sibling
// proof and compares it to rootHash.
func VerifyProof(fenceData []byte, proof [][]byte, rootHash Hash) bool {
	currentHash := sha256.Sum256(fenceData)
	for _, sibling := range proof {
		h := sha256.New()
		h.Write(currentHash[:])
		h.Write(sibling)
		currentHash = sha256.Sum256(h.Sum(nil))
	}
	return currentHash == rootHash
}

// ComputeRootHash is a convenience wrapper returning just the root hash of
// a fence set's items.
func ComputeRootHash(items []distmodel.DistFenceItem) (Hash, error) {
	t, err := NewTree(items)
	if err != nil {
		return Hash{}, err
	}
	return t.RootHash(), nil
}
