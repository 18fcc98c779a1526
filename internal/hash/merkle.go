package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"

	"github.com/veritaschain/vcp/internal/event"
)

// Domain separators per RFC 6962: leaves and internal nodes hash under
// distinct prefixes so a leaf can never be confused with a node.
var (
	leafPrefix = []byte{0x00}
	nodePrefix = []byte{0x01}
)

// OddNodePolicy controls what happens to the unpaired node when a tree
// level has an odd count. Producer and verifier must agree on this
// out-of-band; differing policies yield different roots for the same
// leaves.
type OddNodePolicy string

const (
	// PromoteOdd carries the unpaired node to the next level unchanged.
	// This is the reference behavior.
	PromoteOdd OddNodePolicy = "promote"
	// DuplicateOdd pairs the unpaired node with itself.
	DuplicateOdd OddNodePolicy = "duplicate"
)

func (p OddNodePolicy) Valid() bool {
	return p == PromoteOdd || p == DuplicateOdd
}

// parallelThreshold is the level width above which pairwise hashing is
// spread across GOMAXPROCS workers.
const parallelThreshold = 2048

// MerkleTree is a binary hash tree over an ordered list of event
// digests. Level 0 holds the leaf hashes; the last level holds the
// root.
type MerkleTree struct {
	policy OddNodePolicy
	levels [][][]byte
}

// LeafHash computes H(0x00 || digest) for a raw event digest.
func LeafHash(digest []byte) []byte {
	h := sha256.New()
	h.Write(leafPrefix)
	h.Write(digest)
	return h.Sum(nil)
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write(nodePrefix)
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// MerkleRoot computes the root over hex event digests without keeping
// the tree around. Empty input yields event.Genesis.
func MerkleRoot(hexDigests []string, policy OddNodePolicy) (string, error) {
	if len(hexDigests) == 0 {
		return event.Genesis, nil
	}
	tree, err := BuildMerkleTree(hexDigests, policy)
	if err != nil {
		return "", err
	}
	return tree.RootHex(), nil
}

// BuildMerkleTree builds the full tree from hex event digests, keeping
// every level for proof generation.
func BuildMerkleTree(hexDigests []string, policy OddNodePolicy) (*MerkleTree, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown odd-node policy: %q", policy)
	}
	if len(hexDigests) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree with no leaves")
	}

	level := make([][]byte, len(hexDigests))
	for i, hd := range hexDigests {
		raw, err := DecodeDigest(hd)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		level[i] = LeafHash(raw)
	}

	levels := [][][]byte{level}
	for len(level) > 1 {
		level = combineLevel(level, policy)
		levels = append(levels, level)
	}

	return &MerkleTree{policy: policy, levels: levels}, nil
}

// combineLevel hashes adjacent pairs into the next level. Pairwise
// hashing is independent per pair, so wide levels are split across
// workers.
func combineLevel(level [][]byte, policy OddNodePolicy) [][]byte {
	pairs := len(level) / 2
	odd := len(level)%2 == 1

	next := make([][]byte, pairs, pairs+1)

	if pairs >= parallelThreshold {
		workers := runtime.GOMAXPROCS(0)
		chunk := (pairs + workers - 1) / workers
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			start := w * chunk
			end := start + chunk
			if end > pairs {
				end = pairs
			}
			if start >= end {
				break
			}
			wg.Add(1)
			go func(start, end int) {
				defer wg.Done()
				for i := start; i < end; i++ {
					next[i] = nodeHash(level[2*i], level[2*i+1])
				}
			}(start, end)
		}
		wg.Wait()
	} else {
		for i := 0; i < pairs; i++ {
			next[i] = nodeHash(level[2*i], level[2*i+1])
		}
	}

	if odd {
		last := level[len(level)-1]
		switch policy {
		case DuplicateOdd:
			next = append(next, nodeHash(last, last))
		default:
			next = append(next, last)
		}
	}

	return next
}

func (t *MerkleTree) Root() []byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

func (t *MerkleTree) RootHex() string {
	return hex.EncodeToString(t.Root())
}

func (t *MerkleTree) LeafCount() int {
	return len(t.levels[0])
}

// MerkleProof is an inclusion proof: the sibling path from one leaf up
// to the root.
type MerkleProof struct {
	LeafIndex int      `json:"leaf_index"`
	LeafHash  string   `json:"leaf_hash"`
	Siblings  []string `json:"siblings"`
	Lefts     []bool   `json:"lefts"` // true when the sibling sits to the left
	Root      string   `json:"root"`
}

// Proof builds the inclusion proof for the leaf at index. Only valid
// for trees built with the PromoteOdd policy, where a promoted node
// simply has no sibling at that level.
func (t *MerkleTree) Proof(index int) (*MerkleProof, error) {
	if index < 0 || index >= t.LeafCount() {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, t.LeafCount())
	}
	if t.policy != PromoteOdd {
		return nil, fmt.Errorf("inclusion proofs require the %q odd-node policy", PromoteOdd)
	}

	proof := &MerkleProof{
		LeafIndex: index,
		LeafHash:  hex.EncodeToString(t.levels[0][index]),
		Root:      t.RootHex(),
	}

	idx := index
	for l := 0; l < len(t.levels)-1; l++ {
		level := t.levels[l]
		var sibling int
		left := false
		if idx%2 == 0 {
			sibling = idx + 1
		} else {
			sibling = idx - 1
			left = true
		}
		if sibling < len(level) {
			proof.Siblings = append(proof.Siblings, hex.EncodeToString(level[sibling]))
			proof.Lefts = append(proof.Lefts, left)
			idx = idx / 2
		} else {
			// Promoted node: keeps its position at the next level.
			idx = idx / 2
		}
	}

	return proof, nil
}

// Verify recomputes the root from the leaf hash and sibling path.
func (p *MerkleProof) Verify() (bool, error) {
	current, err := hex.DecodeString(p.LeafHash)
	if err != nil {
		return false, fmt.Errorf("invalid leaf hash: %w", err)
	}

	for i, sib := range p.Siblings {
		raw, err := hex.DecodeString(sib)
		if err != nil {
			return false, fmt.Errorf("invalid sibling hash at %d: %w", i, err)
		}
		if p.Lefts[i] {
			current = nodeHash(raw, current)
		} else {
			current = nodeHash(current, raw)
		}
	}

	want, err := hex.DecodeString(p.Root)
	if err != nil {
		return false, fmt.Errorf("invalid root hash: %w", err)
	}
	return bytes.Equal(current, want), nil
}
