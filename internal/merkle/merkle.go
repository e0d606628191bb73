// Package merkle builds and verifies the Merkle trees that back settlement batches.
//
// Leaves commit to one beneficiary entry:
//
//	leaf = Keccak256(account[20] || asset[20] || uint256(amount))
//
// Interior nodes hash their children in sorted order, so a proof is just the
// list of sibling hashes from leaf to root and carries no position bits:
//
//	parent = Keccak256(min(a, b) || max(a, b))
//
// A node without a sibling at any level is paired with itself rather than
// promoted. Builder and verifier share HashPair, so both sides agree bit for bit.
package merkle

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// AmountWidth is the encoded width of an amount inside a leaf.
const AmountWidth = 32

var (
	ErrNoLeaves     = errors.New("merkle: tree needs at least one leaf")
	ErrLeafIndex    = errors.New("merkle: leaf index out of range")
	ErrNegativeLeaf = errors.New("merkle: amount must not be negative")
)

// Entry is one beneficiary line of a batch.
type Entry struct {
	Account common.Address
	Asset   common.Address
	Amount  int64
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// EncodeLeaf returns the packed leaf preimage: account || asset || amount as a
// 32-byte big-endian integer.
func EncodeLeaf(account, asset common.Address, amount int64) ([]byte, error) {
	if amount < 0 {
		return nil, ErrNegativeLeaf
	}
	buf := make([]byte, 0, 2*common.AddressLength+AmountWidth)
	buf = append(buf, account.Bytes()...)
	buf = append(buf, asset.Bytes()...)

	var word [AmountWidth]byte
	v := uint64(amount)
	for i := AmountWidth - 1; i >= AmountWidth-8; i-- {
		word[i] = byte(v)
		v >>= 8
	}
	return append(buf, word[:]...), nil
}

// LeafHash hashes a single entry. Negative amounts cannot appear in a batch and
// hash to the zero value, which never matches a real root.
func LeafHash(account, asset common.Address, amount int64) common.Hash {
	preimage, err := EncodeLeaf(account, asset, amount)
	if err != nil {
		return common.Hash{}
	}
	return Keccak256(preimage)
}

// HashPair combines two nodes independent of their order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Keccak256(a[:], b[:])
}

// Verify reports whether proof reconstructs root from leaf.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed == root
}

// Tree keeps every level of a built tree so proofs can be produced for any leaf.
// levels[0] holds the leaves, the last level holds the root.
type Tree struct {
	levels [][]common.Hash
}

// Build constructs a tree over leaves in the given order.
func Build(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]common.Hash{level}

	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left // lone node pairs with itself
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashPair(left, right))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// BuildFromEntries hashes entries into leaves and builds the tree over them.
func BuildFromEntries(entries []Entry) (*Tree, error) {
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		if e.Amount < 0 {
			return nil, fmt.Errorf("entry %d: %w", i, ErrNegativeLeaf)
		}
		leaves[i] = LeafHash(e.Account, e.Asset, e.Amount)
	}
	return Build(leaves)
}

// Root returns the tree's root hash.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Leaf returns the leaf hash at index.
func (t *Tree) Leaf(index int) (common.Hash, error) {
	if index < 0 || index >= t.Len() {
		return common.Hash{}, ErrLeafIndex
	}
	return t.levels[0][index], nil
}

// Proof returns the sibling path for the leaf at index, leaf to root.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= t.Len() {
		return nil, ErrLeafIndex
	}

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		proof = append(proof, level[sibling])
		index /= 2
	}
	return proof, nil
}
