// Package merkle provides a merkle tree over hex encoded leaf values so a
// block can commit to the set of transactions it carries.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNoLeaves is returned when a tree is requested over no values.
var ErrNoLeaves = errors.New("cannot construct tree with no content")

// Step is one sibling hash along the path from a leaf to the root.
type Step struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// =============================================================================

// Root calculates the merkle root of the values. The values are hashed as
// leaves and an odd leaf at any level is paired with itself.
func Root(values []string) (string, error) {
	level, err := leaves(values)
	if err != nil {
		return "", err
	}

	for len(level) > 1 {
		level = next(level)
	}

	return hexutil.Encode(level[0]), nil
}

// Proof returns the sibling path for the value at index.
func Proof(values []string, index int) ([]Step, error) {
	level, err := leaves(values)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(values) {
		return nil, fmt.Errorf("index %d out of range", index)
	}

	var proof []Step
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		sibling := index ^ 1
		proof = append(proof, Step{
			Hash: hexutil.Encode(level[sibling]),
			Left: sibling < index,
		})

		index /= 2
		level = next(level)
	}

	return proof, nil
}

// Verify checks the value belongs to the tree with the specified root.
func Verify(value string, proof []Step, root string) bool {
	want, err := hexutil.Decode(root)
	if err != nil {
		return false
	}

	h := sum([]byte(value))
	for _, step := range proof {
		sib, err := hexutil.Decode(step.Hash)
		if err != nil {
			return false
		}

		switch step.Left {
		case true:
			h = sum(sib, h)
		default:
			h = sum(h, sib)
		}
	}

	return bytes.Equal(h, want)
}

// =============================================================================

func leaves(values []string) ([][]byte, error) {
	if len(values) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([][]byte, len(values))
	for i, v := range values {
		level[i] = sum([]byte(v))
	}

	return level, nil
}

func next(level [][]byte) [][]byte {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}

	out := make([][]byte, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		out = append(out, sum(level[i], level[i+1]))
	}

	return out
}

func sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
