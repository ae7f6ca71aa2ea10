package imageprocessor

import (
	"fmt"
	"image"
	"strings"

	"github.com/corona10/goimagehash"

	"imagededup/types"
)

// Hasher computes mean-hash fingerprints over a size x size grid
type Hasher struct {
	size int
}

// NewHasher creates a Hasher. size must be a positive multiple of 8 so the
// grid fills whole 64-bit words.
func NewHasher(size int) (*Hasher, error) {
	if size < 8 || size%8 != 0 {
		return nil, fmt.Errorf("hash size must be a positive multiple of 8 (got %d)", size)
	}
	return &Hasher{size: size}, nil
}

// Hash computes the fingerprint of img. The encoding carries the grid size so
// fingerprints made with different sizes never compare equal.
func (h *Hasher) Hash(img image.Image) (types.Fingerprint, error) {
	if img == nil {
		return "", fmt.Errorf("cannot compute hash for empty image")
	}

	hash, err := goimagehash.ExtAverageHash(img, h.size, h.size)
	if err != nil {
		return "", fmt.Errorf("compute average hash: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "a%d:", h.size)
	for _, word := range hash.GetHash() {
		fmt.Fprintf(&sb, "%016x", word)
	}
	return types.Fingerprint(sb.String()), nil
}
