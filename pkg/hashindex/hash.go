package hashindex

import "github.com/cespare/xxhash/v2"

// hashKey computes the 64-bit hash used to place a key in the table. The
// hash must be deterministic within a process lifetime; xxhash requires
// no seed management, matching how the teacher uses it for its SSTable
// block and footer checksums.
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}
