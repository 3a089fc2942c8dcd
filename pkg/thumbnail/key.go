package thumbnail

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one rendering of one version of a file. A new modification time gives a new key; the entry under
// the old key is never looked up again and leaves the cache through LRU eviction.
type Key uint64

// NewKey digests the absolute path, the modification time in nanoseconds and the target box.
func NewKey(absPath string, modTimeNanos int64, width, height int) Key {
	digest := xxhash.New()
	_, _ = digest.WriteString(absPath)
	var suffix [1 + 3*8]byte
	suffix[0] = 0 // Separates the path from the numbers, since paths never hold a NUL byte.
	binary.LittleEndian.PutUint64(suffix[1:], uint64(modTimeNanos))
	binary.LittleEndian.PutUint64(suffix[9:], uint64(width))
	binary.LittleEndian.PutUint64(suffix[17:], uint64(height))
	_, _ = digest.Write(suffix[:])
	return Key(digest.Sum64())
}

func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}
