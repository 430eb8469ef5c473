// Package ids generates lexicographically sortable identifiers for storage
// row keys. Audit ids are plain UUIDs and live in the registry package;
// ULIDs are used where insertion order matters to the backing store.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a fresh ULID string. Safe for concurrent use.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
