package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// New returns a sortable identifier tagged with kind, e.g. "att_01J9...".
// An empty kind yields the bare ULID.
func New(kind string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	if kind == "" {
		return id.String()
	}
	return kind + "_" + id.String()
}

// Time extracts the creation instant of an identifier produced by New.
func Time(id string) (time.Time, bool) {
	if i := len(id) - ulid.EncodedSize; i > 0 {
		id = id[i:]
	}
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
