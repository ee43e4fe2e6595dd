package simulator

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// runIDs mints sortable run ids. ulid's monotonic entropy is not safe for
// concurrent use, so reads are serialized.
type runIDs struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newRunIDs() *runIDs {
	return &runIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (r *runIDs) next(now time.Time) string {
	r.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), r.entropy)
	r.mu.Unlock()
	return "run_" + strings.ToLower(id.String())
}
