package core

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixWallet      = "wal_"
	PrefixCategory    = "cat_"
	PrefixTransaction = "txn_"
	PrefixTransfer    = "trf_"
	PrefixEvent       = "evt_"
	PrefixRequest     = "req_"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a sortable identifier with the given prefix.
func NewID(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
