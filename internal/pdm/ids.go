package pdm

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator produces lexicographically sortable identifiers, so
// notification ledgers stay in creation order even after a merge of
// concurrently produced entries. Safe for concurrent use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *mathrand.Rand
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: mathrand.New(mathrand.NewSource(time.Now().UnixNano()))}
}

func (g *ULIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
