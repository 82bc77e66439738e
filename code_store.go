package handoff

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/practiceline/handoff/internal/stores"
)

// NewRedisCodeStore returns the production [CodeStore]. The client may be a
// single node, sentinel or cluster client.
func NewRedisCodeStore(client redis.UniversalClient, prefix string) CodeStore {
	return stores.NewHandoffStore(client, prefix)
}

// NewMemoryCodeStore returns a process-local [CodeStore] for tests and
// single-process development. Codes do not survive a restart and are not
// shared between replicas.
func NewMemoryCodeStore() CodeStore {
	return stores.NewMemoryHandoffStore()
}

// NewMemoryCodeStoreWithClock is NewMemoryCodeStore with an injected clock.
func NewMemoryCodeStoreWithClock(now func() time.Time) CodeStore {
	return stores.NewMemoryHandoffStore().WithClock(now)
}
