package jobs

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"golang.org/x/time/rate"

	"github.com/brightloom/reelvault/internal/config"
)

func xxhashStr(s string) uint64 {
	return xxhash.Sum64String(s)
}

// BudgetGovernor enforces the per-device and per-library concurrency caps
// plus the metadata provider QPS cap from spec.md §4.4. It has no global
// per-kind concurrency cap.
type BudgetGovernor struct {
	cfg config.OrchestratorConfig

	mu          sync.Mutex
	deviceShard *rendezvous.Rendezvous
	deviceSems  []chan struct{}
	librarySems map[string]chan struct{}

	metadataLimiter *rate.Limiter
}

// deviceShardCount bounds the number of per-device scan-cap semaphores so
// the structure stays small and stable as devices churn, instead of one
// semaphore per device_id in an unbounded map.
const deviceShardCount = 32

func NewBudgetGovernor(cfg config.OrchestratorConfig) *BudgetGovernor {
	nodes := make([]string, deviceShardCount)
	sems := make([]chan struct{}, deviceShardCount)
	for i := range nodes {
		nodes[i] = shardName(i)
		sems[i] = make(chan struct{}, cfg.PerDeviceScanCap)
	}
	return &BudgetGovernor{
		cfg:             cfg,
		deviceShard:     rendezvous.New(nodes, xxhashStr),
		deviceSems:      sems,
		librarySems:     make(map[string]chan struct{}),
		metadataLimiter: rate.NewLimiter(rate.Limit(cfg.MetadataQPS), cfg.MetadataBurst),
	}
}

func shardName(i int) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[i/16], hex[i%16]})
}

// AcquireDeviceSlot blocks until a scan slot opens for the device owning
// the given fingerprint's device_id, returning a release function.
func (b *BudgetGovernor) AcquireDeviceSlot(deviceKey string) (release func()) {
	shard := b.deviceShard.Lookup(deviceKey)
	idx := shardIndex(shard)
	sem := b.deviceSems[idx]
	sem <- struct{}{}
	return func() { <-sem }
}

func shardIndex(shard string) int {
	const hex = "0123456789abcdef"
	hi := indexOf(hex, shard[0])
	lo := indexOf(hex, shard[1])
	return hi*16 + lo
}

func indexOf(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return 0
}

// AcquireLibrarySlot enforces the per-library in-flight cap: each
// library gets its own bounded semaphore sized PerLibraryInFlight, created
// lazily on first use.
func (b *BudgetGovernor) AcquireLibrarySlot(libraryID string) (release func()) {
	b.mu.Lock()
	sem, ok := b.librarySems[libraryID]
	if !ok {
		sem = make(chan struct{}, b.cfg.PerLibraryInFlight)
		b.librarySems[libraryID] = sem
	}
	b.mu.Unlock()

	sem <- struct{}{}
	return func() { <-sem }
}

// AllowMetadataRequest reports whether a MetadataEnrich provider call may
// proceed under the shared QPS token bucket (<=100 req/s by default).
func (b *BudgetGovernor) AllowMetadataRequest() bool {
	return b.metadataLimiter.Allow()
}
