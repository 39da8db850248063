package matching

import (
	"container/list"
	"hash/fnv"
	"sync"

	"github.com/mdmcore/resolve/internal/model"
)

// cacheKey identifies one memoized comparator invocation: a cache keyed
// by (comparator_id, normalized_left, normalized_right).
type cacheKey struct {
	comparatorID string
	left         string
	right        string
}

// ScoreCache memoizes comparator results. It is sharded to reduce lock
// contention under the Pipeline Orchestrator's worker pool, and each
// shard evicts least-recently-used entries once it reaches its
// capacity. Standard-library container/list is used for the LRU
// ordering; no third-party cache package appears anywhere in the
// example corpus.
type ScoreCache struct {
	shards    []*cacheShard
	shardMask uint32
}

const defaultShardCount = 16

type cacheShard struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

type cacheEntry struct {
	key   cacheKey
	score float64
}

// NewScoreCache builds a ScoreCache with the given total capacity,
// spread evenly across shards.
func NewScoreCache(capacity int) *ScoreCache {
	if capacity <= 0 {
		capacity = 1
	}
	shardCap := capacity / defaultShardCount
	if shardCap < 1 {
		shardCap = 1
	}
	c := &ScoreCache{shardMask: defaultShardCount - 1}
	c.shards = make([]*cacheShard, defaultShardCount)
	for i := range c.shards {
		c.shards[i] = &cacheShard{
			capacity: shardCap,
			ll:       list.New(),
			items:    make(map[cacheKey]*list.Element),
		}
	}
	return c
}

func (c *ScoreCache) shardFor(key cacheKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key.comparatorID))
	h.Write([]byte{0})
	h.Write([]byte(key.left))
	h.Write([]byte{0})
	h.Write([]byte(key.right))
	return c.shards[h.Sum32()&c.shardMask]
}

// Get returns the memoized score for (comparatorID, left, right), if
// present.
func (c *ScoreCache) Get(comparatorID string, left, right model.Value) (float64, bool) {
	key := normalizedKey(comparatorID, left, right)
	shard := c.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	el, ok := shard.items[key]
	if !ok {
		return 0, false
	}
	shard.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).score, true
}

// Put memoizes the score for (comparatorID, left, right), evicting the
// shard's least-recently-used entry if at capacity.
func (c *ScoreCache) Put(comparatorID string, left, right model.Value, score float64) {
	key := normalizedKey(comparatorID, left, right)
	shard := c.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if el, ok := shard.items[key]; ok {
		el.Value.(*cacheEntry).score = score
		shard.ll.MoveToFront(el)
		return
	}

	el := shard.ll.PushFront(&cacheEntry{key: key, score: score})
	shard.items[key] = el

	if shard.ll.Len() > shard.capacity {
		oldest := shard.ll.Back()
		if oldest != nil {
			shard.ll.Remove(oldest)
			delete(shard.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// normalizedKey canonicalizes pair order by value string so that
// comparators known to be symmetric reuse cache entries regardless of
// which record is "left". Comparators are assumed symmetric; asymmetric
// custom comparators should use distinct ids.
func normalizedKey(comparatorID string, left, right model.Value) cacheKey {
	l, r := left.AsString(), right.AsString()
	if l > r {
		l, r = r, l
	}
	return cacheKey{comparatorID: comparatorID, left: l, right: r}
}
