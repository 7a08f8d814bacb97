package memory

import "math"

const (
	// DefaultBuckets is the bucket count of the kernel's shared registry.
	DefaultBuckets = 256

	// LoadThreshold is the load factor above which a table rehashes.
	// 0.75 is also the target load factor after a rehash.
	LoadThreshold = 0.75

	minBuckets       = 8
	initialBucketCap = 4
)

// Hash is the default djb2 hash over the raw bytes of key.
func Hash(key string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(key); i++ {
		h = ((h << 5) + h) + uint64(key[i])
	}
	return h
}

type slot[V any] struct {
	key   string
	value V
}

// Table is an open-hashing map from string keys to V. Each bucket is a
// growable slice, so removing a key never moves keys in other buckets.
//
// Every operation first checks the load factor and rehashes when it is above
// the threshold, lookups included. The rehash is maintenance and does not
// affect the outcome of the operation that triggered it.
//
// Table is not safe for concurrent use.
type Table[V any] struct {
	buckets   [][]slot[V]
	count     int
	threshold float64
	hash      func(string) uint64
	onRehash  func(from, to int)
}

// TableOption configures a Table.
type TableOption func(*tableOptions)

type tableOptions struct {
	threshold float64
	hash      func(string) uint64
	onRehash  func(from, to int)
}

// WithLoadThreshold overrides LoadThreshold.
func WithLoadThreshold(threshold float64) TableOption {
	return func(o *tableOptions) {
		if threshold > 0 {
			o.threshold = threshold
		}
	}
}

// WithHash overrides the djb2 hash function.
func WithHash(hash func(string) uint64) TableOption {
	return func(o *tableOptions) {
		if hash != nil {
			o.hash = hash
		}
	}
}

// WithRehashHook registers fn to be called after every rehash.
func WithRehashHook(fn func(from, to int)) TableOption {
	return func(o *tableOptions) {
		o.onRehash = fn
	}
}

// NewTable creates a table with the given number of buckets.
func NewTable[V any](buckets int, opts ...TableOption) *Table[V] {
	o := tableOptions{threshold: LoadThreshold, hash: Hash}
	for _, opt := range opts {
		opt(&o)
	}
	if buckets <= 0 {
		buckets = minBuckets
	}
	return &Table[V]{
		buckets:   make([][]slot[V], buckets),
		threshold: o.threshold,
		hash:      o.hash,
		onRehash:  o.onRehash,
	}
}

// Len returns the number of stored keys.
func (t *Table[V]) Len() int { return t.count }

// Buckets returns the current bucket count.
func (t *Table[V]) Buckets() int { return len(t.buckets) }

// LoadFactor returns entries per bucket.
func (t *Table[V]) LoadFactor() float64 {
	if len(t.buckets) == 0 {
		return 0
	}
	return float64(t.count) / float64(len(t.buckets))
}

func (t *Table[V]) maintain() {
	if t.LoadFactor() > t.threshold {
		t.Rehash(t.threshold)
	}
}

func (t *Table[V]) index(key string) int {
	return int(t.hash(key) % uint64(len(t.buckets)))
}

// Get returns the value stored under key.
func (t *Table[V]) Get(key string) (V, bool) {
	t.maintain()
	for _, s := range t.buckets[t.index(key)] {
		if s.key == key {
			return s.value, true
		}
	}
	var zero V
	return zero, false
}

// Set stores value under key, overwriting in place. It returns the previous
// value and whether one existed.
func (t *Table[V]) Set(key string, value V) (V, bool) {
	t.maintain()
	idx := t.index(key)
	b := t.buckets[idx]
	for i := range b {
		if b[i].key == key {
			old := b[i].value
			b[i].value = value
			return old, true
		}
	}
	if b == nil {
		b = make([]slot[V], 0, initialBucketCap)
	}
	t.buckets[idx] = append(b, slot[V]{key: key, value: value})
	t.count++

	var zero V
	return zero, false
}

// Delete removes key and returns its value. The bucket is compacted and
// released when it becomes empty.
func (t *Table[V]) Delete(key string) (V, bool) {
	t.maintain()
	idx := t.index(key)
	b := t.buckets[idx]
	for i := range b {
		if b[i].key != key {
			continue
		}
		old := b[i].value
		copy(b[i:], b[i+1:])
		b[len(b)-1] = slot[V]{}
		b = b[:len(b)-1]
		if len(b) == 0 {
			b = nil
		}
		t.buckets[idx] = b
		t.count--
		return old, true
	}
	var zero V
	return zero, false
}

// Range calls fn for every entry until fn returns false. Order follows
// buckets, then insertion order within a bucket. fn must not mutate t.
func (t *Table[V]) Range(fn func(key string, value V) bool) {
	for _, b := range t.buckets {
		for _, s := range b {
			if !fn(s.key, s.value) {
				return
			}
		}
	}
}

// Rehash rebuilds the bucket array so that the load factor is at most
// target. The bucket count never drops below 8.
func (t *Table[V]) Rehash(target float64) {
	if target <= 0 {
		target = t.threshold
	}
	size := int(math.Ceil(float64(t.count) / target))
	if size < minBuckets {
		size = minBuckets
	}

	from := len(t.buckets)
	buckets := make([][]slot[V], size)
	for _, b := range t.buckets {
		for _, s := range b {
			idx := int(t.hash(s.key) % uint64(size))
			if buckets[idx] == nil {
				buckets[idx] = make([]slot[V], 0, initialBucketCap)
			}
			buckets[idx] = append(buckets[idx], s)
		}
	}
	t.buckets = buckets

	if t.onRehash != nil {
		t.onRehash(from, size)
	}
}

// Clear drops every entry and resets the table to n buckets.
func (t *Table[V]) Clear(n int) {
	if n <= 0 {
		n = minBuckets
	}
	t.buckets = make([][]slot[V], n)
	t.count = 0
}
