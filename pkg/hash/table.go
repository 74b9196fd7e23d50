package hash

import (
	"fmt"
	"sync"

	"pagestore/pkg/buffer"
	"pagestore/pkg/config"
	"pagestore/pkg/entry"
	"pagestore/pkg/txn"
)

// HashTable is a disk-resident extendible hash index: a header page routes
// a key's hash to a directory page, which routes to a bucket page holding
// the key/value entries. A coarse reader/writer lock layers above the
// pool's page latches, serializing structural changes while letting reads
// proceed concurrently with each other.
type HashTable struct {
	mu sync.RWMutex

	pool *buffer.Pool
	hash Hasher
	cmp  Comparator

	headerID      int64
	maxDepthH     int
	maxDepthD     int
	maxBucketSize int
}

// Option configures a HashTable at construction.
type Option func(*HashTable)

// WithHasher overrides the default hasher (XxHasher).
func WithHasher(h Hasher) Option {
	return func(t *HashTable) { t.hash = h }
}

// WithComparator overrides the default comparator (IntCompare).
func WithComparator(c Comparator) Option {
	return func(t *HashTable) { t.cmp = c }
}

// New constructs a HashTable backed by pool, allocating and initializing a
// fresh header page with 2^headerMaxDepth directory slots. Every directory
// created under this header uses dirMaxDepth and bucketMaxSize, the latter
// capped at MaxBucketEntries.
func New(pool *buffer.Pool, headerMaxDepth, dirMaxDepth, bucketMaxSize int, opts ...Option) (*HashTable, error) {
	if bucketMaxSize <= 0 || bucketMaxSize > MaxBucketEntries {
		return nil, fmt.Errorf("hash: bucket max size %d exceeds page capacity %d", bucketMaxSize, MaxBucketEntries)
	}
	if dirMaxDepth < 0 || dirHeaderSize+dirSlots(dirMaxDepth)*(1+dirIDSize) > config.PageSize {
		return nil, fmt.Errorf("hash: directory max depth %d does not fit in one page", dirMaxDepth)
	}

	id, guard, err := pool.NewPageGuarded()
	if err != nil {
		return nil, fmt.Errorf("hash: allocate header page: %w", err)
	}
	wg := guard.UpgradeWrite()
	initHeader(wg.Bytes(), headerMaxDepth)
	wg.SetDirty(true)
	wg.Drop()

	t := &HashTable{
		pool:          pool,
		hash:          XxHasher,
		cmp:           IntCompare,
		headerID:      id,
		maxDepthH:     headerMaxDepth,
		maxDepthD:     dirMaxDepth,
		maxBucketSize: bucketMaxSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *HashTable) headerSlot(h uint32) int {
	if t.maxDepthH == 0 {
		return 0
	}
	return int(h >> uint(32-t.maxDepthH))
}

// GetValue looks up key, returning its value and true if present. The
// transaction handle is accepted but not interpreted.
func (t *HashTable) GetValue(_ *txn.Transaction, key int64) (int64, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h := t.hash(key)
	headerGuard, err := t.pool.FetchPageRead(t.headerID)
	if err != nil {
		return 0, false, fmt.Errorf("hash: fetch header: %w", err)
	}
	dirID := headerDirID(headerGuard.Bytes(), t.headerSlot(h))
	headerGuard.Drop()
	if dirID == invalidID {
		return 0, false, nil
	}

	dirGuard, err := t.pool.FetchPageRead(dirID)
	if err != nil {
		return 0, false, fmt.Errorf("hash: fetch directory: %w", err)
	}
	buf := dirGuard.Bytes()
	maxDepthD := dirMaxDepth(buf)
	globalDepth := dirGlobalDepth(buf)
	slot := int(h) & (dirSlots(globalDepth) - 1)
	bucketID := dirBucketID(buf, maxDepthD, slot)
	dirGuard.Drop()
	if bucketID == invalidID {
		return 0, false, nil
	}

	bucketGuard, err := t.pool.FetchPageRead(bucketID)
	if err != nil {
		return 0, false, fmt.Errorf("hash: fetch bucket: %w", err)
	}
	defer bucketGuard.Drop()
	bbuf := bucketGuard.Bytes()
	n := bucketSize(bbuf)
	for i := 0; i < n; i++ {
		e := bucketEntryAt(bbuf, i)
		if t.cmp(e.Key, key) == 0 {
			return e.Value, true, nil
		}
	}
	return 0, false, nil
}

// Insert adds key/value, reporting false without error if key is already
// present, and an error only when the pool or the table has run out of
// capacity (directory at max depth with a bucket that still overflows).
func (t *HashTable) Insert(_ *txn.Transaction, key, value int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.hash(key)
	slot := t.headerSlot(h)
	headerGuard, err := t.pool.FetchPageWrite(t.headerID)
	if err != nil {
		return false, fmt.Errorf("hash: fetch header: %w", err)
	}
	dirID := headerDirID(headerGuard.Bytes(), slot)
	if dirID == invalidID {
		newDirID, dg, err := t.pool.NewPageGuarded()
		if err != nil {
			headerGuard.Drop()
			return false, fmt.Errorf("hash: allocate directory page: %w", err)
		}
		dwg := dg.UpgradeWrite()
		initDirectory(dwg.Bytes(), t.maxDepthD)
		dwg.SetDirty(true)
		dwg.Drop()
		setHeaderDirID(headerGuard.Bytes(), slot, newDirID)
		headerGuard.SetDirty(true)
		dirID = newDirID
	}
	headerGuard.Drop()

	return t.insertIntoDirectory(dirID, h, key, value)
}

func (t *HashTable) insertIntoDirectory(dirID int64, h uint32, key, value int64) (bool, error) {
	dirGuard, err := t.pool.FetchPageWrite(dirID)
	if err != nil {
		return false, fmt.Errorf("hash: fetch directory: %w", err)
	}
	defer dirGuard.Drop()
	buf := dirGuard.Bytes()
	maxDepthD := dirMaxDepth(buf)

	for {
		globalDepth := dirGlobalDepth(buf)
		slot := int(h) & (dirSlots(globalDepth) - 1)
		bucketID := dirBucketID(buf, maxDepthD, slot)

		if bucketID == invalidID {
			// Only legal when the directory still has a single slot: a
			// fresh directory's very first bucket.
			newBucketID, bg, err := t.pool.NewPageGuarded()
			if err != nil {
				return false, fmt.Errorf("hash: allocate bucket page: %w", err)
			}
			bwg := bg.UpgradeWrite()
			initBucket(bwg.Bytes(), 0)
			bwg.SetDirty(true)
			bwg.Drop()
			setDirBucketID(buf, maxDepthD, slot, newBucketID)
			setDirLocalDepth(buf, slot, 0)
			dirGuard.SetDirty(true)
			bucketID = newBucketID
		}

		bucketGuard, err := t.pool.FetchPageWrite(bucketID)
		if err != nil {
			return false, fmt.Errorf("hash: fetch bucket: %w", err)
		}
		bbuf := bucketGuard.Bytes()
		n := bucketSize(bbuf)
		for i := 0; i < n; i++ {
			if e := bucketEntryAt(bbuf, i); t.cmp(e.Key, key) == 0 {
				bucketGuard.Drop()
				return false, nil
			}
		}
		if n < t.maxBucketSize {
			setBucketEntryAt(bbuf, n, entry.New(key, value))
			setBucketSize(bbuf, n+1)
			bucketGuard.SetDirty(true)
			bucketGuard.Drop()
			return true, nil
		}

		// The bucket is full: split, growing the directory first if the
		// bucket's local depth has caught up with the global depth.
		localDepth := dirLocalDepth(buf, slot)
		if localDepth == globalDepth {
			if globalDepth >= t.maxDepthD {
				bucketGuard.Drop()
				return false, fmt.Errorf("hash: table full: directory at max depth %d with a full bucket", t.maxDepthD)
			}
			growDirectory(buf, maxDepthD, globalDepth)
			setDirGlobalDepth(buf, globalDepth+1)
			globalDepth++
			slot = int(h) & (dirSlots(globalDepth) - 1)
		}

		newBucketID, nbg, err := t.pool.NewPageGuarded()
		if err != nil {
			bucketGuard.Drop()
			return false, fmt.Errorf("hash: allocate split bucket: %w", err)
		}
		nwg := nbg.UpgradeWrite()

		splitBit := int64(1) << uint(localDepth)
		oldCount, newCount := 0, 0
		entries := make([]entry.Entry, n)
		for i := 0; i < n; i++ {
			entries[i] = bucketEntryAt(bbuf, i)
		}
		for _, e := range entries {
			if int64(t.hash(e.Key))&splitBit != 0 {
				setBucketEntryAt(nwg.Bytes(), newCount, e)
				newCount++
			} else {
				setBucketEntryAt(bbuf, oldCount, e)
				oldCount++
			}
		}
		setBucketSize(bbuf, oldCount)
		setBucketLocalDepth(bbuf, int(localDepth)+1)
		bucketGuard.SetDirty(true)
		bucketGuard.Drop()

		setBucketSize(nwg.Bytes(), newCount)
		setBucketLocalDepth(nwg.Bytes(), localDepth+1)
		nwg.SetDirty(true)
		nwg.Drop()

		groupMask := dirSlots(localDepth) - 1
		lowBits := slot & groupMask
		for i := 0; i < dirSlots(globalDepth); i++ {
			if i&groupMask == lowBits {
				setDirLocalDepth(buf, i, localDepth+1)
				if int64(i)&splitBit != 0 {
					setDirBucketID(buf, maxDepthD, i, newBucketID)
				}
			}
		}
		dirGuard.SetDirty(true)
		// Retry the insertion: the split may not have separated keys that
		// all hash identically in the bits just examined.
	}
}

// Remove deletes key, reporting false without error if it was not present.
func (t *HashTable) Remove(_ *txn.Transaction, key int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.hash(key)
	headerGuard, err := t.pool.FetchPageRead(t.headerID)
	if err != nil {
		return false, fmt.Errorf("hash: fetch header: %w", err)
	}
	dirID := headerDirID(headerGuard.Bytes(), t.headerSlot(h))
	headerGuard.Drop()
	if dirID == invalidID {
		return false, nil
	}

	dirGuard, err := t.pool.FetchPageWrite(dirID)
	if err != nil {
		return false, fmt.Errorf("hash: fetch directory: %w", err)
	}
	defer dirGuard.Drop()
	buf := dirGuard.Bytes()
	maxDepthD := dirMaxDepth(buf)
	globalDepth := dirGlobalDepth(buf)
	slot := int(h) & (dirSlots(globalDepth) - 1)
	bucketID := dirBucketID(buf, maxDepthD, slot)
	if bucketID == invalidID {
		return false, nil
	}

	bucketGuard, err := t.pool.FetchPageWrite(bucketID)
	if err != nil {
		return false, fmt.Errorf("hash: fetch bucket: %w", err)
	}
	bbuf := bucketGuard.Bytes()
	n := bucketSize(bbuf)
	idx := -1
	for i := 0; i < n; i++ {
		if e := bucketEntryAt(bbuf, i); t.cmp(e.Key, key) == 0 {
			idx = i
			break
		}
	}
	if idx == -1 {
		bucketGuard.Drop()
		return false, nil
	}
	last := n - 1
	if idx != last {
		setBucketEntryAt(bbuf, idx, bucketEntryAt(bbuf, last))
	}
	setBucketSize(bbuf, last)
	bucketGuard.SetDirty(true)

	t.mergeLocked(buf, maxDepthD, globalDepth, slot, bucketID, bucketGuard)
	bucketGuard.Drop()

	t.shrinkLocked(buf)
	dirGuard.SetDirty(true)
	return true, nil
}

// mergeLocked repeatedly absorbs slot's merge partner into its bucket while
// the merge predicate holds. dirGuard's Drop is the caller's responsibility;
// bucketGuard is left open (still dirty-tracked) for the caller to drop.
func (t *HashTable) mergeLocked(buf []byte, maxDepthD, globalDepth, slot int, bucketID int64, bucketGuard *buffer.WritePageGuard) {
	for {
		localDepth := dirLocalDepth(buf, slot)
		if localDepth == 0 {
			return
		}
		partnerSlot := slot ^ (1 << uint(localDepth-1))
		partnerLocalDepth := dirLocalDepth(buf, partnerSlot)
		partnerBucketID := dirBucketID(buf, maxDepthD, partnerSlot)
		if partnerBucketID == invalidID || partnerBucketID == bucketID || partnerLocalDepth != localDepth {
			return
		}

		partnerGuard, err := t.pool.FetchPageWrite(partnerBucketID)
		if err != nil {
			return
		}
		curBuf := bucketGuard.Bytes()
		partnerBuf := partnerGuard.Bytes()
		curSize := bucketSize(curBuf)
		partnerSize := bucketSize(partnerBuf)
		if curSize+partnerSize > t.maxBucketSize {
			partnerGuard.Drop()
			return
		}

		for i := 0; i < partnerSize; i++ {
			setBucketEntryAt(curBuf, curSize+i, bucketEntryAt(partnerBuf, i))
		}
		setBucketSize(curBuf, curSize+partnerSize)
		setBucketLocalDepth(curBuf, localDepth-1)
		bucketGuard.SetDirty(true)
		partnerGuard.Drop()
		t.pool.DeletePage(partnerBucketID)

		groupMask := dirSlots(localDepth-1) - 1
		lowBits := slot & groupMask
		for i := 0; i < dirSlots(globalDepth); i++ {
			if i&groupMask == lowBits {
				setDirLocalDepth(buf, i, localDepth-1)
				setDirBucketID(buf, maxDepthD, i, bucketID)
			}
		}
	}
}

// shrinkLocked decrements the directory's global depth while every slot's
// local depth remains strictly below it.
func (t *HashTable) shrinkLocked(buf []byte) {
	for {
		gd := dirGlobalDepth(buf)
		if gd == 0 {
			return
		}
		for i := 0; i < dirSlots(gd); i++ {
			if dirLocalDepth(buf, i) >= gd {
				return
			}
		}
		setDirGlobalDepth(buf, gd-1)
	}
}
