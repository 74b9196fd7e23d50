package buffer

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/ncw/directio"
	"golang.org/x/sync/singleflight"

	"pagestore/internal/corelog"
	"pagestore/internal/dllist"
	"pagestore/pkg/config"
	"pagestore/pkg/replacer"
	"pagestore/pkg/scheduler"
)

const invalidPageID = config.InvalidPageID

// allocator is the disk manager's page-id bookkeeping, used by NewPage and
// DeletePage. Declared locally so this package doesn't need to import disk
// directly; *disk.Manager satisfies it implicitly.
type allocator interface {
	AllocatePage() int64
	DeallocatePage(id int64)
}

// Pool is the buffer pool manager: a fixed set of frames, a free list, a
// page table, an LRU-K replacer for victim selection, a disk scheduler for
// asynchronous I/O, and an allocator for page-id bookkeeping.
type Pool struct {
	mu        sync.Mutex // the pool latch, guarding everything below
	frames    []*Frame
	freeList  *dllist.List[int]
	pageTable map[int64]int // page id -> frame index

	replacer *replacer.Replacer
	sched    *scheduler.Scheduler
	alloc    allocator

	fetchGroup singleflight.Group
}

// New constructs a Pool of size frames, backed by sched for I/O and alloc
// for page-id bookkeeping, using replacerK as the LRU-K history length.
func New(size int, replacerK int, sched *scheduler.Scheduler, alloc allocator) *Pool {
	p := &Pool{
		frames:    make([]*Frame, size),
		freeList:  dllist.New[int](),
		pageTable: make(map[int64]int, size),
		replacer:  replacer.New(size, replacerK),
		sched:     sched,
		alloc:     alloc,
	}
	// One aligned arena sliced per frame, not one allocation per frame, so
	// every frame's buffer starts block-aligned for O_DIRECT reads/writes.
	arena := directio.AlignedBlock(config.PageSize * size)
	for i := 0; i < size; i++ {
		data := arena[i*config.PageSize : (i+1)*config.PageSize]
		p.frames[i] = &Frame{idx: i, pageID: invalidPageID, data: data}
		p.freeList.PushTail(i)
	}
	return p
}

// Size returns the number of frames the pool manages.
func (p *Pool) Size() int {
	return len(p.frames)
}

// claimFrame returns an unoccupied frame index, evicting and, if dirty,
// writing back a victim if the free list is empty. Callers must hold p.mu.
func (p *Pool) claimFrame() (int, error) {
	if link := p.freeList.PeekHead(); link != nil {
		link.PopSelf()
		return link.GetValue(), nil
	}
	fid, ok := p.replacer.Evict()
	if !ok {
		return 0, fmt.Errorf("buffer: no free or evictable frame available")
	}
	frame := p.frames[fid]
	if frame.dirty {
		if err := p.writeBackLocked(frame); err != nil {
			return 0, err
		}
	}
	delete(p.pageTable, frame.pageID)
	frame.pageID = invalidPageID
	return fid, nil
}

// writeBackLocked schedules and awaits a write for frame's current
// contents. Callers must hold p.mu; the pool latch is intentionally held
// across the await, matching the simplification recorded for this port.
func (p *Pool) writeBackLocked(frame *Frame) error {
	req := scheduler.NewRequest(scheduler.Write, frame.pageID, frame.data)
	p.sched.Schedule(req)
	if ok := <-req.Done; !ok {
		return fmt.Errorf("buffer: write-back failed for page %d", frame.pageID)
	}
	frame.dirty = false
	return nil
}

// NewPage allocates a fresh page id, claims a frame for it, and returns it
// pinned once. The frame's contents are zeroed.
func (p *Pool) NewPage() (int64, *Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, err := p.claimFrame()
	if err != nil {
		return invalidPageID, nil, err
	}
	id := p.alloc.AllocatePage()
	frame := p.frames[fid]
	for i := range frame.data {
		frame.data[i] = 0
	}
	frame.pageID = id
	frame.dirty = true
	frame.pins = 1
	p.pageTable[id] = fid
	p.replacer.RecordAccess(fid)
	p.replacer.SetEvictable(fid, false)
	corelog.Get().Debug("buffer: new page", "page_id", id, "frame", fid)
	return id, frame, nil
}

// NewPageGuarded is NewPage wrapped in a BasicPageGuard.
func (p *Pool) NewPageGuarded() (int64, *BasicPageGuard, error) {
	id, frame, err := p.NewPage()
	if err != nil {
		return invalidPageID, nil, err
	}
	return id, &BasicPageGuard{pool: p, frame: frame}, nil
}

// FetchPage returns the frame holding id, pinning it once more, reading it
// in from disk first if it isn't already resident. Concurrent FetchPage
// calls that miss on the same id are coalesced into a single disk read.
func (p *Pool) FetchPage(id int64) (*Frame, error) {
	p.mu.Lock()
	if fid, ok := p.pageTable[id]; ok {
		frame := p.frames[fid]
		frame.pins++
		p.replacer.RecordAccess(fid)
		p.replacer.SetEvictable(fid, false)
		p.mu.Unlock()
		return frame, nil
	}
	p.mu.Unlock()

	v, err, _ := p.fetchGroup.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		// Someone may have fully completed a fetch for id between our
		// unlock above and taking the lock here.
		if fid, ok := p.pageTable[id]; ok {
			return p.frames[fid], nil
		}
		fid, err := p.claimFrame()
		if err != nil {
			return nil, err
		}
		frame := p.frames[fid]
		req := scheduler.NewRequest(scheduler.Read, id, frame.data)
		p.sched.Schedule(req)
		if ok := <-req.Done; !ok {
			p.freeList.PushTail(fid)
			return nil, fmt.Errorf("buffer: read failed for page %d", id)
		}
		frame.pageID = id
		frame.dirty = false
		frame.pins = 0
		p.pageTable[id] = fid
		return frame, nil
	})
	if err != nil {
		return nil, err
	}
	// Every caller through this group — leader and every coalesced
	// follower alike — pins exactly once here, so a group of G concurrent
	// misses leaves pins == G, not G+1.
	frame := v.(*Frame)
	p.mu.Lock()
	frame.pins++
	p.replacer.RecordAccess(frame.idx)
	p.replacer.SetEvictable(frame.idx, false)
	p.mu.Unlock()
	return frame, nil
}

// FetchPageBasic wraps FetchPage in a BasicPageGuard.
func (p *Pool) FetchPageBasic(id int64) (*BasicPageGuard, error) {
	frame, err := p.FetchPage(id)
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{pool: p, frame: frame}, nil
}

// FetchPageRead wraps FetchPage in a ReadPageGuard, acquiring the page's
// latch for reading only after the pool latch has been released.
func (p *Pool) FetchPageRead(id int64) (*ReadPageGuard, error) {
	frame, err := p.FetchPage(id)
	if err != nil {
		return nil, err
	}
	frame.mu.RLock()
	return &ReadPageGuard{pool: p, frame: frame}, nil
}

// FetchPageWrite wraps FetchPage in a WritePageGuard, acquiring the page's
// latch for writing only after the pool latch has been released.
func (p *Pool) FetchPageWrite(id int64) (*WritePageGuard, error) {
	frame, err := p.FetchPage(id)
	if err != nil {
		return nil, err
	}
	frame.mu.Lock()
	return &WritePageGuard{pool: p, frame: frame}, nil
}

// unpin is the shared tail of every guard's Drop.
func (p *Pool) unpin(frame *Frame, dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if frame.pageID == invalidPageID {
		return
	}
	if dirty {
		frame.dirty = true
	}
	if frame.pins == 0 {
		return
	}
	frame.pins--
	if frame.pins == 0 {
		p.replacer.SetEvictable(frame.idx, true)
	}
}

// UnpinPage releases one pin on id, marking it dirty if isDirty is true. It
// reports false if id is not resident or already has no pins.
func (p *Pool) UnpinPage(id int64, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[id]
	if !ok {
		return false
	}
	frame := p.frames[fid]
	if frame.pins == 0 {
		return false
	}
	if isDirty {
		frame.dirty = true
	}
	frame.pins--
	if frame.pins == 0 {
		p.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes id's frame back to disk unconditionally, regardless of
// its dirty flag, and reports whether the write succeeded. It reports false
// if id is not resident.
func (p *Pool) FlushPage(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[id]
	if !ok {
		return false
	}
	return p.writeBackLocked(p.frames[fid]) == nil
}

// FlushAllPages flushes every resident page.
func (p *Pool) FlushAllPages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, frame := range p.frames {
		if frame.pageID == invalidPageID {
			continue
		}
		_ = p.writeBackLocked(frame)
	}
}

// DeletePage removes id from the pool and releases its page id back to the
// allocator. It reports false, refusing to delete, if the page is still
// pinned. Deleting an unmapped id is a no-op that reports true.
func (p *Pool) DeletePage(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[id]
	if !ok {
		return true
	}
	frame := p.frames[fid]
	if frame.pins > 0 {
		return false
	}
	p.replacer.Remove(fid)
	delete(p.pageTable, id)
	for i := range frame.data {
		frame.data[i] = 0
	}
	frame.pageID = invalidPageID
	frame.dirty = false
	p.alloc.DeallocatePage(id)
	p.freeList.PushTail(fid)
	return true
}
