package buffer

// BasicPageGuard pins a page without taking its latch. It is the guard
// returned when the caller intends to coordinate access itself, or as the
// starting point for an Upgrade to a latched guard.
type BasicPageGuard struct {
	pool  *Pool
	frame *Frame
}

// PageID returns the guarded page's id, or config.InvalidPageID if the
// guard has already been dropped.
func (g *BasicPageGuard) PageID() int64 {
	if g.frame == nil {
		return invalidPageID
	}
	return g.frame.PageID()
}

// Bytes returns the guarded frame's live buffer.
func (g *BasicPageGuard) Bytes() []byte {
	if g.frame == nil {
		return nil
	}
	return g.frame.data
}

// SetDirty marks the guarded page dirty so the pool writes it back before
// reusing the frame.
func (g *BasicPageGuard) SetDirty(dirty bool) {
	if g.frame == nil {
		return
	}
	g.frame.dirty = dirty
}

// Drop releases the guard's pin. It is idempotent and safe to call on an
// already-dropped or zero-value guard.
func (g *BasicPageGuard) Drop() {
	if g.frame == nil {
		return
	}
	g.pool.unpin(g.frame, g.frame.dirty)
	g.frame = nil
	g.pool = nil
}

// UpgradeRead consumes the basic guard and returns a ReadPageGuard over the
// same already-pinned frame, acquiring its latch for reading. The basic
// guard must not be used again.
func (g *BasicPageGuard) UpgradeRead() *ReadPageGuard {
	frame, pool := g.frame, g.pool
	g.frame, g.pool = nil, nil
	frame.mu.RLock()
	return &ReadPageGuard{pool: pool, frame: frame}
}

// UpgradeWrite consumes the basic guard and returns a WritePageGuard over
// the same already-pinned frame, acquiring its latch for writing. The basic
// guard must not be used again.
func (g *BasicPageGuard) UpgradeWrite() *WritePageGuard {
	frame, pool := g.frame, g.pool
	g.frame, g.pool = nil, nil
	frame.mu.Lock()
	return &WritePageGuard{pool: pool, frame: frame}
}

// ReadPageGuard pins a page and holds its latch for reading.
type ReadPageGuard struct {
	pool  *Pool
	frame *Frame
}

// PageID returns the guarded page's id, or config.InvalidPageID if dropped.
func (g *ReadPageGuard) PageID() int64 {
	if g.frame == nil {
		return invalidPageID
	}
	return g.frame.PageID()
}

// Bytes returns the guarded frame's live buffer. Callers must not write
// through it; nothing short of the Go compiler enforces that, so treat it
// as read-only by convention.
func (g *ReadPageGuard) Bytes() []byte {
	if g.frame == nil {
		return nil
	}
	return g.frame.data
}

// Drop releases the read latch and the pin. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.frame == nil {
		return
	}
	frame, pool := g.frame, g.pool
	g.frame, g.pool = nil, nil
	frame.mu.RUnlock()
	pool.unpin(frame, false)
}

// WritePageGuard pins a page and holds its latch for writing.
type WritePageGuard struct {
	pool  *Pool
	frame *Frame
	dirty bool
}

// PageID returns the guarded page's id, or config.InvalidPageID if dropped.
func (g *WritePageGuard) PageID() int64 {
	if g.frame == nil {
		return invalidPageID
	}
	return g.frame.PageID()
}

// Bytes returns the guarded frame's live, mutable buffer.
func (g *WritePageGuard) Bytes() []byte {
	if g.frame == nil {
		return nil
	}
	return g.frame.data
}

// SetDirty accumulates a dirty flag on the guard, ORed with any previous
// call, and forwarded to the pool's UnpinPage when the guard is dropped.
func (g *WritePageGuard) SetDirty(dirty bool) {
	g.dirty = g.dirty || dirty
}

// Drop releases the write latch and the pin, forwarding the accumulated
// dirty flag. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.frame == nil {
		return
	}
	frame, pool, dirty := g.frame, g.pool, g.dirty
	g.frame, g.pool = nil, nil
	frame.mu.Unlock()
	pool.unpin(frame, dirty)
}
