// Package stream produces the lazy, ordered sequence of reconstructed
// records that downstream pipeline stages consume.
//
// Ordering is a property of the index; this package only schedules
// fetches. Shard handles are managed by a bounded LRU pool scoped to
// one stream, so abandoning iteration can never leak handles.
package stream

import (
	"container/list"
	"context"
	"sync"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/scan"
)

// Pool is a bounded cache of open shard handles with LRU eviction.
// Opening is mutually exclusive per shard, not per pool: two readers
// hitting different shards never serialize on each other.
type Pool struct {
	store    blobstore.BlobStore
	format   scan.Format
	capacity int

	mu      sync.Mutex
	handles map[string]*Handle
	lru     *list.List // front = most recently used
	closed  bool
}

// Handle is a refcounted open shard. A Handle with live references is
// never evicted; release it as soon as the read is done.
type Handle struct {
	pool *Pool
	name string
	refs int
	elem *list.Element

	// openMu serializes the open of this one shard.
	openMu sync.Mutex
	reader scan.Reader
	err    error
}

// NewPool creates a handle pool. capacity is the maximum number of
// shard handles kept open; if all are busy the pool overshoots rather
// than deadlock, and trims back on release.
func NewPool(store blobstore.BlobStore, format scan.Format, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 16
	}
	return &Pool{
		store:    store,
		format:   format,
		capacity: capacity,
		handles:  make(map[string]*Handle),
		lru:      list.New(),
	}
}

// Acquire returns an open handle for the named shard, opening it if
// needed. The caller must Release the handle after use.
func (p *Pool) Acquire(ctx context.Context, name string) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	h, ok := p.handles[name]
	if !ok {
		h = &Handle{pool: p, name: name}
		h.elem = p.lru.PushFront(h)
		p.handles[name] = h
	} else {
		p.lru.MoveToFront(h.elem)
	}
	h.refs++

	evicted := p.evictLocked()
	p.mu.Unlock()

	for _, e := range evicted {
		e.close()
	}

	// Open outside the pool lock; per-shard mutual exclusion only.
	h.openMu.Lock()
	if h.reader == nil && h.err == nil {
		h.reader, h.err = p.format.Open(ctx, p.store, name)
	}
	err := h.err
	h.openMu.Unlock()

	if err != nil {
		p.discard(h)
		return nil, err
	}
	return h, nil
}

// Reader returns the open shard reader.
func (h *Handle) Reader() scan.Reader {
	return h.reader
}

// Release returns the handle to the pool. The underlying reader stays
// open for reuse until evicted or the pool is closed.
func (h *Handle) Release() {
	p := h.pool
	p.mu.Lock()
	h.refs--
	evicted := p.evictLocked()
	p.mu.Unlock()

	for _, e := range evicted {
		e.close()
	}
}

// evictLocked trims idle handles until the pool is within capacity.
// Handles still referenced are skipped; the pool may overshoot while
// every handle is busy. Caller holds p.mu; returned handles must be
// closed after unlocking.
func (p *Pool) evictLocked() []*Handle {
	var evicted []*Handle
	for e := p.lru.Back(); e != nil && p.lru.Len() > p.capacity; {
		prev := e.Prev()
		h := e.Value.(*Handle)
		if h.refs == 0 {
			p.lru.Remove(e)
			delete(p.handles, h.name)
			evicted = append(evicted, h)
		}
		e = prev
	}
	return evicted
}

// discard drops a handle whose open failed so the next Acquire retries.
func (p *Pool) discard(h *Handle) {
	p.mu.Lock()
	h.refs--
	if h.refs == 0 {
		if cur, ok := p.handles[h.name]; ok && cur == h {
			p.lru.Remove(h.elem)
			delete(p.handles, h.name)
		}
	}
	p.mu.Unlock()
}

// OpenCount returns the number of currently open shard handles.
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}

// Close closes every handle in the pool. Safe to call more than once;
// subsequent Acquires fail with ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		all = append(all, h)
	}
	p.handles = make(map[string]*Handle)
	p.lru.Init()
	p.mu.Unlock()

	var firstErr error
	for _, h := range all {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handle) close() error {
	h.openMu.Lock()
	defer h.openMu.Unlock()
	if h.reader == nil {
		return nil
	}
	err := h.reader.Close()
	h.reader = nil
	return err
}
