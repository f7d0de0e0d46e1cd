package lockstep

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// BufferPool recycles the byte slices the receiver worker reads inbound
// datagrams into, mirroring the teacher codebase's BufferPool abstraction
// (receive_buffer.go pooled inbound frames the same way). Buffers are
// grouped into power-of-two size classes; an LRU cache keyed by size class
// holds the free stack for that class so a size class nothing has asked for
// in a while is evicted instead of pinning memory for a buffer size no
// longer requested.
type BufferPool struct {
	classes *lru.Cache // size class (int) -> *bufferClass
}

type bufferClass struct {
	mu   sync.Mutex
	free [][]byte
}

// NewBufferPool constructs a pool that tracks at most maxClasses distinct
// size classes at once.
func NewBufferPool(maxClasses int) *BufferPool {
	if maxClasses <= 0 {
		maxClasses = 8
	}
	c, err := lru.New(maxClasses)
	if err != nil {
		// lru.New only errors on size <= 0, already guarded above.
		panic(err)
	}
	return &BufferPool{classes: c}
}

func sizeClass(n int) int {
	c := 64
	for c < n {
		c <<= 1
	}
	return c
}

// Get returns a buffer with capacity >= n, reused from the pool when
// possible.
func (p *BufferPool) Get(n int) []byte {
	class := sizeClass(n)
	bc := p.classFor(class)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if l := len(bc.free); l > 0 {
		buf := bc.free[l-1]
		bc.free = bc.free[:l-1]
		return buf[:n]
	}
	return make([]byte, n, class)
}

// Put returns a buffer to the pool for reuse. The buffer's capacity, not
// its current length, determines which size class reclaims it.
func (p *BufferPool) Put(buf []byte) {
	class := sizeClass(cap(buf))
	bc := p.classFor(class)

	bc.mu.Lock()
	bc.free = append(bc.free, buf[:0])
	bc.mu.Unlock()
}

func (p *BufferPool) classFor(class int) *bufferClass {
	if v, ok := p.classes.Get(class); ok {
		return v.(*bufferClass)
	}
	bc := &bufferClass{}
	p.classes.Add(class, bc)
	return bc
}
