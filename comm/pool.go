package comm

import (
	"io"
	"net"
	"sync"
	"time"
)

// Pool holds up to maxSize connections to one instrument.  Connections are
// opened on demand and all of them are closed once every connection has been
// idle in the pool for the reclaim timeout.  Pools must be created with
// NewPool and are safe for concurrent use.
type Pool struct {
	maxSize int
	onLease int
	timeout time.Duration
	conns   chan io.ReadWriteCloser
	maker   CreationFunc

	timer *time.Timer
	mu    sync.Mutex
	// freed is signaled whenever a connection or a slot becomes available
	freed *sync.Cond
}

// NewPool returns a pool that will hold at most maxSize connections made by
// maker, closing idle connections after timeout
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		maker:   maker,
	}
	p.freed = sync.NewCond(&p.mu)
	return p
}

// Get retrieves a connection, blocking until one is available if all are on
// lease.  A connection in hand is exclusive to the caller until it is handed
// back with Put, Destroy, or ReturnWithError.
//
// If the error from Get is not nil there is nothing to return to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.mu.Lock()
	for {
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
		select {
		case c := <-p.conns:
			p.onLease++
			p.mu.Unlock()
			return c, nil
		default:
		}
		if p.onLease+len(p.conns) < p.maxSize {
			break
		}
		p.freed.Wait()
	}
	// reserve the slot before dialing so a slow maker does not let the pool
	// overfill
	p.onLease++
	p.mu.Unlock()
	c, err := p.maker()
	if err != nil {
		p.mu.Lock()
		p.onLease--
		p.freed.Signal()
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// Put returns a working connection to the pool
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := unwrap(rw)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLease--
	p.conns <- rwc
	p.freed.Signal()
	if p.onLease == 0 && p.timer == nil {
		p.timer = time.AfterFunc(p.timeout, p.reclaim)
	}
}

// Destroy closes a connection that has gone bad and frees its slot
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := unwrap(rw)
	rwc.Close()
	p.mu.Lock()
	p.onLease--
	p.freed.Signal()
	p.mu.Unlock()
}

// ReturnWithError hands rw back to the pool, destroying it when err is a
// network error (timeouts, resets, EOF) and putting it back otherwise.
// Protocol-level errors leave the connection usable.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err == nil {
		p.Put(rw)
		return
	}
	if _, ok := err.(net.Error); ok || err == io.EOF || err == io.ErrUnexpectedEOF {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections in the pool or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections currently given out
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer = nil
	if p.onLease != 0 {
		return
	}
	for {
		select {
		case c := <-p.conns:
			c.Close()
		default:
			return
		}
	}
}

// unwrap digs the pooled connection out of the wrappers in this package
func unwrap(rw io.ReadWriter) io.ReadWriteCloser {
	for {
		switch v := rw.(type) {
		case *Timeout:
			rw = v.ReadWriter
		case *Terminator:
			rw = v.rw
		case io.ReadWriteCloser:
			return v
		default:
			panic("comm: connection returned to pool is not an io.ReadWriteCloser")
		}
	}
}
