package pool

import (
	"errors"
	"log"
	"runtime"
	"strings"
	"sync"
)

// Config describes a coordinator. Factory is required; Workers defaults to
// the number of CPUs; Logger may be nil for silence.
type Config struct {
	Workers int
	Factory EvaluatorFactory
	Logger  *log.Logger
}

// Stats is a point-in-time view of the coordinator's bookkeeping, mainly
// for status displays and tests.
type Stats struct {
	Workers int // pool size
	Busy    int // hosts with a bound task
	Queued  int // tasks not yet dispatched
	Active  int // tasks bound to a host (always equals Busy)
}

// hostEntry is the coordinator's bookkeeping for one pool member. busy and
// current are the authoritative binding record; they are only ever touched
// on the coordinator goroutine.
type hostEntry struct {
	host    *Host
	busy    bool
	current TaskID
}

type abortReq struct {
	id  TaskID
	all bool
}

// Coordinator owns the task queue and the worker pool. All of its mutable
// state lives on a single goroutine; the exported methods communicate with
// that goroutine over channels and never block on evaluator work.
type Coordinator struct {
	cfg Config

	submitCh chan *task
	abortCh  chan abortReq
	resetCh  chan chan error
	statsCh  chan chan Stats
	replies  chan hostMsg
	closeCh  chan struct{}
	done     chan struct{}

	closeOnce sync.Once

	// Loop-owned state. Never read or written outside the loop goroutine.
	queue   []*task
	active  map[TaskID]*task
	entries []*hostEntry
}

// New constructs a coordinator and starts its pool.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Factory == nil {
		return nil, errors.New("pool: nil evaluator factory")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	c := &Coordinator{
		cfg:      cfg,
		submitCh: make(chan *task),
		abortCh:  make(chan abortReq),
		resetCh:  make(chan chan error),
		statsCh:  make(chan chan Stats),
		replies:  make(chan hostMsg, 2*cfg.Workers),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		active:   make(map[TaskID]*task),
	}
	for i := 0; i < cfg.Workers; i++ {
		c.spawnEntry()
	}
	go c.loop()
	return c, nil
}

// Submit enqueues a program to run against the given state snapshot. It
// returns immediately; the handle settles asynchronously. The snapshot is
// cloned before it leaves the caller's goroutine.
//
// The only synchronous rejection is a whitespace-only program, which comes
// back as a handle already settled with ErrEmptyProgram.
func (c *Coordinator) Submit(program string, state Snapshot) *Handle {
	t := newTask(program, state)
	if strings.TrimSpace(program) == "" {
		t.settle(nil, ErrEmptyProgram)
		return t.handle
	}
	select {
	case c.submitCh <- t:
	case <-c.done:
		t.settle(nil, ErrClosed)
	}
	return t.handle
}

// Abort cancels one task. A still-queued task is removed and settled with
// ErrAborted without any host involvement; an in-flight task gets a
// cooperative abort signal on the one host bound to it. Unknown ids are a
// no-op.
func (c *Coordinator) Abort(id TaskID) {
	select {
	case c.abortCh <- abortReq{id: id}:
	case <-c.done:
	}
}

// AbortAll cancels every queued task and signals abort to every host with a
// task in flight.
func (c *Coordinator) AbortAll() {
	select {
	case c.abortCh <- abortReq{all: true}:
	case <-c.done:
	}
}

// ResetPool aborts everything, discards every host, and rebuilds the pool
// from scratch. No host that existed before the reset participates in any
// task submitted after it.
func (c *Coordinator) ResetPool() error {
	reply := make(chan error, 1)
	select {
	case c.resetCh <- reply:
		return <-reply
	case <-c.done:
		return ErrClosed
	}
}

// Stats reports current queue and pool occupancy.
func (c *Coordinator) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case c.statsCh <- reply:
		return <-reply
	case <-c.done:
		return Stats{}
	}
}

// Close shuts the coordinator down. Queued and in-flight tasks settle with
// ErrClosed; subsequent submissions settle the same way. Close blocks until
// the coordinator goroutine has exited.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
	<-c.done
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case t := <-c.submitCh:
			c.queue = append(c.queue, t)
			c.dispatchNext()
		case req := <-c.abortCh:
			c.handleAbort(req)
		case reply := <-c.resetCh:
			c.resetPool()
			reply <- nil
		case reply := <-c.statsCh:
			reply <- c.stats()
		case msg := <-c.replies:
			c.onHostMessage(msg)
		case <-c.closeCh:
			c.shutdown()
			return
		}
	}
}

// dispatchNext binds queued tasks to idle hosts until one of them runs out.
// FIFO: the earliest submitted queued task always goes to the first host
// that is free, with no reordering.
func (c *Coordinator) dispatchNext() {
	for len(c.queue) > 0 {
		e := c.idleEntry()
		if e == nil {
			return
		}
		t := c.queue[0]
		c.queue = c.queue[1:]
		e.busy = true
		e.current = t.id
		c.active[t.id] = t
		// Non-blocking: the command channel is buffered and the host is
		// idle, so its previous command has already been consumed.
		e.host.cmds <- execCmd{id: t.id, program: t.program, state: t.state}
	}
}

func (c *Coordinator) idleEntry() *hostEntry {
	for _, e := range c.entries {
		if !e.busy {
			return e
		}
	}
	return nil
}

// onHostMessage routes a host reply to the task bound to it, settles the
// task, frees the host, and keeps the pool saturated. Replies from hosts
// that were discarded (fault replacement, pool reset) are dropped.
func (c *Coordinator) onHostMessage(msg hostMsg) {
	e := c.entryFor(msg.host)
	if e == nil {
		return
	}
	switch msg.kind {
	case msgResult, msgAborted:
		if t, ok := c.active[msg.id]; ok && e.busy && e.current == msg.id {
			delete(c.active, msg.id)
			if msg.kind == msgAborted {
				t.settle(nil, ErrAborted)
			} else {
				t.settle(msg.result, nil)
			}
		}
		e.busy = false
		c.dispatchNext()
	case msgFault:
		if e.busy {
			if t, ok := c.active[e.current]; ok {
				delete(c.active, e.current)
				t.settle(nil, &FaultError{HostID: msg.host.ID().String(), Cause: msg.err})
			}
		}
		c.removeEntry(e)
		msg.host.discard()
		c.spawnEntry()
		if c.cfg.Logger != nil {
			c.cfg.Logger.Printf("pool: replaced faulted worker %s", msg.host.ID())
		}
		c.dispatchNext()
	}
}

func (c *Coordinator) handleAbort(req abortReq) {
	if req.all {
		for _, t := range c.queue {
			t.settle(nil, ErrAborted)
		}
		c.queue = nil
		// The wildcard is resolved per host to the task bound to it, so a
		// signal can never outlive its run and bleed into the next one.
		for _, e := range c.entries {
			if e.busy {
				e.host.signalAbort(e.current)
			}
		}
		return
	}
	// Queued and not yet dispatched: O(1) bookkeeping, no host involved.
	for i, t := range c.queue {
		if t.id == req.id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			t.settle(nil, ErrAborted)
			return
		}
	}
	if _, ok := c.active[req.id]; ok {
		for _, e := range c.entries {
			if e.busy && e.current == req.id {
				e.host.signalAbort(req.id)
				return
			}
		}
	}
}

// resetPool rejects all work as aborted, terminates every host, and builds
// a fresh pool of the configured size.
func (c *Coordinator) resetPool() {
	for _, t := range c.queue {
		t.settle(nil, ErrAborted)
	}
	c.queue = nil
	for id, t := range c.active {
		t.settle(nil, ErrAborted)
		delete(c.active, id)
	}
	for _, e := range c.entries {
		e.host.discard()
	}
	c.entries = nil
	for i := 0; i < c.cfg.Workers; i++ {
		c.spawnEntry()
	}
}

func (c *Coordinator) shutdown() {
	for _, t := range c.queue {
		t.settle(nil, ErrClosed)
	}
	c.queue = nil
	for id, t := range c.active {
		t.settle(nil, ErrClosed)
		delete(c.active, id)
	}
	for _, e := range c.entries {
		e.host.discard()
	}
	c.entries = nil
}

func (c *Coordinator) spawnEntry() {
	h := newHost(c.cfg.Factory, c.replies, c.cfg.Logger)
	c.entries = append(c.entries, &hostEntry{host: h})
	go h.serve()
}

func (c *Coordinator) removeEntry(target *hostEntry) {
	for i, e := range c.entries {
		if e == target {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) entryFor(h *Host) *hostEntry {
	for _, e := range c.entries {
		if e.host == h {
			return e
		}
	}
	return nil
}

func (c *Coordinator) stats() Stats {
	s := Stats{
		Workers: len(c.entries),
		Queued:  len(c.queue),
		Active:  len(c.active),
	}
	for _, e := range c.entries {
		if e.busy {
			s.Busy++
		}
	}
	return s
}
