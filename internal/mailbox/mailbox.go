// Package mailbox hands processed frames from the filter to any number of
// consumers without ever blocking the filter.
//
// The filter publishes into a single-slot inbox; a distribution goroutine
// copies the pointer into one single-slot mailbox per subscriber. Both slots
// overwrite: a consumer that falls behind sees the newest frame and a drop
// counter, never a queue.
package mailbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// idleThreshold marks a subscriber idle when it has not consumed for this
// long.
const idleThreshold = 30 * time.Second

// Frame is a processed frame with metadata. Image must not be modified after
// Publish; every subscriber shares the same pointer.
type Frame struct {
	// Seq is assigned by the mailbox during distribution.
	Seq uint64
	// CaptureSeq is the sequence number assigned at capture.
	CaptureSeq uint64
	// Timestamp is when the input frame was captured.
	Timestamp time.Time
	// Image is the painted output.
	Image *raster.Frame
	// Leaves is the number of rectangles in the output.
	Leaves int
	// Tree is the decomposition Image was painted from.
	Tree *quadtree.Tree
	// Style is the compositor style of the pass.
	Style compose.Style
	// Latency is the processing time of this frame.
	Latency time.Duration
	// SourceStream identifies the stream.
	SourceStream string
	// TraceID is unique per frame.
	TraceID string
}

// Stats is a snapshot of mailbox state.
type Stats struct {
	// InboxDrops counts frames overwritten before distribution.
	InboxDrops uint64
	// Subscribers maps subscriber id to its statistics.
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks one subscriber.
type SubscriberStats struct {
	ID               string
	LastConsumedAt   time.Time
	LastConsumedSeq  uint64
	ConsecutiveDrops uint64
	TotalDrops       uint64
	IsIdle           bool
}

// TotalDrops sums the drops of every subscriber.
func (s Stats) TotalDrops() uint64 {
	var n uint64
	for _, sub := range s.Subscribers {
		n += sub.TotalDrops
	}
	return n
}

type slot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame

	lastConsumedAt   time.Time
	lastConsumedSeq  uint64
	consecutiveDrops uint64
	totalDrops       uint64

	closed bool
}

// Mailbox distributes frames to subscribers.
type Mailbox struct {
	inboxMu    sync.Mutex
	inboxCond  *sync.Cond
	inboxFrame *Frame
	inboxDrops uint64

	slots sync.Map // id -> *slot

	seq uint64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopping atomic.Bool
}

// New creates a stopped mailbox.
func New() *Mailbox {
	m := &Mailbox{}
	m.inboxCond = sync.NewCond(&m.inboxMu)
	return m
}

// Start launches the distribution goroutine. It returns an error if the
// mailbox was already started.
func (m *Mailbox) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("mailbox: already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.stopping.Store(false)

	m.wg.Add(1)
	go m.distributionLoop()

	// Wake the loop when the parent context ends.
	go func() {
		<-m.ctx.Done()
		m.inboxMu.Lock()
		m.inboxCond.Broadcast()
		m.inboxMu.Unlock()
	}()
	return nil
}

// Stop ends distribution and wakes every subscriber, whose read functions
// then return nil. Idempotent.
func (m *Mailbox) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	m.stopping.Store(true)
	m.cancel()
	m.inboxMu.Lock()
	m.inboxCond.Broadcast()
	m.inboxMu.Unlock()
	m.wg.Wait()

	m.slots.Range(func(key, value interface{}) bool {
		m.Unsubscribe(key.(string))
		return true
	})
}

// Publish places frame in the inbox, replacing any frame not yet
// distributed. It never blocks for longer than a mutex hand-off.
func (m *Mailbox) Publish(frame *Frame) {
	m.inboxMu.Lock()
	if m.inboxFrame != nil {
		atomic.AddUint64(&m.inboxDrops, 1)
	}
	m.inboxFrame = frame
	m.inboxCond.Signal()
	m.inboxMu.Unlock()
}

func (m *Mailbox) distributionLoop() {
	defer m.wg.Done()

	for {
		m.inboxMu.Lock()
		for m.inboxFrame == nil {
			if m.ctx.Err() != nil {
				m.inboxMu.Unlock()
				return
			}
			m.inboxCond.Wait()
		}
		if m.ctx.Err() != nil {
			m.inboxMu.Unlock()
			return
		}
		frame := m.inboxFrame
		m.inboxFrame = nil
		m.inboxMu.Unlock()

		m.distribute(frame)
	}
}

func (m *Mailbox) distribute(frame *Frame) {
	frame.Seq = atomic.AddUint64(&m.seq, 1)

	m.slots.Range(func(_, value interface{}) bool {
		s := value.(*slot)
		s.mu.Lock()
		if !s.closed {
			if s.frame != nil {
				s.consecutiveDrops++
				s.totalDrops++
			}
			s.frame = frame
			s.cond.Signal()
		}
		s.mu.Unlock()
		return true
	})
}

// Subscribe registers id and returns a blocking read function. The read
// function returns the newest undelivered frame, or nil once the
// subscription is closed. It must be called from one goroutine only.
//
// Subscribing while the mailbox is stopping returns a read function that
// always returns nil.
func (m *Mailbox) Subscribe(id string) func() *Frame {
	if m.stopping.Load() {
		return func() *Frame { return nil }
	}

	s := &slot{lastConsumedAt: time.Now()}
	s.cond = sync.NewCond(&s.mu)
	if old, loaded := m.slots.Swap(id, s); loaded {
		closeSlot(old.(*slot))
	}

	return func() *Frame {
		s.mu.Lock()
		defer s.mu.Unlock()

		for s.frame == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil
		}

		frame := s.frame
		s.frame = nil
		s.lastConsumedAt = time.Now()
		s.lastConsumedSeq = frame.Seq
		s.consecutiveDrops = 0
		return frame
	}
}

// Unsubscribe closes the subscription for id. Idempotent.
func (m *Mailbox) Unsubscribe(id string) {
	v, ok := m.slots.LoadAndDelete(id)
	if !ok {
		return
	}
	closeSlot(v.(*slot))
}

func closeSlot(s *slot) {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Stats returns a snapshot of drop counters and subscriber health.
func (m *Mailbox) Stats() Stats {
	stats := Stats{
		InboxDrops:  atomic.LoadUint64(&m.inboxDrops),
		Subscribers: make(map[string]SubscriberStats),
	}
	m.slots.Range(func(key, value interface{}) bool {
		id := key.(string)
		s := value.(*slot)

		s.mu.Lock()
		stats.Subscribers[id] = SubscriberStats{
			ID:               id,
			LastConsumedAt:   s.lastConsumedAt,
			LastConsumedSeq:  s.lastConsumedSeq,
			ConsecutiveDrops: s.consecutiveDrops,
			TotalDrops:       s.totalDrops,
			IsIdle:           time.Since(s.lastConsumedAt) > idleThreshold,
		}
		s.mu.Unlock()
		return true
	})
	return stats
}
