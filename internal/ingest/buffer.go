package ingest

import (
	"fmt"
	"sync"
)

// node represents an internal linked list node for the time buffer.
type node struct {
	rec  *Record
	next *node
}

// TimeBuffer is a thread-safe buffer that keeps records ordered by time and
// then by eye, so that late or interleaved lines are written in order.
type TimeBuffer struct {
	capacity   int // Maximum number of records to store
	flushCount int // Number of records to remove when buffer reaches capacity

	mu   sync.Mutex
	head *node
	tail *node
	size int
}

// NewTimeBuffer creates a buffer holding up to capacity records that hands
// out flushCount records per Flush.
func NewTimeBuffer(capacity, flushCount int) (*TimeBuffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: bufferCap=%d, toFlush=%d", capacity, flushCount)
	}
	return &TimeBuffer{capacity: capacity, flushCount: flushCount}, nil
}

// compareRecords orders by time, then canonical eye order.
func compareRecords(a, b *Record) int {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c
	}
	return a.Eye.Compare(b.Eye)
}

// Insert adds a record in order. Records equal to an existing one go after
// it. Exports are mostly sorted, so the tail is checked first.
func (tb *TimeBuffer) Insert(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cannot insert nil record")
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	n := &node{rec: rec}
	tb.size++

	switch {
	case tb.head == nil:
		tb.head, tb.tail = n, n
		return nil

	case compareRecords(rec, tb.tail.rec) >= 0:
		tb.tail.next = n
		tb.tail = n
		return nil

	case compareRecords(rec, tb.head.rec) < 0:
		n.next = tb.head
		tb.head = n
		return nil
	}

	current := tb.head
	for current.next != nil && compareRecords(current.next.rec, rec) <= 0 {
		current = current.next
	}
	n.next = current.next
	current.next = n
	return nil
}

// IsFull returns true if the buffer has reached its capacity.
func (tb *TimeBuffer) IsFull() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return tb.size >= tb.capacity
}

// Flush removes and returns the oldest records. Returns nil if the buffer is
// empty.
func (tb *TimeBuffer) Flush() []*Record {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	count := tb.flushCount
	if tb.size > tb.capacity {
		count += tb.size - tb.capacity
	}
	return tb.take(min(count, tb.size))
}

// DrainAll removes and returns all records. Returns nil if the buffer is
// empty.
func (tb *TimeBuffer) DrainAll() []*Record {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return tb.take(tb.size)
}

func (tb *TimeBuffer) take(count int) []*Record {
	if tb.head == nil || count == 0 {
		return nil
	}

	results := make([]*Record, 0, count)
	current := tb.head
	for i := 0; i < count && current != nil; i++ {
		results = append(results, current.rec)
		current = current.next
	}

	tb.head = current
	if current == nil {
		tb.tail = nil
	}
	tb.size -= len(results)
	return results
}

// Size returns the current number of records in the buffer.
func (tb *TimeBuffer) Size() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.size
}
