package slot

import "fmt"

// List is the recency list of unpinned slots. The front is evicted first.
type List struct {
	pool        *Pool
	front, rear ID
	n           int
}

// NewList creates an empty list over p.
func NewList(p *Pool) *List {
	return &List{pool: p, front: None, rear: None}
}

// Len returns the number of linked slots.
func (l *List) Len() int { return l.n }

// Front returns the next victim, or None.
func (l *List) Front() ID { return l.front }

// Rear returns the most recently kept slot, or None.
func (l *List) Rear() ID { return l.rear }

// Next returns the slot after id, from front to rear.
func (l *List) Next(id ID) ID { return l.pool.At(id).next }

func (l *List) mustUnlinked(id ID, op string) *Slot {
	s := l.pool.At(id)
	if s.linked {
		panic(fmt.Sprintf("slot: %s of linked slot %d", op, id))
	}
	return s
}

// PushFront links the slot at the front so it is evicted soonest.
func (l *List) PushFront(id ID) {
	s := l.mustUnlinked(id, "push front")
	s.prev = None
	s.next = l.front
	if l.front != None {
		l.pool.At(l.front).prev = id
	} else {
		l.rear = id
	}
	l.front = id
	s.linked = true
	l.n++
}

// PushRear links the slot at the rear so it is kept longest.
func (l *List) PushRear(id ID) {
	s := l.mustUnlinked(id, "push rear")
	s.next = None
	s.prev = l.rear
	if l.rear != None {
		l.pool.At(l.rear).next = id
	} else {
		l.front = id
	}
	l.rear = id
	s.linked = true
	l.n++
}

// Remove unlinks the slot. Removing an unlinked slot is a no-op and
// returns false.
func (l *List) Remove(id ID) bool {
	s := l.pool.At(id)
	if !s.linked {
		return false
	}

	if s.prev != None {
		l.pool.At(s.prev).next = s.next
	} else {
		l.front = s.next
	}
	if s.next != None {
		l.pool.At(s.next).prev = s.prev
	} else {
		l.rear = s.prev
	}

	s.prev, s.next = None, None
	s.linked = false
	l.n--
	return true
}

// PopFront unlinks and returns the front slot, or None if the list is empty.
func (l *List) PopFront() ID {
	id := l.front
	if id != None {
		l.Remove(id)
	}
	return id
}
