// Package dllist is a small generic doubly-linked list, adapted from the
// page store's original interface{}-typed list so the buffer pool's free
// list can use it without type assertions.
package dllist

// List is a doubly-linked list of values of type T.
type List[T any] struct {
	head *Link[T]
	tail *Link[T]
}

// New constructs an empty list.
func New[T any]() *List[T] {
	return &List[T]{}
}

// PeekHead returns the first link in the list, or nil if the list is empty.
func (l *List[T]) PeekHead() *Link[T] {
	return l.head
}

// PeekTail returns the last link in the list, or nil if the list is empty.
func (l *List[T]) PeekTail() *Link[T] {
	return l.tail
}

// PushHead adds value to the start of the list and returns the new link.
func (l *List[T]) PushHead(value T) *Link[T] {
	link := &Link[T]{list: l, next: l.head, value: value}
	if l.head != nil {
		l.head.prev = link
	}
	l.head = link
	if l.tail == nil {
		l.tail = link
	}
	return link
}

// PushTail adds value to the end of the list and returns the new link.
func (l *List[T]) PushTail(value T) *Link[T] {
	link := &Link[T]{list: l, prev: l.tail, value: value}
	if l.tail != nil {
		l.tail.next = link
	}
	l.tail = link
	if l.head == nil {
		l.head = link
	}
	return link
}

// Link is a single node in a List.
type Link[T any] struct {
	list  *List[T]
	prev  *Link[T]
	next  *Link[T]
	value T
}

// GetList returns the list this link currently belongs to, or nil if it has
// been popped.
func (link *Link[T]) GetList() *List[T] {
	return link.list
}

// GetValue returns the link's value.
func (link *Link[T]) GetValue() T {
	return link.value
}

// GetPrev returns the previous link, or nil.
func (link *Link[T]) GetPrev() *Link[T] {
	return link.prev
}

// GetNext returns the next link, or nil.
func (link *Link[T]) GetNext() *Link[T] {
	return link.next
}

// PopSelf removes link from whatever list it belongs to.
func (link *Link[T]) PopSelf() {
	switch {
	case link.prev == nil && link.next == nil:
		link.list.head = nil
		link.list.tail = nil
	case link.prev == nil:
		link.next.prev = nil
		link.list.head = link.next
	case link.next == nil:
		link.prev.next = nil
		link.list.tail = link.prev
	default:
		link.prev.next = link.next
		link.next.prev = link.prev
	}
	link.list = nil
	link.next = nil
	link.prev = nil
}
