package events

// Channel is a named event channel. Subscribers are called in subscription
// order. Channels are not safe for concurrent use; raise and subscribe from
// the scheduler goroutine.
type Channel[T any] struct {
	name string
	next uint64
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

func NewChannel[T any](name string) *Channel[T] {
	return &Channel[T]{name: name}
}

// Void is a channel without a payload.
type Void = Channel[struct{}]

func NewVoid(name string) *Void { return NewChannel[struct{}](name) }

func (c *Channel[T]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Channel[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.subs)
}

// Subscribe adds fn and returns a function that removes it again. Calling the
// returned function more than once is harmless.
func (c *Channel[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if c == nil || fn == nil {
		return func() {}
	}
	c.next++
	id := c.next
	// Copy-on-write so a Raise in progress keeps iterating its own slice.
	subs := make([]subscriber[T], 0, len(c.subs)+1)
	subs = append(subs, c.subs...)
	c.subs = append(subs, subscriber[T]{id: id, fn: fn})
	return func() { c.remove(id) }
}

func (c *Channel[T]) remove(id uint64) {
	for i, s := range c.subs {
		if s.id != id {
			continue
		}
		subs := make([]subscriber[T], 0, len(c.subs)-1)
		subs = append(subs, c.subs[:i]...)
		c.subs = append(subs, c.subs[i+1:]...)
		return
	}
}

// Raise calls every subscriber present when Raise started.
func (c *Channel[T]) Raise(v T) {
	if c == nil {
		return
	}
	for _, s := range c.subs {
		s.fn(v)
	}
}
