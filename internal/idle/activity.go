package idle

import (
	"sync"
	"time"
)

// Kind names a user interaction.
type Kind string

// Interaction kinds that count as activity.
const (
	KindPointerDown Kind = "pointer-down"
	KindPointerMove Kind = "pointer-move"
	KindKeyPress    Kind = "key-press"
	KindScroll      Kind = "scroll"
	KindTouchStart  Kind = "touch-start"
	KindClick       Kind = "click"
)

var trackedKinds = map[Kind]struct{}{
	KindPointerDown: {},
	KindPointerMove: {},
	KindKeyPress:    {},
	KindScroll:      {},
	KindTouchStart:  {},
	KindClick:       {},
}

// Tracked reports whether the kind resets the idle clock.
func (k Kind) Tracked() bool {
	_, ok := trackedKinds[k]
	return ok
}

// Activity is a single user interaction. A zero At means "now".
type Activity struct {
	Kind Kind
	At   time.Time
}

// ActivitySource delivers interactions to subscribers.
type ActivitySource interface {
	Subscribe(fn func(Activity)) (unsubscribe func())
}

// Feed is an in-process ActivitySource.
type Feed struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Activity)
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]func(Activity))}
}

// Subscribe registers fn and returns a function that removes it.
func (f *Feed) Subscribe(fn func(Activity)) func() {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Emit delivers an activity to every subscriber.
func (f *Feed) Emit(a Activity) {
	f.mu.Lock()
	subs := make([]func(Activity), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(a)
	}
}

// Len returns the number of active subscribers.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
