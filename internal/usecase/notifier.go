package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type ToastVariant string

const (
	ToastDefault     ToastVariant = "default"
	ToastSuccess     ToastVariant = "success"
	ToastDestructive ToastVariant = "destructive"
)

const DefaultToastTTL = 5 * time.Second

type Toast struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Variant     ToastVariant `json:"variant"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Notifier is the application's notification bus. It is created by the
// process root and handed to whatever needs to publish or render toasts.
type Notifier struct {
	ttl       time.Duration
	timeNow   func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	toasts []Toast
	timers map[string]*time.Timer
	subs   map[int]func([]Toast)
	nextID int
}

func NewNotifier(ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &Notifier{
		ttl:       ttl,
		timeNow:   time.Now,
		afterFunc: time.AfterFunc,
		timers:    make(map[string]*time.Timer),
		subs:      make(map[int]func([]Toast)),
	}
}

// Notify publishes t and schedules its dismissal. It returns the toast id.
func (n *Notifier) Notify(t Toast) string {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Variant == "" {
		t.Variant = ToastDefault
	}
	t.CreatedAt = n.timeNow()

	n.mu.Lock()
	n.toasts = append(n.toasts, t)
	id := t.ID
	n.timers[id] = n.afterFunc(n.ttl, func() { n.Dismiss(id) })
	n.mu.Unlock()

	n.publish()
	return id
}

func (n *Notifier) Dismiss(id string) {
	n.mu.Lock()
	found := false
	for i, t := range n.toasts {
		if t.ID == id {
			n.toasts = append(n.toasts[:i], n.toasts[i+1:]...)
			found = true
			break
		}
	}
	if timer, ok := n.timers[id]; ok {
		timer.Stop()
		delete(n.timers, id)
	}
	n.mu.Unlock()

	if found {
		n.publish()
	}
}

// Active returns the toasts currently shown, oldest first.
func (n *Notifier) Active() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Toast{}, n.toasts...)
}

// Subscribe registers fn to receive the full active list after every change.
func (n *Notifier) Subscribe(fn func([]Toast)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) publish() {
	n.mu.Lock()
	snapshot := append([]Toast{}, n.toasts...)
	subs := make([]func([]Toast), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
