package api

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"
)

type updateEvent struct {
	Detected int `json:"detected"`
}

// eventBroker fans the detector's candidate count out to SSE subscribers.
// Each subscriber channel holds at most the latest count; a slow client
// skips intermediate values instead of stalling the intake.
type eventBroker struct {
	mu   sync.Mutex
	subs map[chan int]struct{}
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[chan int]struct{})}
}

func (b *eventBroker) subscribe() chan int {
	ch := make(chan int, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *eventBroker) unsubscribe(ch chan int) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *eventBroker) publish(detected int) {
	b.mu.Lock()
	for ch := range b.subs {
		// drop the stale value so the newest one always fits
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- detected:
		default:
		}
	}
	b.mu.Unlock()
}

// Events streams users_updated frames carrying the detected candidate count
func (a *API) Events(c *gin.Context) {
	ch := a.broker.subscribe()
	defer a.broker.unsubscribe(ch)

	// first frame right away so a fresh client renders without waiting
	c.SSEvent("users_updated", updateEvent{Detected: a.intake.Detected()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case n := <-ch:
			c.SSEvent("users_updated", updateEvent{Detected: n})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
