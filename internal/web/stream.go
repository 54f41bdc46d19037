package web

import (
	"sync"
	"sync/atomic"

	"gnss-nmea/internal/gps"
)

// Hub fans decoded messages out to stream clients. It keeps the most recent
// message so a new subscriber gets an immediate sample.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan gps.Message
	nextID   int
	last     gps.Message
	haveLast bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

type StreamStats struct {
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan gps.Message)}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan gps.Message) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan gps.Message, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	last, have := h.last, h.haveLast
	h.mu.Unlock()
	if have {
		ch <- last
	}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers msg to every subscriber without blocking; slow clients
// lose messages.
func (h *Hub) Publish(msg gps.Message) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last, h.haveLast = msg, true
	h.published.Add(1)
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Stats() StreamStats {
	if h == nil {
		return StreamStats{}
	}
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return StreamStats{Clients: n, Published: h.published.Load(), Dropped: h.dropped.Load()}
}
