package api

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// subscriberBuffer bounds how far a slow stream client may fall behind
// before events are dropped for it.
const subscriberBuffer = 64

type event struct {
	kind string
	data []byte
}

// hub fans engine checkpoints out to stream subscribers. Publishing never
// blocks the engine worker.
type hub struct {
	mu   sync.Mutex
	subs map[chan event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan event]struct{})}
}

func (h *hub) subscribe() (<-chan event, func()) {
	ch := make(chan event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *hub) publish(kind string, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("stream event dropped", "kind", kind, "error", err)
		return
	}
	for ch := range h.subs {
		select {
		case ch <- event{kind: kind, data: data}:
		default:
		}
	}
}
