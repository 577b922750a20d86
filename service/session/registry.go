package session

import (
	"encoding/json"
	"sync"

	"PSession/logger"
)

// Frame is the wire shape of every outbound event: the result/notify event
// name, a structured error (or nil) and the payload (or nil).
type Frame struct {
	Event   string `json:"event"`
	Error   any    `json:"error"`
	Payload any    `json:"payload"`
}

// Emitter abstracts the transport send primitives so the core can be
// tested with a fake. Sends are fire-and-forget per target.
type Emitter interface {
	Emit(connID, event string, errPayload, payload any) error
	Broadcast(event string, errPayload, payload any)
	BroadcastExcept(connID, event string, errPayload, payload any)
}

// Registry holds the live connections of this gateway node and implements
// Emitter over the fanout pool.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Client

	fanout *Fanout
}

func NewRegistry(fanout *Fanout) *Registry {
	return &Registry{
		byConn: make(map[string]*Client),
		fanout: fanout,
	}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byConn[connID]; ok {
		delete(r.byConn, connID)
		c.Close()
	}
}

func (r *Registry) Get(connID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// Kick closes the underlying websocket; the read loop then runs the
// regular disconnect path.
func (r *Registry) Kick(connID string) {
	r.mu.RLock()
	c := r.byConn[connID]
	r.mu.RUnlock()
	if c != nil {
		_ = c.WS.Close()
	}
}

func (r *Registry) listAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

func marshalFrame(event string, errPayload, payload any) []byte {
	data, err := json.Marshal(Frame{Event: event, Error: errPayload, Payload: payload})
	if err != nil {
		logger.Errorf("[registry] marshal frame event=%s err=%v", event, err)
		return nil
	}
	return data
}

// Emit queues a frame for a single connection. A send to an unknown
// connection is a no-op: the target may have closed between resolution
// and delivery, which is an accepted anomaly, not an error.
func (r *Registry) Emit(connID, event string, errPayload, payload any) error {
	c := r.Get(connID)
	if c == nil {
		logger.Debug("[registry] emit to closed connection conn=" + connID + " event=" + event)
		return nil
	}
	data := marshalFrame(event, errPayload, payload)
	if data == nil {
		return nil
	}
	r.fanout.Broadcast([]*Client{c}, data)
	return nil
}

func (r *Registry) Broadcast(event string, errPayload, payload any) {
	data := marshalFrame(event, errPayload, payload)
	if data == nil {
		return
	}
	r.fanout.Broadcast(r.listAll(), data)
}

func (r *Registry) BroadcastExcept(connID, event string, errPayload, payload any) {
	data := marshalFrame(event, errPayload, payload)
	if data == nil {
		return
	}
	all := r.listAll()
	conns := make([]*Client, 0, len(all))
	for _, c := range all {
		if c.ConnID != connID {
			conns = append(conns, c)
		}
	}
	r.fanout.Broadcast(conns, data)
}
