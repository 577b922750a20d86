package session

import "sync"

type emitRecord struct {
	ConnID  string
	Event   string
	Err     any
	Payload any
}

// fakeEmitter records every send instead of touching a websocket.
type fakeEmitter struct {
	mu         sync.Mutex
	emits      []emitRecord
	broadcasts []emitRecord
	excepts    []emitRecord
}

func newFakeEmitter() *fakeEmitter { return &fakeEmitter{} }

func (f *fakeEmitter) Emit(connID, event string, errPayload, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitRecord{ConnID: connID, Event: event, Err: errPayload, Payload: payload})
	return nil
}

func (f *fakeEmitter) Broadcast(event string, errPayload, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, emitRecord{Event: event, Err: errPayload, Payload: payload})
}

func (f *fakeEmitter) BroadcastExcept(connID, event string, errPayload, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excepts = append(f.excepts, emitRecord{ConnID: connID, Event: event, Err: errPayload, Payload: payload})
}

func (f *fakeEmitter) emitsTo(connID string) []emitRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitRecord
	for _, r := range f.emits {
		if r.ConnID == connID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeEmitter) broadcastEvents(event string) []emitRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitRecord
	for _, r := range f.broadcasts {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeEmitter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = nil
	f.broadcasts = nil
	f.excepts = nil
}
