package session

import (
	"context"
	"errors"
	"sync"

	"PSession/tools/errs"

	"github.com/golang/glog"
)

// HandlerFunc processes one inbound event. The returned value becomes the
// payload of the result frame sent back to the requester.
type HandlerFunc func(ctx context.Context, connID string, arg any) (any, error)

// ResultEventFunc overrides the default "result-"+event name. Returning
// "" suppresses the result frame entirely; the handler's notifications
// are then the only output.
type ResultEventFunc func(arg any) string

type handlerEntry struct {
	fn          HandlerFunc
	resultEvent ResultEventFunc
}

type HandlerOption func(*handlerEntry)

func WithResultEvent(fn ResultEventFunc) HandlerOption {
	return func(e *handlerEntry) { e.resultEvent = fn }
}

// Dispatcher maps event names onto their handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]handlerEntry
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]handlerEntry)}
}

func (d *Dispatcher) Register(event string, fn HandlerFunc, opts ...HandlerOption) {
	entry := handlerEntry{fn: fn}
	for _, opt := range opts {
		opt(&entry)
	}
	d.mu.Lock()
	d.handlers[event] = entry
	d.mu.Unlock()
}

func (d *Dispatcher) lookup(event string) (handlerEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.handlers[event]
	return entry, ok
}

// Register exposes handler registration on the core.
func (c *Core) Register(event string, fn HandlerFunc, opts ...HandlerOption) {
	c.disp.Register(event, fn, opts...)
}

// Dispatch runs the handler for one inbound event inside the access-log
// envelope. Every invocation logs START and exactly one of END or ERROR.
// Handler errors become an error frame delivered to the requester only;
// they never propagate to the read loop.
func (c *Core) Dispatch(ctx context.Context, connID, event string, arg any) {
	entry, ok := c.disp.lookup(event)
	if !ok {
		glog.Warningf("[dispatch] no handler event=%s conn=%s", event, connID)
		return
	}

	resultEvent := "result-" + event
	if entry.resultEvent != nil {
		resultEvent = entry.resultEvent(arg)
	}

	accessLog(connID, event, "START", redactForLog(event, arg))

	result, err := invoke(ctx, connID, arg, entry.fn)
	if err != nil {
		accessLog(connID, event, "ERROR", err.Error())
		if resultEvent != "" {
			_ = c.emitter.Emit(connID, resultEvent, errorPayload(err), nil)
		}
		return
	}

	accessLog(connID, resultEvent, "END  ", redactForLog(event, result))
	if resultEvent != "" {
		_ = c.emitter.Emit(connID, resultEvent, nil, result)
	}
}

// invoke shields the dispatch loop from handler panics.
func invoke(ctx context.Context, connID string, arg any, fn HandlerFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[dispatch] handler panic conn=%s recovered=%v", connID, r)
			err = errs.New("internal error")
		}
	}()
	return fn(ctx, connID, arg)
}

func accessLog(connID, event, phase string, detail any) {
	glog.Infof("[access] %s %s conn=%s %v", phase, event, connID, detail)
}

// errorPayload flattens err into the wire error shape. Non-taxonomy errors
// are reported as a generic 500 without leaking internals.
func errorPayload(err error) any {
	var codeErr *errs.CodeError
	if errors.As(err, &codeErr) {
		return codeErr
	}
	return &errs.CodeError{Code: 500, Msg: "internal error"}
}
