package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"PSession/module/session/store"
	"PSession/tools/errs"
)

func newTestCore(t *testing.T) (*Core, *fakeEmitter) {
	t.Helper()
	fake := newFakeEmitter()
	core := NewCore(store.NewMemDB(), fake, []byte("test-secret"))
	return core, fake
}

func TestDispatchEmitsResultFrame(t *testing.T) {
	core, fake := newTestCore(t)
	core.Register("ping", func(ctx context.Context, connID string, arg any) (any, error) {
		return map[string]any{"pong": true}, nil
	})

	core.Dispatch(context.Background(), "conn-1", "ping", nil)

	got := fake.emitsTo("conn-1")
	if len(got) != 1 {
		t.Fatalf("emits = %v, want one result frame", got)
	}
	if got[0].Event != "result-ping" {
		t.Fatalf("result event = %s, want result-ping", got[0].Event)
	}
	if got[0].Err != nil {
		t.Fatalf("unexpected error payload: %v", got[0].Err)
	}
	want := map[string]any{"pong": true}
	if !reflect.DeepEqual(got[0].Payload, want) {
		t.Fatalf("payload = %v, want %v", got[0].Payload, want)
	}
}

func TestDispatchErrorGoesToRequesterOnly(t *testing.T) {
	core, fake := newTestCore(t)
	core.Register("boom", func(ctx context.Context, connID string, arg any) (any, error) {
		return nil, errs.ErrRoomNotFound.WrapMsg("room gone")
	})

	core.Dispatch(context.Background(), "conn-1", "boom", nil)

	got := fake.emitsTo("conn-1")
	if len(got) != 1 {
		t.Fatalf("emits = %v, want one error frame", got)
	}
	codeErr, ok := got[0].Err.(*errs.CodeError)
	if !ok || codeErr.Code != errs.ErrRoomNotFound.Code {
		t.Fatalf("error payload = %v, want code %d", got[0].Err, errs.ErrRoomNotFound.Code)
	}
	if got[0].Payload != nil {
		t.Fatalf("error frame must carry no payload, got %v", got[0].Payload)
	}
	if len(fake.broadcastEvents("result-boom")) != 0 {
		t.Fatal("error frame must never be broadcast")
	}
}

func TestDispatchMasksNonTaxonomyErrors(t *testing.T) {
	core, fake := newTestCore(t)
	core.Register("oops", func(ctx context.Context, connID string, arg any) (any, error) {
		return nil, errors.New("pipeline stage 3 exploded: secret detail")
	})

	core.Dispatch(context.Background(), "conn-1", "oops", nil)

	got := fake.emitsTo("conn-1")
	if len(got) != 1 {
		t.Fatalf("emits = %v, want one error frame", got)
	}
	codeErr, ok := got[0].Err.(*errs.CodeError)
	if !ok || codeErr.Code != 500 {
		t.Fatalf("error payload = %v, want generic 500", got[0].Err)
	}
	if codeErr.Detail != "" {
		t.Fatalf("internal detail leaked: %q", codeErr.Detail)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	core, fake := newTestCore(t)
	core.Register("panic", func(ctx context.Context, connID string, arg any) (any, error) {
		panic("nil map write")
	})

	core.Dispatch(context.Background(), "conn-1", "panic", nil)

	got := fake.emitsTo("conn-1")
	if len(got) != 1 {
		t.Fatalf("emits = %v, want one error frame", got)
	}
	codeErr, ok := got[0].Err.(*errs.CodeError)
	if !ok || codeErr.Code != 500 {
		t.Fatalf("panic must surface as generic 500, got %v", got[0].Err)
	}
}

func TestDispatchSuppressedResultEvent(t *testing.T) {
	core, fake := newTestCore(t)
	core.Register("silent", func(ctx context.Context, connID string, arg any) (any, error) {
		return "ignored", nil
	}, WithResultEvent(func(arg any) string { return "" }))

	core.Dispatch(context.Background(), "conn-1", "silent", nil)

	if got := fake.emitsTo("conn-1"); len(got) != 0 {
		t.Fatalf("suppressed result still emitted: %v", got)
	}
}

func TestDispatchUnknownEventIsNoop(t *testing.T) {
	core, fake := newTestCore(t)

	core.Dispatch(context.Background(), "conn-1", "no-such-event", nil)

	if got := fake.emitsTo("conn-1"); len(got) != 0 {
		t.Fatalf("unknown event produced frames: %v", got)
	}
}

func TestRedactForLogMediaList(t *testing.T) {
	arg := map[string]any{
		"upload_media_info_list": []any{
			map[string]any{
				"image_src":     "data:image/png;base64,AAAA",
				"data_location": "server",
				"array_buffer":  []byte{1, 2, 3},
			},
			map[string]any{
				"image_src":     "data:image/png;base64,BBBB",
				"data_location": "client",
				"array_buffer":  []byte{4, 5, 6},
			},
		},
	}

	redacted := redactForLog("upload-media", arg).(map[string]any)
	list := redacted["upload_media_info_list"].([]any)

	first := list[0].(map[string]any)
	if first["image_src"] != "[Binary Array]" {
		t.Fatalf("image_src not redacted: %v", first["image_src"])
	}
	if _, ok := first["array_buffer"]; ok {
		t.Fatal("server-hosted buffer must be dropped from the log copy")
	}

	second := list[1].(map[string]any)
	if second["image_src"] != "[Binary Array]" {
		t.Fatalf("image_src not redacted: %v", second["image_src"])
	}
	if _, ok := second["array_buffer"]; !ok {
		t.Fatal("client-hosted buffer must stay in the log copy")
	}

	// the live payload is untouched
	orig := arg["upload_media_info_list"].([]any)[0].(map[string]any)
	if orig["image_src"] == "[Binary Array]" {
		t.Fatal("redaction mutated the live payload")
	}
	if _, ok := orig["array_buffer"]; !ok {
		t.Fatal("redaction mutated the live payload buffer")
	}
}

func TestRedactForLogPassthrough(t *testing.T) {
	arg := map[string]any{"name": "daily"}
	if got := redactForLog("enter-room", arg); !reflect.DeepEqual(got, arg) {
		t.Fatalf("non-media payload changed: %v", got)
	}
	if got := redactForLog("ping", nil); got != nil {
		t.Fatalf("nil payload changed: %v", got)
	}
}
