package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPipelineHooks{}
	p.OnAggregateStart(ctx, 3)
	p.OnAggregateComplete(ctx, 5, 4, time.Millisecond, nil)
	p.OnRenderStart(ctx, "node", 4)
	p.OnRenderComplete(ctx, "node", time.Second, errors.New("boom"))

	NoopHistoryHooks{}.OnRecord(ctx, "memory", nil)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "renderer:8080", "/render")
	h.OnResponse(ctx, "POST", "renderer:8080", "/render", 200, time.Second)
	h.OnError(ctx, "POST", "renderer:8080", "/render", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := History().(NoopHistoryHooks); !ok {
		t.Error("History() should return NoopHistoryHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customPipeline := &recordingPipelineHooks{}
	SetPipelineHooks(customPipeline)
	if Pipeline() != customPipeline {
		t.Error("SetPipelineHooks should set custom hooks")
	}

	customHistory := &testHistoryHooks{}
	SetHistoryHooks(customHistory)
	if History() != customHistory {
		t.Error("SetHistoryHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
	if _, ok := History().(NoopHistoryHooks); !ok {
		t.Error("Reset() should restore NoopHistoryHooks")
	}
}

func TestRegisteredHooksReceiveEvents(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	rec := &recordingPipelineHooks{}
	SetPipelineHooks(rec)

	ctx := context.Background()
	Pipeline().OnAggregateStart(ctx, 2)
	Pipeline().OnAggregateComplete(ctx, 2, 1, time.Millisecond, nil)
	Pipeline().OnRenderStart(ctx, "http", 1)

	want := []string{"aggregate-start", "aggregate-complete", "render-start"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, rec.events[i], want[i])
		}
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	custom := &recordingPipelineHooks{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)
	SetHistoryHooks(nil)
	SetHTTPHooks(nil)

	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should be ignored")
	}
	if _, ok := History().(NoopHistoryHooks); !ok {
		t.Error("SetHistoryHooks(nil) should be ignored")
	}
}

type recordingPipelineHooks struct {
	NoopPipelineHooks
	events []string
}

func (r *recordingPipelineHooks) OnAggregateStart(context.Context, int) {
	r.events = append(r.events, "aggregate-start")
}

func (r *recordingPipelineHooks) OnAggregateComplete(context.Context, int, int, time.Duration, error) {
	r.events = append(r.events, "aggregate-complete")
}

func (r *recordingPipelineHooks) OnRenderStart(context.Context, string, int) {
	r.events = append(r.events, "render-start")
}

type testHistoryHooks struct{ NoopHistoryHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
