package mindstudio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestThreadLifecycle(t *testing.T) {
	store := NewMemoryThreadStore()
	ctx := context.Background()

	if err := store.MarkRunning(ctx, "th-1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	tr, err := store.Get(ctx, "th-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.Status != ThreadRunning {
		t.Fatalf("status = %s, want running", tr.Status)
	}

	if err := store.Complete(ctx, "th-1", json.RawMessage(`{"summary":"done"}`), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tr, _ = store.Get(ctx, "th-1")
	if tr.Status != ThreadDone {
		t.Fatalf("status = %s, want done", tr.Status)
	}
	if string(tr.Output) != `{"summary":"done"}` {
		t.Fatalf("output = %s", tr.Output)
	}
}

func TestCompleteForUnknownThread(t *testing.T) {
	// After a restart the callback may be the first mention of a job.
	store := NewMemoryThreadStore()
	ctx := context.Background()

	if err := store.Complete(ctx, "never-dispatched", json.RawMessage(`{}`), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tr, err := store.Get(ctx, "never-dispatched")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.Status != ThreadDone {
		t.Fatalf("status = %s, want done", tr.Status)
	}
}

func TestMarkRunningDoesNotClobberResult(t *testing.T) {
	store := NewMemoryThreadStore()
	ctx := context.Background()

	if err := store.Complete(ctx, "th-2", json.RawMessage(`{"summary":"early"}`), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.MarkRunning(ctx, "th-2"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	tr, _ := store.Get(ctx, "th-2")
	if tr.Status != ThreadDone {
		t.Fatalf("status = %s, late MarkRunning must not clobber the result", tr.Status)
	}
}

func TestFailRecordsMessage(t *testing.T) {
	store := NewMemoryThreadStore()
	ctx := context.Background()

	if err := store.Fail(ctx, "th-3", "workflow crashed"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	tr, _ := store.Get(ctx, "th-3")
	if tr.Status != ThreadError || tr.Error != "workflow crashed" {
		t.Fatalf("result = %+v", tr)
	}
}

func TestGetUnknownThread(t *testing.T) {
	store := NewMemoryThreadStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestPollLimiter(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	l := newPollLimiter(time.Second, func() time.Time { return now })

	if !l.Allow("client-1", "th-1") {
		t.Fatal("first poll must pass")
	}
	if l.Allow("client-1", "th-1") {
		t.Fatal("immediate repeat must be limited")
	}
	if !l.Allow("client-2", "th-1") {
		t.Fatal("different client must have its own window")
	}
	if !l.Allow("client-1", "th-9") {
		t.Fatal("different thread must have its own window")
	}

	now = now.Add(time.Second)
	if !l.Allow("client-1", "th-1") {
		t.Fatal("poll after window must pass")
	}
}
